// Package pebblestore is a thin wrapper around Pebble used by the embedded
// feature store: fsync policy, batches, snapshots, prefix scans and a metrics
// hook.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data/default",
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set(key, value, nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	snap := db.NewSnapshot()
//	_ = db.ScanPrefix(snap, prefix, func(k, v []byte) error { return nil })
//	snap.Close()
package pebblestore
