package kv

import (
	"encoding/binary"
	"fmt"
)

// Key layout, all under one project prefix:
//
//	p/{project}/meta        project metadata (JSON)
//	p/{project}/seq         last assigned feature id (uint64 big endian)
//	p/{project}/feat/{id}   feature record (JSON), id as uint64 big endian
const (
	prefixFeature = "feat/"
	keyMeta       = "meta"
	keySeq        = "seq"
)

// projectPrefix returns the base prefix for a project.
// Format: p/{project}/
func projectPrefix(project string) string {
	return "p/" + project + "/"
}

// MetaKey returns the project metadata key.
func MetaKey(project string) []byte {
	return []byte(projectPrefix(project) + keyMeta)
}

// SeqKey returns the id sequence key.
func SeqKey(project string) []byte {
	return []byte(projectPrefix(project) + keySeq)
}

// FeaturePrefix returns the prefix for scanning every feature of a project.
// Big-endian ids make the scan run in id order.
func FeaturePrefix(project string) []byte {
	return []byte(projectPrefix(project) + prefixFeature)
}

// FeatureKey returns the record key for a feature id.
func FeatureKey(project string, id int64) []byte {
	prefix := FeaturePrefix(project)
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], uint64(id))
	return key
}

// FeatureIDFromKey extracts the id from a FeatureKey.
func FeatureIDFromKey(project string, key []byte) (int64, error) {
	prefix := FeaturePrefix(project)
	if len(key) != len(prefix)+8 {
		return 0, fmt.Errorf("malformed feature key %q", key)
	}
	return int64(binary.BigEndian.Uint64(key[len(prefix):])), nil
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("invalid sequence value of %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
