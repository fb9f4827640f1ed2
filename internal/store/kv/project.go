package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/forgeq/internal/feature"
	pebblestore "github.com/rzbill/forgeq/internal/storage/pebble"
)

// SchemaVersion is written into new project metadata.
const SchemaVersion = 1

// ProjectMeta describes a project stored in the KV backend.
type ProjectMeta struct {
	Name          string `json:"name"`
	CreatedAtMs   int64  `json:"createdAtMs"`
	SchemaVersion int    `json:"schemaVersion"`
}

// EnsureProject creates the project metadata record if absent and returns the
// effective metadata. Idempotent.
func EnsureProject(db *pebblestore.DB, name string) (ProjectMeta, error) {
	if err := feature.ValidateProject(name); err != nil {
		return ProjectMeta{}, err
	}
	key := MetaKey(name)
	b, err := db.Get(key)
	switch {
	case err == nil:
		var m ProjectMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return ProjectMeta{}, fmt.Errorf("decode project meta: %w", err)
		}
		if m.SchemaVersion > SchemaVersion {
			return ProjectMeta{}, fmt.Errorf("project %q uses schema %d, newer than supported %d", name, m.SchemaVersion, SchemaVersion)
		}
		return m, nil
	case !errors.Is(err, pebblestore.ErrNotFound):
		return ProjectMeta{}, fmt.Errorf("read project meta: %w", err)
	}

	m := ProjectMeta{Name: name, CreatedAtMs: time.Now().UnixMilli(), SchemaVersion: SchemaVersion}
	enc, err := json.Marshal(m)
	if err != nil {
		return ProjectMeta{}, err
	}
	if err := db.Set(key, enc); err != nil {
		return ProjectMeta{}, fmt.Errorf("write project meta: %w", err)
	}
	return m, nil
}
