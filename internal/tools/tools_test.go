package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/forgeq/internal/feature"
	"github.com/rzbill/forgeq/internal/service"
	pebblestore "github.com/rzbill/forgeq/internal/storage/pebble"
	"github.com/rzbill/forgeq/internal/store/kv"
)

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	st, err := kv.Open(kv.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever, MaxDependencies: 3})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewDispatcher(service.NewWithStore(st, nil, nil))
}

// call runs a tool and decodes its JSON result into a generic map.
func call(t *testing.T, d *Dispatcher, name, args string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(d.Call(context.Background(), name, json.RawMessage(args)), &out))
	return out
}

const bulk = `{"features":[
	{"category":"core","name":"db","description":"schema","steps":["migrate"]},
	{"category":"core","name":"api","description":"handlers","steps":["route"],"depends_on_indices":[0]},
	{"category":"ui","name":"page","description":"screen","steps":["render"],"depends_on_indices":[0,1]}
]}`

func TestToolsAreRegistered(t *testing.T) {
	d := newDispatcher(t)
	names := make([]string, 0)
	for _, tool := range d.Tools() {
		require.NotEmpty(t, tool.Description, tool.Name)
		names = append(names, tool.Name)
	}
	require.Equal(t, []string{
		"feature_add_dependency", "feature_claim_and_get", "feature_clear_in_progress",
		"feature_create", "feature_create_bulk", "feature_delete", "feature_get_blocked",
		"feature_get_by_id", "feature_get_for_regression", "feature_get_graph",
		"feature_get_ready", "feature_get_stats", "feature_get_summary",
		"feature_mark_failing", "feature_mark_in_progress", "feature_mark_passing",
		"feature_remove_dependency", "feature_resolve", "feature_set_dependencies", "feature_skip",
	}, names)
}

func TestWorkflow(t *testing.T) {
	d := newDispatcher(t)

	res := call(t, d, "feature_create_bulk", bulk)
	require.Equal(t, map[string]any{"created": 3.0, "with_dependencies": 2.0}, res)

	res = call(t, d, "feature_get_stats", "")
	require.Equal(t, 3.0, res["total"])
	require.Equal(t, 0.0, res["percentage"])

	res = call(t, d, "feature_get_ready", `{}`)
	require.Equal(t, 1.0, res["count"])

	res = call(t, d, "feature_claim_and_get", `{"feature_id":1}`)
	require.Equal(t, false, res["already_claimed"])
	require.Equal(t, true, res["in_progress"])
	res = call(t, d, "feature_claim_and_get", `{"feature_id":1}`)
	require.Equal(t, true, res["already_claimed"])

	res = call(t, d, "feature_mark_in_progress", `{"feature_id":1}`)
	require.Equal(t, feature.KindConflict, res["kind"])

	res = call(t, d, "feature_mark_passing", `{"feature_id":1}`)
	require.Equal(t, map[string]any{"success": true, "feature_id": 1.0, "name": "db"}, res)

	res = call(t, d, "feature_get_blocked", `{"limit":5}`)
	require.Equal(t, 1.0, res["total_blocked"])
	blocked := res["features"].([]any)[0].(map[string]any)
	require.Equal(t, []any{2.0}, blocked["blocked_by"])

	res = call(t, d, "feature_skip", `{"feature_id":2}`)
	require.Equal(t, 2.0, res["old_priority"])
	require.Equal(t, 4.0, res["new_priority"])
	require.Equal(t, "Feature 'api' moved to end of queue", res["message"])

	res = call(t, d, "feature_mark_failing", `{"feature_id":1}`)
	require.Equal(t, "Feature #1 marked as failing - regression detected", res["message"])

	res = call(t, d, "feature_get_summary", `{"feature_id":3}`)
	require.Equal(t, []any{1.0, 2.0}, res["dependencies"])
}

func TestDependencyTools(t *testing.T) {
	d := newDispatcher(t)
	call(t, d, "feature_create_bulk", bulk)

	res := call(t, d, "feature_add_dependency", `{"feature_id":1,"dependency_id":3}`)
	require.Equal(t, feature.KindConflict, res["kind"])
	require.Contains(t, res["error"], "circular")

	res = call(t, d, "feature_remove_dependency", `{"feature_id":3,"dependency_id":1}`)
	require.Equal(t, []any{2.0}, res["dependencies"])

	res = call(t, d, "feature_set_dependencies", `{"feature_id":3,"dependency_ids":[]}`)
	require.Equal(t, true, res["success"])
	require.Equal(t, []any{}, res["dependencies"])

	res = call(t, d, "feature_set_dependencies", `{"feature_id":3,"dependency_ids":[1,2,1]}`)
	require.Equal(t, feature.KindInvalidRequest, res["kind"])

	res = call(t, d, "feature_get_graph", "")
	require.Len(t, res["nodes"], 3)
	require.Equal(t, []any{map[string]any{"source": 1.0, "target": 2.0}}, res["edges"])

	res = call(t, d, "feature_resolve", "")
	require.Len(t, res["ordered"], 3)
	require.Equal(t, []any{}, res["circular_dependencies"])
}

func TestErrorResults(t *testing.T) {
	d := newDispatcher(t)

	res := call(t, d, "feature_unknown", "")
	require.Equal(t, feature.KindInvalidRequest, res["kind"])

	res = call(t, d, "feature_get_by_id", `{"feature_id":0}`)
	require.Equal(t, feature.KindInvalidRequest, res["kind"])

	res = call(t, d, "feature_get_by_id", `{"feature_id":"x"}`)
	require.Equal(t, feature.KindInvalidRequest, res["kind"])

	res = call(t, d, "feature_get_by_id", `{"feature_id":42}`)
	require.Equal(t, feature.KindNotFound, res["kind"])

	res = call(t, d, "feature_get_ready", `{"limit":51}`)
	require.Equal(t, feature.KindInvalidRequest, res["kind"])

	// An explicit zero limit is rejected; only a missing limit means default.
	for _, tool := range []string{"feature_get_ready", "feature_get_blocked", "feature_get_for_regression"} {
		res = call(t, d, tool, `{"limit":0}`)
		require.Equal(t, feature.KindInvalidRequest, res["kind"], tool)

		res = call(t, d, tool, `{}`)
		require.NotContains(t, res, "kind", tool)
		require.Contains(t, res, "count", tool)
	}

	res = call(t, d, "feature_create", `{"category":"c","name":"n","description":"d","steps":[]}`)
	require.Equal(t, feature.KindInvalidRequest, res["kind"])

	res = call(t, d, "feature_create_bulk", `{"features":[
		{"category":"c","name":"a","description":"d","steps":["s"]},
		{"category":"c","name":"b","description":"d","steps":["s"],"depends_on_indices":[1]}
	]}`)
	require.Equal(t, feature.KindInvalidRequest, res["kind"])
	require.Equal(t, 1.0, res["index"])

	res = call(t, d, "feature_create_bulk", `{"features":[
		{"category":"c","name":"a","description":"d","steps":["s"]},
		{"category":"c","name":"b","description":"d","steps":["s"],"depends_on_indices":[0,0,0,0]}
	]}`)
	require.Equal(t, feature.KindLimitExceeded, res["kind"])
	require.Equal(t, 1.0, res["index"])

	res = call(t, d, "feature_get_stats", "")
	require.Equal(t, 0.0, res["total"])
}

func TestCreateAndDelete(t *testing.T) {
	d := newDispatcher(t)
	res := call(t, d, "feature_create", `{"category":"c","name":"solo","description":"d","steps":["s"]}`)
	require.Equal(t, true, res["success"])
	require.Equal(t, "Created feature: solo", res["message"])

	res = call(t, d, "feature_delete", `{"feature_id":1}`)
	require.Equal(t, map[string]any{"success": true, "feature_id": 1.0}, res)

	res = call(t, d, "feature_delete", `{"feature_id":1}`)
	require.Equal(t, feature.KindNotFound, res["kind"])

	res = call(t, d, "feature_get_for_regression", `{"limit":2}`)
	require.Equal(t, 0.0, res["count"])
}
