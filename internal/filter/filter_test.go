package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/forgeq/internal/feature"
)

func sample() feature.Feature {
	return feature.Feature{
		ID:           7,
		Priority:     3,
		Category:     "auth",
		Name:         "api-login",
		Description:  "login endpoint",
		Steps:        []string{"db", "handler"},
		Dependencies: []int64{2, 5},
	}
}

func TestEmptyFilterMatchesAll(t *testing.T) {
	f, err := Compile("   ")
	require.NoError(t, err)
	require.False(t, f.Enabled())
	require.True(t, f.Match(sample(), feature.StatusPending))
}

func TestMatch(t *testing.T) {
	cases := []struct {
		expr string
		want bool
	}{
		{`category == "auth"`, true},
		{`priority < 3`, false},
		{`name.startsWith("api") && "db" in steps`, true},
		{`5 in dependencies && size(dependencies) == 2`, true},
		{`status == "blocked"`, false},
		{`status == "pending" && !passes && !in_progress`, true},
		{`id == 7`, true},
	}
	for _, tc := range cases {
		f, err := Compile(tc.expr)
		require.NoError(t, err, tc.expr)
		require.Equal(t, tc.want, f.Match(sample(), feature.StatusPending), tc.expr)
	}
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{`category ==`, `unknown_field > 1`, `priority + 1`} {
		_, err := Compile(expr)
		require.Error(t, err, expr)
		require.ErrorIs(t, err, feature.ErrInvalidRequest, expr)
	}
}

func TestEvalErrorIsNoMatch(t *testing.T) {
	f, err := Compile(`steps[5] == "x"`)
	require.NoError(t, err)
	require.False(t, f.Match(sample(), feature.StatusPending))
}

func TestApply(t *testing.T) {
	a, b := sample(), sample()
	b.ID, b.Category = 8, "billing"
	f, err := Compile(`category != "auth"`)
	require.NoError(t, err)
	got := f.Apply([]feature.Feature{a, b}, func(feature.Feature) feature.Status { return feature.StatusPending })
	require.Len(t, got, 1)
	require.Equal(t, int64(8), got[0].ID)
}
