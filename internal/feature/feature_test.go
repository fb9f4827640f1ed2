package feature

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeStats(t *testing.T) {
	require.Equal(t, Stats{}, ComputeStats(0, 0, 0))

	s := ComputeStats(1, 1, 3)
	require.Equal(t, 33.3, s.Percentage)
	require.Equal(t, 66.7, ComputeStats(2, 0, 3).Percentage)
	require.Equal(t, 100.0, ComputeStats(4, 0, 4).Percentage)

	// Exact halves round to the even digit.
	require.Equal(t, 6.2, ComputeStats(1, 0, 16).Percentage)
	require.Equal(t, 18.8, ComputeStats(3, 0, 16).Percentage)
}

func TestDeriveStatus(t *testing.T) {
	require.Equal(t, StatusDone, DeriveStatus(Feature{Passes: true}, false))
	require.Equal(t, StatusBlocked, DeriveStatus(Feature{InProgress: true}, false))
	require.Equal(t, StatusInProgress, DeriveStatus(Feature{InProgress: true}, true))
	require.Equal(t, StatusPending, DeriveStatus(Feature{}, true))
}

func TestValidateSpec(t *testing.T) {
	ok := Spec{Category: "api", Name: "login", Description: "d", Steps: []string{"s"}}
	require.NoError(t, ValidateSpec(ok))

	bad := ok
	bad.Steps = nil
	err := ValidateSpec(bad)
	require.ErrorIs(t, err, ErrInvalidRequest)
	require.Contains(t, err.Error(), "steps")

	bad = ok
	bad.Name = strings.Repeat("x", 256)
	require.ErrorIs(t, ValidateSpec(bad), ErrInvalidRequest)

	bad = ok
	bad.Category = ""
	err = ValidateSpec(bad)
	require.Contains(t, err.Error(), "category is required")
}

func TestValidateProject(t *testing.T) {
	for _, ok := range []string{"default", "my-app", "a.b_c", "X1"} {
		require.NoError(t, ValidateProject(ok), ok)
	}
	for _, bad := range []string{"", "-lead", "has/slash", "sp ace", "../x", "..", `a\b`} {
		err := ValidateProject(bad)
		require.ErrorIs(t, err, ErrInvalidRequest, bad)
	}
}

func TestConflictRefinementsWrapConflict(t *testing.T) {
	for _, e := range []error{ErrAlreadyPassing, ErrAlreadyInProgress, ErrCircularDependency, ErrLostRace} {
		wrapped := E("claim", 4, e)
		require.ErrorIs(t, wrapped, ErrConflict)
		require.ErrorIs(t, wrapped, e)
		require.Equal(t, KindConflict, KindOf(wrapped))
	}
}

func TestKindOf(t *testing.T) {
	require.Equal(t, KindNotFound, KindOf(NotFound("get", 1)))
	require.Equal(t, KindInvalidRequest, KindOf(CheckSelfReference("add", 2, []int64{2})))
	require.Equal(t, KindLimitExceeded, KindOf(CheckFanIn("set", 2, 21, 20)))
	require.Equal(t, KindStoreFailure, KindOf(StoreFailure("list", errors.New("disk gone"))))
	require.Equal(t, KindStoreFailure, KindOf(errors.New("anything else")))
}

func TestErrorMessageAndIndex(t *testing.T) {
	err := AtIndex("create_bulk", 3, ErrInvalidRequest, "cannot depend on feature at index %d (forward reference not allowed)", 5)
	require.Equal(t, "create_bulk: feature at index 3: cannot depend on feature at index 5 (forward reference not allowed) (invalid request)", err.Error())
	i, ok := IndexOf(err)
	require.True(t, ok)
	require.Equal(t, 3, i)

	_, ok = IndexOf(NotFound("get", 9))
	require.False(t, ok)
	require.Equal(t, "get: feature 9: not found", NotFound("get", 9).Error())
}

func TestDiagnose(t *testing.T) {
	require.ErrorIs(t, Diagnose("claim", 1, nil, true), ErrNotFound)
	require.ErrorIs(t, Diagnose("claim", 1, &Feature{Passes: true}, true), ErrAlreadyPassing)
	require.ErrorIs(t, Diagnose("claim", 1, &Feature{InProgress: true}, true), ErrAlreadyInProgress)
	require.ErrorIs(t, Diagnose("mark_passing", 1, &Feature{InProgress: true}, false), ErrLostRace)
	require.ErrorIs(t, Diagnose("claim", 1, &Feature{}, true), ErrLostRace)
}

func TestValidationHelpers(t *testing.T) {
	require.NoError(t, CheckDuplicates("set", 1, []int64{2, 3}))
	require.ErrorIs(t, CheckDuplicates("set", 1, []int64{2, 2}), ErrInvalidRequest)

	exists := func(id int64) bool { return id < 10 }
	require.NoError(t, CheckExists("set", 1, []int64{2, 3}, exists))
	err := CheckExists("set", 1, []int64{2, 11, 12}, exists)
	require.ErrorIs(t, err, ErrNotFound)
	require.Contains(t, err.Error(), "[11 12]")
}

func TestCloneIsDeep(t *testing.T) {
	f := Feature{ID: 1, Steps: []string{"a"}, Dependencies: []int64{2}}
	c := f.Clone()
	c.Steps[0] = "b"
	c.Dependencies[0] = 3
	require.Equal(t, "a", f.Steps[0])
	require.Equal(t, int64(2), f.Dependencies[0])
	require.True(t, f.HasDependency(2))
}
