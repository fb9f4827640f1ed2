// Package feature defines the backlog model shared by every forgeq component:
// the Feature record, create specs, status derivation, the validation helpers
// used before any mutation and the error taxonomy surfaced to callers.
//
// A feature depends on zero or more other features. The dependency relation
// must stay acyclic, may not contain the feature itself, and references only
// existing features. Status transitions (claim, pass, fail, release, skip) are
// performed by a store; this package only describes them.
package feature
