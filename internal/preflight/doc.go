// Package preflight provides readiness checks for the dataset roots and the
// directories fewshot writes into.
//
// The CLI "fewshot check" command runs RunAll and renders each Result; the
// pipeline does not call it, so a run still fails with the typed error from
// the component that hit the problem.
package preflight
