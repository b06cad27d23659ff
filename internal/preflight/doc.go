// Package preflight provides readiness checks for the directories, tools and
// remote services foley depends on.
//
// These checks run in two contexts:
//   - "foley run" calls RunAll before the first stage and refuses to start
//     when a check fails, so a run never dies halfway on a missing directory.
//   - "foley status" additionally calls CheckService for each remote client to
//     show whether the configured endpoints answer.
package preflight
