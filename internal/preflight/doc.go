// Package preflight provides readiness checks for the filesystem paths and
// external programs detectd depends on.
//
// These checks run in two contexts:
//   - daemonrun calls RunAll before starting the job loop. Any failure is an
//     initialization error and the daemon exits.
//   - The CLI "detectd status" command shows the same results as a table.
//
// Video tooling is only checked when video jobs are enabled.
package preflight
