// Package preflight provides readiness checks for the filesystem paths the
// daemon depends on.
//
// The daemon runs RunAll before it starts any worker lane and refuses to
// start when a check fails. The CLI "docflow daemon status" command prints
// the same results.
package preflight
