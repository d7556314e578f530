// Package preflight provides readiness checks for the directories and
// services cvasr depends on.
//
// The CLI "cvasr status" command runs RunAll and prints one line per check.
// "cvasr transcribe" and "cvasr index" run the relevant subset before doing
// any work so a dead gateway or cluster is reported up front.
package preflight
