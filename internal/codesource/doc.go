// Package codesource reads the learned-code files written by the external
// teaching service. The files are owned by that service; this package never
// writes them.
//
// One file per controller lives in a common directory, named by a pattern
// such as "broadlink_remote_%s_codes". Its content is:
//
//	{"version": 1, "data": {"<storage_name>": {"<command>": "<code>" | ["<code>", ...]}}}
//
// Watcher turns filesystem notifications on that directory into debounced
// change signals for the reconciliation poller.
package codesource
