// Package logx is winova's logging layer over zerolog.
//
// Console output is human-readable with a file:line caller, the log file is
// JSON, and lines at or above a configured level can be forwarded (rate
// limited) to an operator through the notifier.
package logx
