// Package main hosts the detectd CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, processes a single
// file outside the trigger protocol, reports the state of the protocol files
// and the running instance, and scaffolds configuration. Pipeline wiring lives
// in internal/daemonrun; commands here only resolve configuration and render
// output.
package main
