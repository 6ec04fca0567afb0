// Package staging removes files and directories left behind by interrupted
// work: publish temp files from a crashed daemon and scratch directories from
// killed one-off runs.
package staging
