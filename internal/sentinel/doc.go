// Package sentinel watches for the trigger marker that announces new media.
//
// The producer writes the media file, then the marker. FileWatcher removes
// the marker before touching the media, which is the only synchronization
// between the two processes. Polling is the protocol; the optional fsnotify
// assist only shortens the wait between polls.
package sentinel
