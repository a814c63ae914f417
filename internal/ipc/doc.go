// Package ipc defines the wire types of the daemon's local HTTP API
// and a client for them. The CLI talks to a running daemon exclusively
// through this package.
package ipc
