// Package daemon wires the scanning services together: the history
// store, device registry, permission gate, session controller, and
// hot-plug monitor, behind a single-instance lock and a local HTTP
// API.
package daemon
