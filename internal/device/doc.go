// Package device enumerates video capture devices, resolves a default
// against the persisted user selection, and reacts to hot-plug events.
package device
