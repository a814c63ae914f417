// Package session owns the camera scan lifecycle: it binds the decode
// engine to a capture device, drives the status state machine, and
// routes every accepted decode through a single emission point.
//
// All camera operations (Start, Stop, SwitchCamera) are serialized
// through a single operation slot. Overlapping calls never race the
// hardware: a Start during another operation is rejected, a Stop waits
// for an in-flight start to settle before tearing down.
package session
