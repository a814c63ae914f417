// Package services groups clients for the external tools glint drives.
// Each subpackage wraps one binary behind an interface defined by its
// consumer, so sessions can run against fakes in tests.
package services
