// Package zbar wraps the zbarcam command-line decoder as a scan
// session engine. Each engine instance owns one zbarcam process: the
// process holds the capture device, streams decoded symbols on stdout,
// and releases the hardware on exit.
package zbar
