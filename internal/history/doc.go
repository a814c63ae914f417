// Package history persists decoded scans in a bounded FIFO backed by
// SQLite. The cap is enforced at insert time: the row is added and the
// oldest overflow rows are evicted inside one transaction.
package history
