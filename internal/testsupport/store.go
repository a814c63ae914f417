package testsupport

import (
	"context"
	"fmt"
	"testing"

	"glint/internal/config"
	"glint/internal/history"
)

// MustOpenStore opens a history.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedScans inserts n synthetic scans and returns them oldest first.
func SeedScans(t testing.TB, store *history.Store, n int) []*history.Record {
	t.Helper()

	records := make([]*history.Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := store.AddScan(context.Background(), history.Record{
			Text:   fmt.Sprintf("payload-%d", i),
			Format: "QR_CODE",
		})
		if err != nil {
			t.Fatalf("store.AddScan: %v", err)
		}
		records = append(records, rec)
	}
	return records
}
