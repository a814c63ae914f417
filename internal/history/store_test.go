package history_test

import (
	"context"
	"testing"

	"glint/internal/classify"
	"glint/internal/history"
	"glint/internal/testsupport"
)

func TestAddScanAssignsDefaults(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))

	rec, err := store.AddScan(context.Background(), history.Record{
		Text:      "https://example.com",
		Format:    "QR_CODE",
		Category:  classify.CategoryURL,
		DeviceID:  "/dev/video0",
		Facing:    "environment",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("AddScan: %v", err)
	}
	if rec.ID == 0 {
		t.Fatal("expected row id")
	}
	if rec.ScanID == "" {
		t.Fatal("expected generated scan id")
	}
	if rec.CreatedAt.IsZero() {
		t.Fatal("expected created_at timestamp")
	}
	if rec.Category != classify.CategoryURL {
		t.Fatalf("category = %q", rec.Category)
	}

	if _, err := store.AddScan(context.Background(), history.Record{Format: "QR_CODE"}); err == nil {
		t.Fatal("expected error for empty scan text")
	}
}

func TestBoundedFIFOEvictsOldestFirst(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t, testsupport.WithHistoryCap(3)))
	seeded := testsupport.SeedScans(t, store, 5)

	records, err := store.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want cap of 3", len(records))
	}
	// Newest first; payload-0 and payload-1 were evicted.
	want := []string{"payload-4", "payload-3", "payload-2"}
	for i, rec := range records {
		if rec.Text != want[i] {
			t.Fatalf("records[%d].Text = %q, want %q", i, rec.Text, want[i])
		}
	}

	if old, err := store.GetByID(context.Background(), seeded[0].ID); err != nil || old != nil {
		t.Fatalf("evicted record still present: %+v err=%v", old, err)
	}
}

func TestRemoveAndClear(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	records := testsupport.SeedScans(t, store, 3)

	removed, err := store.Remove(context.Background(), records[1].ID)
	if err != nil || !removed {
		t.Fatalf("Remove = (%v, %v), want (true, nil)", removed, err)
	}
	removed, err = store.Remove(context.Background(), records[1].ID)
	if err != nil || removed {
		t.Fatalf("second Remove = (%v, %v), want (false, nil)", removed, err)
	}

	cleared, err := store.Clear(context.Background())
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if cleared != 2 {
		t.Fatalf("cleared %d rows, want 2", cleared)
	}
}

func TestStatsGroupsByCategory(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	for _, category := range []classify.Category{
		classify.CategoryURL, classify.CategoryURL, classify.CategoryWiFi,
	} {
		if _, err := store.AddScan(context.Background(), history.Record{
			Text:     "payload",
			Format:   "QR_CODE",
			Category: category,
		}); err != nil {
			t.Fatalf("AddScan: %v", err)
		}
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.ByCategory[classify.CategoryURL] != 2 {
		t.Fatalf("url count = %d, want 2", stats.ByCategory[classify.CategoryURL])
	}
	if stats.ByCategory[classify.CategoryWiFi] != 1 {
		t.Fatalf("wifi count = %d, want 1", stats.ByCategory[classify.CategoryWiFi])
	}
}

func TestCheckHealth(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.SeedScans(t, store, 2)

	health := store.CheckHealth(context.Background())
	if health.Error != "" {
		t.Fatalf("unexpected health error: %s", health.Error)
	}
	if !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unhealthy database: %+v", health)
	}
	if health.TotalScans != 2 {
		t.Fatalf("total = %d, want 2", health.TotalScans)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("schema version = %d, want 1", health.SchemaVersion)
	}
}
