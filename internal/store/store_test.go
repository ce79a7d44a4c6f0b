package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/gemloyalty/internal/database"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSeededCatalog(t *testing.T) {
	db := setupTestDB(t)
	rs := NewRewardStore(db)

	r, err := rs.GetByName(t.Context(), "Sticker Sheet")
	if err != nil {
		t.Fatalf("get seeded reward: %v", err)
	}
	if r == nil {
		t.Fatal("expected seeded Sticker Sheet")
	}
	if r.Cost != 40 {
		t.Errorf("cost = %d, want 40", r.Cost)
	}
	if r.Category != "Low-Cost Physical" {
		t.Errorf("category = %q, want %q", r.Category, "Low-Cost Physical")
	}
}
