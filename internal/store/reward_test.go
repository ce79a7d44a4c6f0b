package store

import (
	"errors"
	"testing"
)

func TestRewardCRUD(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))
	ctx := t.Context()

	// Create
	reward, err := rs.Create(ctx, "Tote Bag", "Medium-Cost", "Canvas tote", 75, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if reward.Name != "Tote Bag" {
		t.Errorf("name = %q, want %q", reward.Name, "Tote Bag")
	}
	if reward.Description != "Canvas tote" {
		t.Errorf("description = %q, want %q", reward.Description, "Canvas tote")
	}
	if reward.Cost != 75 {
		t.Errorf("cost = %d, want 75", reward.Cost)
	}
	if !reward.Active {
		t.Error("expected active")
	}

	// Get by ID
	got, err := rs.GetByID(ctx, reward.ID)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if got == nil {
		t.Fatal("expected reward, got nil")
	}
	if got.Name != "Tote Bag" {
		t.Errorf("name = %q, want %q", got.Name, "Tote Bag")
	}

	// Update
	updated, err := rs.Update(ctx, reward.ID, "Large Tote Bag", "Medium-Cost", "Bigger", 95, true)
	if err != nil {
		t.Fatalf("update reward: %v", err)
	}
	if updated.Name != "Large Tote Bag" {
		t.Errorf("name = %q, want %q", updated.Name, "Large Tote Bag")
	}
	if updated.Cost != 95 {
		t.Errorf("cost = %d, want 95", updated.Cost)
	}

	// Deactivate
	inactive, err := rs.SetActive(ctx, reward.ID, false)
	if err != nil {
		t.Fatalf("set active: %v", err)
	}
	if inactive.Active {
		t.Error("expected inactive")
	}

	// Delete
	if err := rs.Delete(ctx, reward.ID); err != nil {
		t.Fatalf("delete reward: %v", err)
	}
	got, err = rs.GetByID(ctx, reward.ID)
	if err != nil {
		t.Fatalf("get deleted reward: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestRewardNotFound(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))

	got, err := rs.GetByID(t.Context(), 999)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if got != nil {
		t.Error("expected nil for non-existent reward")
	}

	got, err = rs.GetByName(t.Context(), "No Such Reward")
	if err != nil {
		t.Fatalf("get reward by name: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown name")
	}
}

func TestRewardDuplicateName(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))

	_, err := rs.Create(t.Context(), "Postcard", "Low-Cost Physical", "", 10, true)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestRewardRejectsNonPositiveCost(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))

	if _, err := rs.Create(t.Context(), "Freebie", "", "", 0, true); err == nil {
		t.Fatal("expected error for zero cost")
	}
}

func TestRewardListActive(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))
	ctx := t.Context()

	before, err := rs.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}

	rs.Create(ctx, "Active One", "", "", 10, true)
	rs.Create(ctx, "Inactive", "", "", 20, false)
	rs.Create(ctx, "Active Two", "", "", 30, true)

	active, err := rs.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != len(before)+2 {
		t.Fatalf("expected %d active rewards, got %d", len(before)+2, len(active))
	}
	for i, r := range active {
		if !r.Active {
			t.Errorf("reward %q should be active", r.Name)
		}
		if i > 0 && active[i-1].Cost > r.Cost {
			t.Errorf("rewards not ordered by cost at %d", i)
		}
	}
	if active[0].Name != "Active One" {
		t.Errorf("active[0].Name = %q, want cheapest %q", active[0].Name, "Active One")
	}
}

func TestRewardListOrdering(t *testing.T) {
	rs := NewRewardStore(setupTestDB(t))
	ctx := t.Context()

	rs.Create(ctx, "Beta Inactive", "", "", 5, false)

	rewards, err := rs.List(ctx)
	if err != nil {
		t.Fatalf("list rewards: %v", err)
	}
	last := rewards[len(rewards)-1]
	if last.Name != "Beta Inactive" {
		t.Errorf("last reward = %q, want inactive %q", last.Name, "Beta Inactive")
	}
}
