package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
)

func TestApplyMovementCommitsItemAndLedgerTogether(t *testing.T) {
	databaseURL := os.Getenv("GUDANGKU_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set GUDANGKU_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	location, err := s.CreateLocation(ctx, domain.Location{
		Name: fmt.Sprintf("Gudang IT %d", stamp),
	})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}

	item, err := s.CreateItem(ctx, domain.Item{
		LocationID:    location.ID,
		ItemCode:      fmt.Sprintf("IT-%d", stamp),
		Name:          "Integration Test Item",
		QuantityType:  "pcs",
		OpeningQty:    10,
		CurrentQty:    10,
		PurchasePrice: 5000,
		TaxPercent:    11,
		ROL:           2,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM transaction_logs WHERE item_id = $1`, item.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, item.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, location.ID)
	})

	applied, err := s.ApplyMovement(ctx, domain.Movement{
		LocationID: location.ID,
		ItemID:     item.ID,
		Type:       domain.MovementCheckIn,
		Quantity:   5,
		TakenBy:    "integration-test",
	})
	if err != nil {
		t.Fatalf("check-in: %v", err)
	}
	if applied.Item.CurrentQty != 15 {
		t.Fatalf("expected qty 15 after check-in, got %d", applied.Item.CurrentQty)
	}
	if applied.Entry.RemainingQty != 15 {
		t.Fatalf("expected remaining qty snapshot 15, got %d", applied.Entry.RemainingQty)
	}
	if applied.Entry.Price != 5000 || applied.Entry.TaxPercent != 11 {
		t.Fatalf("expected price snapshot 5000/11, got %f/%f", applied.Entry.Price, applied.Entry.TaxPercent)
	}

	// Over-draw must fail and leave both the item and the ledger untouched.
	_, err = s.ApplyMovement(ctx, domain.Movement{
		LocationID: location.ID,
		ItemID:     item.ID,
		Type:       domain.MovementCheckOut,
		Quantity:   100,
		TakenBy:    "integration-test",
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	reloaded, err := s.GetItemByID(ctx, location.ID, item.ID)
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if reloaded.CurrentQty != 15 {
		t.Fatalf("expected qty unchanged at 15 after failed check-out, got %d", reloaded.CurrentQty)
	}

	entries, err := s.ListLedger(ctx, location.ID, domain.ReportFilter{ItemID: item.ID})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(entries))
	}

	// Cross-location reads must not see the item.
	other, err := s.CreateLocation(ctx, domain.Location{
		Name: fmt.Sprintf("Gudang IT Lain %d", stamp),
	})
	if err != nil {
		t.Fatalf("create second location: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = $1`, other.ID)
	})

	if _, err := s.GetItemByID(ctx, other.ID, item.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-location read, got %v", err)
	}
}
