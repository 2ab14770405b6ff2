package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
)

func newStoreWithItem(t *testing.T, openingQty int64) (*Store, string, string) {
	t.Helper()

	s := New()
	ctx := context.Background()
	location, err := s.CreateLocation(ctx, domain.Location{Name: "Gudang Uji"})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	item, err := s.CreateItem(ctx, domain.Item{
		LocationID:    location.ID,
		ItemCode:      "MEM-01",
		Name:          "Memory Test Item",
		QuantityType:  "pcs",
		OpeningQty:    openingQty,
		PurchasePrice: 1000,
		TaxPercent:    11,
		ROL:           5,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	return s, location.ID, item.ID
}

func TestApplyMovementSerializesConcurrentCheckouts(t *testing.T) {
	s, locationID, itemID := newStoreWithItem(t, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	applied := make(chan error, 150)
	for i := 0; i < 150; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyMovement(ctx, domain.Movement{
				LocationID: locationID,
				ItemID:     itemID,
				Type:       domain.MovementCheckOut,
				Quantity:   1,
				TakenBy:    "tester",
			})
			applied <- err
		}()
	}
	wg.Wait()
	close(applied)

	succeeded := 0
	for err := range applied {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 100 {
		t.Fatalf("expected exactly 100 checkouts to land, got %d", succeeded)
	}

	item, err := s.GetItemByID(ctx, locationID, itemID)
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if item.CurrentQty != 0 {
		t.Fatalf("expected qty 0, got %d", item.CurrentQty)
	}

	entries, err := s.ListLedger(ctx, locationID, domain.ReportFilter{ItemID: itemID})
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 100 {
		t.Fatalf("expected 100 ledger entries, got %d", len(entries))
	}

	// Remaining quantities must be a permutation of 99..0 with each value once.
	seen := map[int64]bool{}
	for _, entry := range entries {
		if seen[entry.RemainingQty] {
			t.Fatalf("remaining qty %d recorded twice", entry.RemainingQty)
		}
		seen[entry.RemainingQty] = true
	}
}

func TestPageLedgerNewestFirst(t *testing.T) {
	s, locationID, itemID := newStoreWithItem(t, 100)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if _, err := s.ApplyMovement(ctx, domain.Movement{
			LocationID: locationID,
			ItemID:     itemID,
			Type:       domain.MovementCheckOut,
			Quantity:   i,
			TakenBy:    "tester",
		}); err != nil {
			t.Fatalf("movement %d: %v", i, err)
		}
	}

	entries, total, err := s.PageLedger(ctx, locationID, domain.ReportFilter{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("page ledger: %v", err)
	}
	if total != 5 || len(entries) != 2 {
		t.Fatalf("expected total 5 with 2 rows, got total %d rows %d", total, len(entries))
	}
	if entries[0].Quantity != 5 || entries[1].Quantity != 4 {
		t.Fatalf("expected newest first, got %d then %d", entries[0].Quantity, entries[1].Quantity)
	}

	entries, total, err = s.PageLedger(ctx, locationID, domain.ReportFilter{Page: 3, Limit: 2})
	if err != nil {
		t.Fatalf("page 3: %v", err)
	}
	if total != 5 || len(entries) != 1 || entries[0].Quantity != 1 {
		t.Fatalf("expected last page with the oldest entry, got %+v", entries)
	}

	entries, total, err = s.PageLedger(ctx, locationID, domain.ReportFilter{Page: 9, Limit: 2})
	if err != nil {
		t.Fatalf("page past end: %v", err)
	}
	if total != 5 || len(entries) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", entries)
	}
}

func TestLedgerFilterByTypeAndItem(t *testing.T) {
	s, locationID, itemID := newStoreWithItem(t, 50)
	ctx := context.Background()

	other, err := s.CreateItem(ctx, domain.Item{
		LocationID:    locationID,
		ItemCode:      "MEM-02",
		Name:          "Second Item",
		QuantityType:  "pcs",
		OpeningQty:    50,
		PurchasePrice: 2000,
	})
	if err != nil {
		t.Fatalf("create second item: %v", err)
	}

	movements := []domain.Movement{
		{LocationID: locationID, ItemID: itemID, Type: domain.MovementCheckIn, Quantity: 3},
		{LocationID: locationID, ItemID: itemID, Type: domain.MovementCheckOut, Quantity: 1},
		{LocationID: locationID, ItemID: other.ID, Type: domain.MovementCheckOut, Quantity: 2},
	}
	for _, m := range movements {
		m.TakenBy = "tester"
		if _, err := s.ApplyMovement(ctx, m); err != nil {
			t.Fatalf("movement: %v", err)
		}
	}

	entries, err := s.ListLedger(ctx, locationID, domain.ReportFilter{Type: domain.MovementCheckOut})
	if err != nil {
		t.Fatalf("list checkout: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 checkout entries, got %d", len(entries))
	}

	entries, err = s.ListLedger(ctx, locationID, domain.ReportFilter{ItemID: other.ID})
	if err != nil {
		t.Fatalf("list by item: %v", err)
	}
	if len(entries) != 1 || entries[0].Quantity != 2 {
		t.Fatalf("expected the second item's entry, got %+v", entries)
	}
}

func TestCreateItemEnforcesPerLocationUniqueness(t *testing.T) {
	s, locationID, _ := newStoreWithItem(t, 10)
	ctx := context.Background()

	_, err := s.CreateItem(ctx, domain.Item{
		LocationID:    locationID,
		ItemCode:      "MEM-01",
		Name:          "Duplicate Code",
		QuantityType:  "pcs",
		OpeningQty:    1,
		PurchasePrice: 100,
	})
	if !errors.Is(err, store.ErrInvalidMovement) {
		t.Fatalf("expected duplicate code rejection, got %v", err)
	}

	otherLocation, err := s.CreateLocation(ctx, domain.Location{Name: "Gudang Lain"})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	if _, err := s.CreateItem(ctx, domain.Item{
		LocationID:    otherLocation.ID,
		ItemCode:      "MEM-01",
		Name:          "Same Code Elsewhere",
		QuantityType:  "pcs",
		OpeningQty:    1,
		PurchasePrice: 100,
	}); err != nil {
		t.Fatalf("same code at another location should be allowed, got %v", err)
	}
}
