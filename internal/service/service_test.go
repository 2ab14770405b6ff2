package service

import (
	"context"
	"errors"
	"testing"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/store/memory"
)

func newTestService() (*Service, store.Repository) {
	repo := memory.NewSeeded()
	return New(repo), repo
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "admin",
		Role:     "admin",
	})
}

func staffCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{
		Username: "staff",
		Role:     "staff",
	})
}

func createTestItem(t *testing.T, svc *Service, locationID string, code string, openingQty int64, rol int64) domain.Item {
	t.Helper()
	item, err := svc.CreateItem(adminCtx(), locationID, domain.ItemCreateRequest{
		ItemCode:      code,
		Name:          "Test " + code,
		QuantityType:  "pcs",
		OpeningQty:    openingQty,
		PurchasePrice: 10000,
		TaxPercent:    11,
		ROL:           rol,
	})
	if err != nil {
		t.Fatalf("create item %s failed: %v", code, err)
	}
	return item
}

func TestCheckInRaisesQuantityAndSnapshotsRemaining(t *testing.T) {
	svc, _ := newTestService()
	item := createTestItem(t, svc, "loc-utama", "TST-IN-01", 5, 2)

	result, err := svc.CheckIn(staffCtx(), "loc-utama", domain.MovementRequest{
		ItemID:   item.ID,
		Quantity: 3,
	})
	if err != nil {
		t.Fatalf("checkin failed: %v", err)
	}
	if result.Item.CurrentQty != 8 {
		t.Fatalf("expected current qty 8, got %d", result.Item.CurrentQty)
	}
	if result.Entry.RemainingQty != 8 {
		t.Fatalf("expected remaining qty 8 on ledger entry, got %d", result.Entry.RemainingQty)
	}
	if result.Entry.Type != domain.MovementCheckIn {
		t.Fatalf("expected checkin entry, got %s", result.Entry.Type)
	}
	if result.Entry.Price != 10000 {
		t.Fatalf("expected price snapshot 10000, got %f", result.Entry.Price)
	}
}

func TestCheckOutInsufficientStockLeavesItemUntouched(t *testing.T) {
	svc, repo := newTestService()
	item := createTestItem(t, svc, "loc-utama", "TST-OUT-01", 10, 2)

	_, err := svc.CheckOut(staffCtx(), "loc-utama", domain.MovementRequest{
		ItemID:   item.ID,
		Quantity: 15,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	after, err := svc.GetItem(context.Background(), "loc-utama", item.ID)
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if after.CurrentQty != 10 {
		t.Fatalf("expected current qty unchanged at 10, got %d", after.CurrentQty)
	}

	entries, err := repo.ListLedger(context.Background(), "loc-utama", domain.ReportFilter{ItemID: item.ID})
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no ledger entries after rejected movement, got %d", len(entries))
	}
}

func TestMovementRejectsNonPositiveQuantity(t *testing.T) {
	svc, _ := newTestService()
	item := createTestItem(t, svc, "loc-utama", "TST-ZERO-01", 10, 2)

	for _, qty := range []int64{0, -3} {
		_, err := svc.CheckIn(staffCtx(), "loc-utama", domain.MovementRequest{
			ItemID:   item.ID,
			Quantity: qty,
		})
		if !errors.Is(err, store.ErrInvalidMovement) {
			t.Fatalf("expected ErrInvalidMovement for qty %d, got %v", qty, err)
		}
	}
}

func TestMovementCrossLocationIsNotFound(t *testing.T) {
	svc, _ := newTestService()
	item := createTestItem(t, svc, "loc-utama", "TST-XLOC-01", 10, 2)

	_, err := svc.CheckOut(staffCtx(), "loc-cabang", domain.MovementRequest{
		ItemID:   item.ID,
		Quantity: 1,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for cross-location movement, got %v", err)
	}
}

func TestDeactivatedItemRejectsMovements(t *testing.T) {
	svc, _ := newTestService()
	item := createTestItem(t, svc, "loc-utama", "TST-DEACT-01", 10, 2)

	if _, err := svc.DeactivateItem(adminCtx(), "loc-utama", item.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}

	_, err := svc.CheckIn(staffCtx(), "loc-utama", domain.MovementRequest{
		ItemID:   item.ID,
		Quantity: 1,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deactivated item, got %v", err)
	}
}

func TestBatchCheckOutPartialFailurePreservesOrder(t *testing.T) {
	svc, _ := newTestService()
	first := createTestItem(t, svc, "loc-utama", "TST-BATCH-01", 10, 2)
	second := createTestItem(t, svc, "loc-utama", "TST-BATCH-02", 1, 2)
	third := createTestItem(t, svc, "loc-utama", "TST-BATCH-03", 10, 2)

	result, err := svc.BatchCheckOut(staffCtx(), "loc-utama", domain.BatchMovementRequest{
		Items: []domain.MovementRequest{
			{ItemID: first.ID, Quantity: 5},
			{ItemID: second.ID, Quantity: 5},
			{ItemID: third.ID, Quantity: 5},
		},
	})
	if err != nil {
		t.Fatalf("batch checkout failed: %v", err)
	}

	if result.Count != 2 {
		t.Fatalf("expected count 2, got %d", result.Count)
	}
	if len(result.Applied) != 2 {
		t.Fatalf("expected 2 applied movements, got %d", len(result.Applied))
	}
	if result.Applied[0].Item.ID != first.ID || result.Applied[1].Item.ID != third.ID {
		t.Fatalf("applied movements out of input order")
	}
	if len(result.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(result.Failed))
	}
	if result.Failed[0].ItemID != second.ID {
		t.Fatalf("expected failure for %s, got %s", second.ID, result.Failed[0].ItemID)
	}
	if result.Failed[0].Reason != "insufficient stock" {
		t.Fatalf("unexpected failure reason: %s", result.Failed[0].Reason)
	}
}

func TestBatchRejectsEmptyPayload(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.BatchCheckIn(staffCtx(), "loc-utama", domain.BatchMovementRequest{})
	if !errors.Is(err, store.ErrInvalidMovement) {
		t.Fatalf("expected ErrInvalidMovement for empty batch, got %v", err)
	}
}

func TestLedgerReplayMatchesCurrentQty(t *testing.T) {
	svc, repo := newTestService()
	item := createTestItem(t, svc, "loc-utama", "TST-REPLAY-01", 20, 2)

	movements := []struct {
		checkin bool
		qty     int64
	}{
		{true, 5}, {false, 8}, {true, 2}, {false, 10}, {true, 1},
	}
	for _, movement := range movements {
		var err error
		if movement.checkin {
			_, err = svc.CheckIn(staffCtx(), "loc-utama", domain.MovementRequest{ItemID: item.ID, Quantity: movement.qty})
		} else {
			_, err = svc.CheckOut(staffCtx(), "loc-utama", domain.MovementRequest{ItemID: item.ID, Quantity: movement.qty})
		}
		if err != nil {
			t.Fatalf("movement failed: %v", err)
		}
	}

	entries, err := repo.ListLedger(context.Background(), "loc-utama", domain.ReportFilter{ItemID: item.ID})
	if err != nil {
		t.Fatalf("list ledger failed: %v", err)
	}

	replayed := item.OpeningQty
	for _, entry := range entries {
		if entry.Type == domain.MovementCheckIn {
			replayed += entry.Quantity
		} else {
			replayed -= entry.Quantity
		}
		if entry.RemainingQty != replayed {
			t.Fatalf("remaining qty snapshot %d does not match replay %d", entry.RemainingQty, replayed)
		}
	}

	after, err := svc.GetItem(context.Background(), "loc-utama", item.ID)
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	if after.CurrentQty != replayed {
		t.Fatalf("replayed qty %d does not match current %d", replayed, after.CurrentQty)
	}
}

func TestCreateItemRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateItem(staffCtx(), "loc-utama", domain.ItemCreateRequest{
		ItemCode:   "TST-STAFF-01",
		Name:       "Staff created",
		OpeningQty: 5,
	})
	if err == nil {
		t.Fatalf("expected non-admin item create to fail")
	}
}

func TestCreateItemRejectsDuplicateCodePerLocation(t *testing.T) {
	svc, _ := newTestService()
	createTestItem(t, svc, "loc-utama", "TST-DUP-01", 5, 2)

	_, err := svc.CreateItem(adminCtx(), "loc-utama", domain.ItemCreateRequest{
		ItemCode:   "TST-DUP-01",
		Name:       "Duplicate",
		OpeningQty: 5,
	})
	if !errors.Is(err, store.ErrInvalidMovement) {
		t.Fatalf("expected ErrInvalidMovement for duplicate item code, got %v", err)
	}

	// Same code at another location is allowed.
	if _, err := svc.CreateItem(adminCtx(), "loc-cabang", domain.ItemCreateRequest{
		ItemCode:   "TST-DUP-01",
		Name:       "Other location",
		OpeningQty: 5,
	}); err != nil {
		t.Fatalf("expected same code at other location to succeed, got %v", err)
	}
}

func TestUpdateItemRecomputesTotalAmount(t *testing.T) {
	svc, _ := newTestService()
	item := createTestItem(t, svc, "loc-utama", "TST-UPD-01", 5, 2)

	price := 20000.0
	updated, err := svc.UpdateItem(adminCtx(), "loc-utama", item.ID, domain.ItemUpdateRequest{
		PurchasePrice: &price,
	})
	if err != nil {
		t.Fatalf("update item failed: %v", err)
	}
	want := 20000 + 20000*11.0/100
	if updated.TotalAmount != want {
		t.Fatalf("expected total amount %f, got %f", want, updated.TotalAmount)
	}
}

func TestTodayStatsCountsMovements(t *testing.T) {
	svc, _ := newTestService()
	item := createTestItem(t, svc, "loc-utama", "TST-TODAY-01", 50, 2)

	for i := 0; i < 3; i++ {
		if _, err := svc.CheckIn(staffCtx(), "loc-utama", domain.MovementRequest{ItemID: item.ID, Quantity: 2}); err != nil {
			t.Fatalf("checkin failed: %v", err)
		}
	}
	if _, err := svc.CheckOut(staffCtx(), "loc-utama", domain.MovementRequest{ItemID: item.ID, Quantity: 4}); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	stats, err := svc.TodayStats(context.Background(), "loc-utama")
	if err != nil {
		t.Fatalf("today stats failed: %v", err)
	}
	if stats.CheckInTx != 3 || stats.CheckInQty != 6 {
		t.Fatalf("unexpected checkin stats: %+v", stats)
	}
	if stats.CheckOutTx != 1 || stats.CheckOutQty != 4 {
		t.Fatalf("unexpected checkout stats: %+v", stats)
	}
}

func TestLowStockAlertsUseReorderLevel(t *testing.T) {
	svc, _ := newTestService()
	low := createTestItem(t, svc, "loc-utama", "TST-LOW-01", 3, 5)
	createTestItem(t, svc, "loc-utama", "TST-LOW-02", 50, 5)

	alerts, err := svc.LowStockAlerts(context.Background(), "loc-utama")
	if err != nil {
		t.Fatalf("low stock alerts failed: %v", err)
	}

	found := false
	for _, alert := range alerts {
		if alert.ItemID == low.ID {
			found = true
		}
		if alert.ItemCode == "TST-LOW-02" {
			t.Fatalf("item above ROL must not alert")
		}
	}
	if !found {
		t.Fatalf("expected low stock alert for %s", low.ID)
	}
}
