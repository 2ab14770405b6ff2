package analytics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/store/memory"
)

func newTestEngine(t *testing.T) (*Engine, store.Repository, string) {
	t.Helper()

	repo := memory.New()
	location, err := repo.CreateLocation(context.Background(), domain.Location{Name: "Gudang Uji"})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	return NewEngine(repo, nil, 0), repo, location.ID
}

func createItem(t *testing.T, repo store.Repository, locationID string, code string, openingQty int64, rol int64, price float64, taxPercent float64) *domain.Item {
	t.Helper()

	item, err := repo.CreateItem(context.Background(), domain.Item{
		LocationID:    locationID,
		ItemCode:      code,
		Name:          "Item " + code,
		QuantityType:  "pcs",
		OpeningQty:    openingQty,
		CurrentQty:    openingQty,
		PurchasePrice: price,
		TaxPercent:    taxPercent,
		ROL:           rol,
		Active:        true,
	})
	if err != nil {
		t.Fatalf("create item %s: %v", code, err)
	}
	return item
}

func applyMovements(t *testing.T, repo store.Repository, locationID string, itemID string, movementType string, qty int64, times int) {
	t.Helper()

	for i := 0; i < times; i++ {
		_, err := repo.ApplyMovement(context.Background(), domain.Movement{
			LocationID: locationID,
			ItemID:     itemID,
			Type:       movementType,
			Quantity:   qty,
			TakenBy:    "tester",
		})
		if err != nil {
			t.Fatalf("apply %s on %s: %v", movementType, itemID, err)
		}
	}
}

func TestSummaryComputesAmountsAndRevenue(t *testing.T) {
	engine, repo, locationID := newTestEngine(t)
	item := createItem(t, repo, locationID, "SUM-01", 100, 5, 1000, 10)

	applyMovements(t, repo, locationID, item.ID, domain.MovementCheckIn, 4, 1)
	applyMovements(t, repo, locationID, item.ID, domain.MovementCheckOut, 2, 1)

	summary, err := engine.Summary(context.Background(), locationID, domain.ReportFilter{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}

	if summary.TotalTransactions != 2 || summary.TotalQuantity != 6 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	// 4 x 1000 plus 10% tax in, 2 x 1000 plus 10% tax out.
	if summary.TotalCheckInAmount != 4400 {
		t.Fatalf("expected check-in amount 4400, got %f", summary.TotalCheckInAmount)
	}
	if summary.TotalCheckOutAmount != 2200 {
		t.Fatalf("expected check-out amount 2200, got %f", summary.TotalCheckOutAmount)
	}
	if summary.Revenue != -2200 {
		t.Fatalf("expected revenue -2200, got %f", summary.Revenue)
	}
}

func TestListPaginatesNewestFirst(t *testing.T) {
	engine, repo, locationID := newTestEngine(t)
	item := createItem(t, repo, locationID, "LIST-01", 100, 5, 500, 0)

	applyMovements(t, repo, locationID, item.ID, domain.MovementCheckOut, 1, 5)

	page, err := engine.List(context.Background(), locationID, domain.ReportFilter{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Pagination.Total != 5 || page.Pagination.TotalPages != 3 {
		t.Fatalf("unexpected pagination: %+v", page.Pagination)
	}
	if len(page.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page.Rows))
	}
	if page.Rows[0].ItemName != "Item LIST-01" {
		t.Fatalf("expected item name join, got %q", page.Rows[0].ItemName)
	}
}

func TestReorderRecommendations(t *testing.T) {
	engine, repo, locationID := newTestEngine(t)
	low := createItem(t, repo, locationID, "ROL-LOW", 10, 10, 1000, 0)
	createItem(t, repo, locationID, "ROL-IDLE", 5, 10, 1000, 0)
	createItem(t, repo, locationID, "ROL-GOOD", 100, 10, 1000, 0)

	applyMovements(t, repo, locationID, low.ID, domain.MovementCheckOut, 3, 1)

	rows, err := engine.ReorderRecommendations(context.Background(), locationID)
	if err != nil {
		t.Fatalf("reorder recommendations: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}

	byCode := map[string]domain.ReorderRecommendation{}
	for _, row := range rows {
		byCode[row.ItemCode] = row
	}
	if _, ok := byCode["ROL-GOOD"]; ok {
		t.Fatalf("healthy item should not be listed")
	}

	lowRow := byCode["ROL-LOW"]
	if lowRow.Status != domain.StockStatusCritical || !lowRow.ShouldReorder {
		t.Fatalf("unexpected low row: %+v", lowRow)
	}
	if lowRow.AvgDailyUsage != 0.1 {
		t.Fatalf("expected avg daily usage 0.1, got %f", lowRow.AvgDailyUsage)
	}
	if lowRow.RecommendedROL != 1 {
		t.Fatalf("expected recommended rol ceil(0.1*7)=1, got %d", lowRow.RecommendedROL)
	}
	if lowRow.DaysUntilStockout.Unbounded || lowRow.DaysUntilStockout.Days != 70 {
		t.Fatalf("expected 70 bounded days, got %+v", lowRow.DaysUntilStockout)
	}

	idleRow := byCode["ROL-IDLE"]
	if !idleRow.DaysUntilStockout.Unbounded {
		t.Fatalf("expected unbounded days with zero usage, got %+v", idleRow.DaysUntilStockout)
	}
}

func TestPredictiveRequiresEnoughHistory(t *testing.T) {
	engine, repo, locationID := newTestEngine(t)
	busy := createItem(t, repo, locationID, "PRED-BUSY", 100, 5, 1000, 0)
	quiet := createItem(t, repo, locationID, "PRED-QUIET", 100, 5, 1000, 0)

	applyMovements(t, repo, locationID, busy.ID, domain.MovementCheckOut, 2, 7)
	applyMovements(t, repo, locationID, quiet.ID, domain.MovementCheckOut, 2, 6)

	rows, err := engine.Predictive(context.Background(), locationID)
	if err != nil {
		t.Fatalf("predictive: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected only the 7-entry item, got %d rows", len(rows))
	}

	row := rows[0]
	if row.ItemCode != "PRED-BUSY" {
		t.Fatalf("unexpected item %s", row.ItemCode)
	}
	if row.Trend != domain.TrendIncreasing {
		t.Fatalf("expected increasing trend with empty prior window, got %s", row.Trend)
	}
	if row.TrendPercent != 0 {
		t.Fatalf("expected trend percent 0 with zero prior average, got %f", row.TrendPercent)
	}
	if row.Urgency != domain.UrgencyLow {
		t.Fatalf("expected low urgency at 86 units vs 0.47/day, got %s", row.Urgency)
	}
	if row.PredictedDaysToStockout.Unbounded || row.PredictedStockoutDate == nil {
		t.Fatalf("expected bounded stockout projection, got %+v", row)
	}
}

func TestABCClassification(t *testing.T) {
	engine, repo, locationID := newTestEngine(t)
	a := createItem(t, repo, locationID, "ABC-A", 10, 1, 70, 0)
	b := createItem(t, repo, locationID, "ABC-B", 10, 1, 25, 0)
	c := createItem(t, repo, locationID, "ABC-C", 10, 1, 5, 0)

	applyMovements(t, repo, locationID, a.ID, domain.MovementCheckOut, 1, 1)
	applyMovements(t, repo, locationID, b.ID, domain.MovementCheckOut, 1, 1)
	applyMovements(t, repo, locationID, c.ID, domain.MovementCheckOut, 1, 1)

	rows, err := engine.ABCAnalysis(context.Background(), locationID)
	if err != nil {
		t.Fatalf("abc analysis: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if rows[0].ItemCode != "ABC-A" || rows[0].Class != domain.ABCClassA {
		t.Fatalf("expected ABC-A class A first, got %+v", rows[0])
	}
	if rows[0].ValuePercent != 70 || rows[0].CumulativePercent != 70 {
		t.Fatalf("unexpected percentages: %+v", rows[0])
	}
	if rows[1].ItemCode != "ABC-B" || rows[1].Class != domain.ABCClassB || rows[1].CumulativePercent != 95 {
		t.Fatalf("expected ABC-B class B at 95%%, got %+v", rows[1])
	}
	if rows[2].ItemCode != "ABC-C" || rows[2].Class != domain.ABCClassC || rows[2].CumulativePercent != 100 {
		t.Fatalf("expected ABC-C class C at 100%%, got %+v", rows[2])
	}
}

func TestConsumptionOrdersByFrequency(t *testing.T) {
	engine, repo, locationID := newTestEngine(t)
	frequent := createItem(t, repo, locationID, "CONS-FREQ", 100, 5, 1000, 0)
	bulk := createItem(t, repo, locationID, "CONS-BULK", 100, 5, 1000, 0)

	applyMovements(t, repo, locationID, frequent.ID, domain.MovementCheckOut, 1, 3)
	applyMovements(t, repo, locationID, bulk.ID, domain.MovementCheckOut, 5, 1)

	rows, err := engine.Consumption(context.Background(), locationID, domain.ReportFilter{}, "")
	if err != nil {
		t.Fatalf("consumption: %v", err)
	}
	if len(rows) != 2 || rows[0].ItemCode != "CONS-FREQ" || rows[0].Frequency != 3 {
		t.Fatalf("expected most frequent item first, got %+v", rows)
	}

	rows, err = engine.Consumption(context.Background(), locationID, domain.ReportFilter{}, "low")
	if err != nil {
		t.Fatalf("consumption low: %v", err)
	}
	if rows[0].ItemCode != "CONS-BULK" {
		t.Fatalf("expected least frequent item first with order=low, got %+v", rows)
	}
}

func TestStockReportStatusFilter(t *testing.T) {
	engine, repo, locationID := newTestEngine(t)
	createItem(t, repo, locationID, "STK-LOW", 3, 10, 1000, 0)
	createItem(t, repo, locationID, "STK-OK", 100, 10, 1000, 0)

	rows, err := engine.StockReport(context.Background(), locationID, "", "", "")
	if err != nil {
		t.Fatalf("stock report: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows unfiltered, got %d", len(rows))
	}

	rows, err = engine.StockReport(context.Background(), locationID, "", "", domain.StockReportLow)
	if err != nil {
		t.Fatalf("stock report low: %v", err)
	}
	if len(rows) != 1 || rows[0].ItemCode != "STK-LOW" || rows[0].Status != domain.StockReportLow {
		t.Fatalf("expected only the low stock item, got %+v", rows)
	}
}

func TestDailyLogReturnsNewestFirstWithinDay(t *testing.T) {
	engine, repo, locationID := newTestEngine(t)
	item := createItem(t, repo, locationID, "DAY-01", 100, 5, 1000, 0)

	applyMovements(t, repo, locationID, item.ID, domain.MovementCheckIn, 2, 1)
	applyMovements(t, repo, locationID, item.ID, domain.MovementCheckOut, 1, 1)

	rows, err := engine.DailyLog(context.Background(), locationID, time.Now().UTC(), "", "")
	if err != nil {
		t.Fatalf("daily log: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Type != domain.MovementCheckOut || rows[1].Type != domain.MovementCheckIn {
		t.Fatalf("expected newest first, got %s then %s", rows[0].Type, rows[1].Type)
	}

	rows, err = engine.DailyLog(context.Background(), locationID, time.Now().UTC(), domain.MovementCheckIn, "")
	if err != nil {
		t.Fatalf("daily log checkin: %v", err)
	}
	if len(rows) != 1 || rows[0].Type != domain.MovementCheckIn {
		t.Fatalf("expected only check-in rows, got %+v", rows)
	}
}

// mapReportCache round-trips values through JSON the way the redis cache does.
type mapReportCache struct {
	values map[string][]byte
	sets   int
	hits   int
}

func (c *mapReportCache) Get(_ context.Context, key string, out any) (bool, error) {
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, out)
}

func (c *mapReportCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.values == nil {
		c.values = map[string][]byte{}
	}
	c.values[key] = raw
	c.sets++
	return nil
}

func TestReorderRecommendationsUsesCache(t *testing.T) {
	repo := memory.New()
	location, err := repo.CreateLocation(context.Background(), domain.Location{Name: "Gudang Cache"})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	cacheStore := &mapReportCache{}
	engine := NewEngine(repo, cacheStore, time.Minute)

	item := createItem(t, repo, location.ID, "CACHE-01", 3, 10, 1000, 0)

	first, err := engine.ReorderRecommendations(context.Background(), location.ID)
	if err != nil {
		t.Fatalf("first read: %v", err)
	}
	if cacheStore.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cacheStore.sets)
	}

	// Mutate the store; the cached payload must win until it expires.
	applyMovements(t, repo, location.ID, item.ID, domain.MovementCheckIn, 100, 1)

	second, err := engine.ReorderRecommendations(context.Background(), location.ID)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if cacheStore.hits != 1 {
		t.Fatalf("expected cache hit on second read, got %d", cacheStore.hits)
	}
	if len(first) != len(second) || second[0].CurrentQty != first[0].CurrentQty {
		t.Fatalf("expected cached rows, got %+v vs %+v", first, second)
	}
}
