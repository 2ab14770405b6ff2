package analytics

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"gudangku/backend/internal/cache"
	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
)

// Engine is the read side: every method folds once over (items, ledger) and
// never mutates state. Heavier reports are cached per location with a short
// TTL; reads run at read-committed, a point-in-time snapshot is enough.
type Engine struct {
	repo     store.Repository
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(repo store.Repository, cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		repo:     repo,
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

func cacheKey(report string, locationID string) string {
	return fmt.Sprintf("gudangku:report:%s:%s", report, locationID)
}

// entryAmounts returns the untaxed amount, the tax amount and their sum for
// one ledger entry, using the price and tax percent snapshotted on it.
func entryAmounts(entry domain.TransactionLogEntry) (float64, float64, float64) {
	amount := entry.Price * float64(entry.Quantity)
	taxAmount := amount * entry.TaxPercent / 100
	return amount, taxAmount, amount + taxAmount
}

func (e *Engine) itemIndex(ctx context.Context, locationID string) (map[string]domain.Item, []domain.Item, error) {
	items, err := e.repo.ListItems(ctx, locationID, true)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]domain.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	return byID, items, nil
}

func (e *Engine) supplierNames(ctx context.Context) (map[string]string, error) {
	suppliers, err := e.repo.ListSuppliers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(suppliers))
	for _, supplier := range suppliers {
		names[supplier.ID] = supplier.Name
	}
	return names, nil
}

func (e *Engine) categoryNames(ctx context.Context) (map[string]string, error) {
	categories, err := e.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(categories))
	for _, category := range categories {
		names[category.ID] = category.Name
	}
	return names, nil
}

func (e *Engine) Summary(ctx context.Context, locationID string, filter domain.ReportFilter) (*domain.TransactionSummary, error) {
	entries, err := e.repo.ListLedger(ctx, locationID, filter)
	if err != nil {
		return nil, err
	}

	var summary domain.TransactionSummary
	for _, entry := range entries {
		_, _, total := entryAmounts(entry)
		summary.TotalTransactions++
		summary.TotalQuantity += entry.Quantity
		if entry.Type == domain.MovementCheckIn {
			summary.TotalCheckInAmount += total
			summary.TotalCheckInQty += entry.Quantity
		} else {
			summary.TotalCheckOutAmount += total
			summary.TotalCheckOutQty += entry.Quantity
		}
	}
	summary.TotalCheckInAmount = round2(summary.TotalCheckInAmount)
	summary.TotalCheckOutAmount = round2(summary.TotalCheckOutAmount)
	summary.Revenue = round2(summary.TotalCheckOutAmount - summary.TotalCheckInAmount)
	return &summary, nil
}

func (e *Engine) List(ctx context.Context, locationID string, filter domain.ReportFilter) (*domain.LedgerPage, error) {
	entries, total, err := e.repo.PageLedger(ctx, locationID, filter)
	if err != nil {
		return nil, err
	}
	byID, _, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}
	locationName := ""
	if location, err := e.repo.GetLocationByID(ctx, locationID); err == nil {
		locationName = location.Name
	}

	rows := make([]domain.LedgerRow, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, buildLedgerRow(entry, byID[entry.ItemID], locationName))
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	return &domain.LedgerPage{
		Rows: rows,
		Pagination: domain.Pagination{
			Total:      total,
			Page:       page,
			Limit:      limit,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

func buildLedgerRow(entry domain.TransactionLogEntry, item domain.Item, locationName string) domain.LedgerRow {
	_, taxAmount, total := entryAmounts(entry)
	return domain.LedgerRow{
		TransactionID: entry.ID,
		Date:          entry.CreatedAt,
		ItemID:        entry.ItemID,
		ItemName:      item.Name,
		ItemCode:      item.ItemCode,
		Type:          entry.Type,
		Quantity:      entry.Quantity,
		QuantityType:  entry.QuantityType,
		Price:         entry.Price,
		TaxPercent:    entry.TaxPercent,
		TaxAmount:     round2(taxAmount),
		TotalAmount:   round2(total),
		Location:      locationName,
		TakenBy:       entry.TakenBy,
		Remarks:       entry.Remarks,
	}
}

func (e *Engine) Charts(ctx context.Context, locationID string, filter domain.ReportFilter) (*domain.ChartReport, error) {
	entries, err := e.repo.ListLedger(ctx, locationID, filter)
	if err != nil {
		return nil, err
	}
	byID, _, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}

	type trendAcc struct {
		checkIn  float64
		checkOut float64
	}
	trendByDate := map[string]*trendAcc{}
	dates := make([]string, 0, 32)
	checkInQty := map[string]int64{}
	checkOutQty := map[string]int64{}
	totalQty := map[string]int64{}

	for _, entry := range entries {
		_, _, total := entryAmounts(entry)
		date := entry.CreatedAt.Format("2006-01-02")
		acc, ok := trendByDate[date]
		if !ok {
			acc = &trendAcc{}
			trendByDate[date] = acc
			dates = append(dates, date)
		}
		name := byID[entry.ItemID].Name
		if entry.Type == domain.MovementCheckIn {
			acc.checkIn += total
			checkInQty[name] += entry.Quantity
		} else {
			acc.checkOut += total
			checkOutQty[name] += entry.Quantity
		}
		totalQty[name] += entry.Quantity
	}

	slices.Sort(dates)
	trend := make([]domain.DailyTrendPoint, 0, len(dates))
	for _, date := range dates {
		acc := trendByDate[date]
		trend = append(trend, domain.DailyTrendPoint{
			Date:     date,
			CheckIn:  round2(acc.checkIn),
			CheckOut: round2(acc.checkOut),
		})
	}

	return &domain.ChartReport{
		DailyTrend:  trend,
		TopCheckIn:  topProducts(checkInQty, 10),
		TopCheckOut: topProducts(checkOutQty, 10),
		TopProducts: topProducts(totalQty, 10),
	}, nil
}

func topProducts(qtyByName map[string]int64, limit int) []domain.ProductQty {
	rows := make([]domain.ProductQty, 0, len(qtyByName))
	for name, qty := range qtyByName {
		rows = append(rows, domain.ProductQty{ItemName: name, Quantity: qty})
	}
	slices.SortFunc(rows, func(a, b domain.ProductQty) int {
		if a.Quantity != b.Quantity {
			if a.Quantity > b.Quantity {
				return -1
			}
			return 1
		}
		return cmpString(a.ItemName, b.ItemName)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func (e *Engine) ItemAnalysis(ctx context.Context, locationID string) ([]domain.ItemAnalysisRow, error) {
	_, items, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}
	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{})
	if err != nil {
		return nil, err
	}
	supplierNames, err := e.supplierNames(ctx)
	if err != nil {
		return nil, err
	}
	categoryNames, err := e.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	type usageAcc struct {
		checkIn  int64
		checkOut int64
		lastAt   time.Time
	}
	usage := map[string]*usageAcc{}
	for _, entry := range entries {
		acc, ok := usage[entry.ItemID]
		if !ok {
			acc = &usageAcc{}
			usage[entry.ItemID] = acc
		}
		if entry.Type == domain.MovementCheckIn {
			acc.checkIn += entry.Quantity
		} else {
			acc.checkOut += entry.Quantity
		}
		if entry.CreatedAt.After(acc.lastAt) {
			acc.lastAt = entry.CreatedAt
		}
	}

	rows := make([]domain.ItemAnalysisRow, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		row := domain.ItemAnalysisRow{
			ItemID:       item.ID,
			ItemCode:     item.ItemCode,
			ItemName:     item.Name,
			CurrentQty:   item.CurrentQty,
			ROL:          item.ROL,
			MOQ:          item.MOQ,
			EOQ:          item.EOQ,
			SupplierName: supplierNames[item.SupplierID],
			CategoryName: categoryNames[item.CategoryID],
		}
		if acc, ok := usage[item.ID]; ok {
			row.TotalCheckIn = acc.checkIn
			row.TotalCheckOut = acc.checkOut
			if acc.checkIn > 0 {
				row.TurnoverRate = round2(float64(acc.checkOut) / float64(acc.checkIn) * 100)
			}
			if !acc.lastAt.IsZero() {
				lastAt := acc.lastAt
				row.LastTransaction = &lastAt
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (e *Engine) ReorderRecommendations(ctx context.Context, locationID string) ([]domain.ReorderRecommendation, error) {
	key := cacheKey("rol", locationID)
	var cached []domain.ReorderRecommendation
	if ok, err := e.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{
		Type: domain.MovementCheckOut,
		From: &from,
		To:   &now,
	})
	if err != nil {
		return nil, err
	}
	_, items, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}

	usage := map[string]int64{}
	for _, entry := range entries {
		usage[entry.ItemID] += entry.Quantity
	}

	rows := make([]domain.ReorderRecommendation, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		// 30-day denominator regardless of how many days had movement.
		avg := float64(usage[item.ID]) / 30
		days := domain.UnboundedDays()
		if avg > 0 {
			days = domain.BoundedDays(float64(item.CurrentQty) / avg)
		}

		status := domain.StockStatusGood
		switch {
		case item.CurrentQty <= item.ROL:
			status = domain.StockStatusCritical
		case float64(item.CurrentQty) <= float64(item.ROL)*1.5:
			status = domain.StockStatusWarning
		}
		shouldReorder := item.CurrentQty <= item.ROL
		if status == domain.StockStatusGood && !shouldReorder {
			continue
		}

		rows = append(rows, domain.ReorderRecommendation{
			ItemID:            item.ID,
			ItemCode:          item.ItemCode,
			ItemName:          item.Name,
			CurrentQty:        item.CurrentQty,
			ROL:               item.ROL,
			MOQ:               item.MOQ,
			EOQ:               item.EOQ,
			AvgDailyUsage:     round2(avg),
			DaysUntilStockout: days,
			RecommendedROL:    int64(math.Ceil(avg * 7)),
			Status:            status,
			ShouldReorder:     shouldReorder,
		})
	}

	_ = e.cache.Set(ctx, key, rows, e.cacheTTL)
	return rows, nil
}

func (e *Engine) Predictive(ctx context.Context, locationID string) ([]domain.PredictiveRow, error) {
	key := cacheKey("predictive", locationID)
	var cached []domain.PredictiveRow
	if ok, err := e.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -90)
	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{
		Type: domain.MovementCheckOut,
		From: &from,
		To:   &now,
	})
	if err != nil {
		return nil, err
	}
	_, items, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}

	cutoff30 := now.AddDate(0, 0, -30)
	cutoff60 := now.AddDate(0, 0, -60)
	type predictAcc struct {
		count int64
		sum30 int64
		sum60 int64
	}
	usage := map[string]*predictAcc{}
	for _, entry := range entries {
		acc, ok := usage[entry.ItemID]
		if !ok {
			acc = &predictAcc{}
			usage[entry.ItemID] = acc
		}
		acc.count++
		switch {
		case !entry.CreatedAt.Before(cutoff30):
			acc.sum30 += entry.Quantity
		case !entry.CreatedAt.Before(cutoff60):
			acc.sum60 += entry.Quantity
		}
	}

	rows := make([]domain.PredictiveRow, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		acc, ok := usage[item.ID]
		// Fewer than 7 checkout entries is not enough signal to project.
		if !ok || acc.count < 7 {
			continue
		}

		avg30 := float64(acc.sum30) / 30
		avg60 := float64(acc.sum60) / 30

		trend := domain.TrendStable
		if avg30 > avg60 {
			trend = domain.TrendIncreasing
		} else if avg30 < avg60 {
			trend = domain.TrendDecreasing
		}
		trendPercent := 0.0
		if avg60 > 0 {
			trendPercent = round2((avg30 - avg60) / avg60 * 100)
		}

		days := domain.UnboundedDays()
		var stockoutDate *time.Time
		urgency := domain.UrgencyLow
		if avg30 > 0 {
			raw := float64(item.CurrentQty) / avg30
			days = domain.BoundedDays(raw)
			at := now.Add(time.Duration(raw * 24 * float64(time.Hour)))
			stockoutDate = &at
			switch {
			case raw < 7:
				urgency = domain.UrgencyCritical
			case raw < 14:
				urgency = domain.UrgencyHigh
			case raw < 30:
				urgency = domain.UrgencyMedium
			}
		}

		rows = append(rows, domain.PredictiveRow{
			ItemID:                  item.ID,
			ItemCode:                item.ItemCode,
			ItemName:                item.Name,
			CurrentQty:              item.CurrentQty,
			AvgDailyUsage30:         round2(avg30),
			AvgDailyUsage60:         round2(avg60),
			Trend:                   trend,
			TrendPercent:            trendPercent,
			PredictedDaysToStockout: days,
			PredictedStockoutDate:   stockoutDate,
			Urgency:                 urgency,
		})
	}

	_ = e.cache.Set(ctx, key, rows, e.cacheTTL)
	return rows, nil
}

func (e *Engine) ABCAnalysis(ctx context.Context, locationID string) ([]domain.ABCRow, error) {
	key := cacheKey("abc", locationID)
	var cached []domain.ABCRow
	if ok, err := e.cache.Get(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}

	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{Type: domain.MovementCheckOut})
	if err != nil {
		return nil, err
	}
	byID, _, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}

	type abcAcc struct {
		qty       int64
		frequency int64
	}
	usage := map[string]*abcAcc{}
	for _, entry := range entries {
		acc, ok := usage[entry.ItemID]
		if !ok {
			acc = &abcAcc{}
			usage[entry.ItemID] = acc
		}
		acc.qty += entry.Quantity
		acc.frequency++
	}

	rows := make([]domain.ABCRow, 0, len(usage))
	totalValue := 0.0
	for itemID, acc := range usage {
		item, ok := byID[itemID]
		if !ok {
			continue
		}
		value := float64(acc.qty) * item.PurchasePrice
		totalValue += value
		rows = append(rows, domain.ABCRow{
			ItemID:     item.ID,
			ItemCode:   item.ItemCode,
			ItemName:   item.Name,
			TotalQty:   acc.qty,
			UnitPrice:  item.PurchasePrice,
			TotalValue: round2(value),
			Frequency:  acc.frequency,
		})
	}

	slices.SortFunc(rows, func(a, b domain.ABCRow) int {
		if a.TotalValue != b.TotalValue {
			if a.TotalValue > b.TotalValue {
				return -1
			}
			return 1
		}
		return cmpString(a.ItemCode, b.ItemCode)
	})

	cumulative := 0.0
	for i := range rows {
		if totalValue > 0 {
			cumulative += rows[i].TotalValue
			rows[i].ValuePercent = round2(rows[i].TotalValue / totalValue * 100)
			rows[i].CumulativePercent = round2(cumulative / totalValue * 100)
		}
		// Thresholds use <=, so a boundary tie lands in the stricter class.
		switch {
		case rows[i].CumulativePercent <= 80:
			rows[i].Class = domain.ABCClassA
		case rows[i].CumulativePercent <= 95:
			rows[i].Class = domain.ABCClassB
		default:
			rows[i].Class = domain.ABCClassC
		}
	}

	_ = e.cache.Set(ctx, key, rows, e.cacheTTL)
	return rows, nil
}

func (e *Engine) PriceComparison(ctx context.Context, locationID string) ([]domain.PriceComparisonRow, error) {
	_, items, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}
	supplierNames, err := e.supplierNames(ctx)
	if err != nil {
		return nil, err
	}
	categoryNames, err := e.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	groups := map[string][]domain.Item{}
	groupNames := make([]string, 0, 16)
	for _, item := range items {
		if !item.Active {
			continue
		}
		name := categoryNames[item.CategoryID]
		if name == "" {
			name = "Uncategorized"
		}
		if _, ok := groups[name]; !ok {
			groupNames = append(groupNames, name)
		}
		groups[name] = append(groups[name], item)
	}
	slices.Sort(groupNames)

	rows := make([]domain.PriceComparisonRow, 0, len(items))
	for _, name := range groupNames {
		group := groups[name]
		if len(group) < 2 {
			continue
		}

		sum := 0.0
		minPrice := group[0].PurchasePrice
		maxPrice := group[0].PurchasePrice
		for _, item := range group {
			sum += item.PurchasePrice
			if item.PurchasePrice < minPrice {
				minPrice = item.PurchasePrice
			}
			if item.PurchasePrice > maxPrice {
				maxPrice = item.PurchasePrice
			}
		}
		avg := sum / float64(len(group))

		for _, item := range group {
			diff := 0.0
			if avg > 0 {
				diff = round2((item.PurchasePrice - avg) / avg * 100)
			}
			status := domain.PriceStatusAverage
			if diff > 10 {
				status = domain.PriceStatusHigh
			} else if diff < -10 {
				status = domain.PriceStatusLow
			}
			supplierName := supplierNames[item.SupplierID]
			if supplierName == "" {
				supplierName = "N/A"
			}
			rows = append(rows, domain.PriceComparisonRow{
				ItemID:           item.ID,
				ItemCode:         item.ItemCode,
				ItemName:         item.Name,
				SupplierID:       item.SupplierID,
				SupplierName:     supplierName,
				CategoryName:     name,
				Price:            item.PurchasePrice,
				TaxPercent:       item.TaxPercent,
				CategoryAvgPrice: round2(avg),
				CategoryMinPrice: minPrice,
				CategoryMaxPrice: maxPrice,
				PriceDiffPercent: diff,
				PriceStatus:      status,
			})
		}
	}
	return rows, nil
}

func (e *Engine) SeasonalTrends(ctx context.Context, locationID string) ([]domain.SeasonalPoint, error) {
	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{Type: domain.MovementCheckOut})
	if err != nil {
		return nil, err
	}
	byID, _, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}

	type seasonKey struct {
		itemID string
		month  int
	}
	type seasonAcc struct {
		qty         int64
		occurrences int64
	}
	buckets := map[seasonKey]*seasonAcc{}
	for _, entry := range entries {
		// Month-of-year histogram across all years.
		key := seasonKey{itemID: entry.ItemID, month: int(entry.CreatedAt.Month())}
		acc, ok := buckets[key]
		if !ok {
			acc = &seasonAcc{}
			buckets[key] = acc
		}
		acc.qty += entry.Quantity
		acc.occurrences++
	}

	points := make([]domain.SeasonalPoint, 0, len(buckets))
	for key, acc := range buckets {
		points = append(points, domain.SeasonalPoint{
			ItemID:      key.itemID,
			ItemName:    byID[key.itemID].Name,
			Month:       key.month,
			TotalQty:    acc.qty,
			Occurrences: acc.occurrences,
			AvgQty:      round2(float64(acc.qty) / float64(acc.occurrences)),
		})
	}
	slices.SortFunc(points, func(a, b domain.SeasonalPoint) int {
		if c := cmpString(a.ItemName, b.ItemName); c != 0 {
			return c
		}
		return a.Month - b.Month
	})
	return points, nil
}

func (e *Engine) DailyLog(ctx context.Context, locationID string, day time.Time, movementType string, itemID string) ([]domain.LedgerRow, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1).Add(-time.Millisecond)
	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{
		From:   &from,
		To:     &to,
		Type:   movementType,
		ItemID: itemID,
	})
	if err != nil {
		return nil, err
	}
	byID, _, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}
	locationName := ""
	if location, err := e.repo.GetLocationByID(ctx, locationID); err == nil {
		locationName = location.Name
	}

	rows := make([]domain.LedgerRow, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		rows = append(rows, buildLedgerRow(entries[i], byID[entries[i].ItemID], locationName))
	}
	return rows, nil
}

func (e *Engine) MonthlyLog(ctx context.Context, locationID string) ([]domain.MonthlyLogRow, error) {
	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{})
	if err != nil {
		return nil, err
	}

	type monthAcc struct {
		checkIn  int64
		checkOut int64
	}
	byMonth := map[string]*monthAcc{}
	months := make([]string, 0, 12)
	for _, entry := range entries {
		month := entry.CreatedAt.Format("2006-01")
		acc, ok := byMonth[month]
		if !ok {
			acc = &monthAcc{}
			byMonth[month] = acc
			months = append(months, month)
		}
		if entry.Type == domain.MovementCheckIn {
			acc.checkIn += entry.Quantity
		} else {
			acc.checkOut += entry.Quantity
		}
	}

	slices.Sort(months)
	rows := make([]domain.MonthlyLogRow, 0, len(months))
	for _, month := range months {
		acc := byMonth[month]
		rows = append(rows, domain.MonthlyLogRow{
			Month:    month,
			CheckIn:  acc.checkIn,
			CheckOut: acc.checkOut,
			TotalQty: acc.checkIn + acc.checkOut,
		})
	}
	return rows, nil
}

// Consumption ranks items by checkout frequency; order is "high" for the
// most frequently consumed, "low" for the least.
func (e *Engine) Consumption(ctx context.Context, locationID string, filter domain.ReportFilter, order string) ([]domain.ConsumptionRow, error) {
	filter.Type = domain.MovementCheckOut
	entries, err := e.repo.ListLedger(ctx, locationID, filter)
	if err != nil {
		return nil, err
	}
	byID, _, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}

	type consumptionAcc struct {
		qty       int64
		frequency int64
	}
	usage := map[string]*consumptionAcc{}
	for _, entry := range entries {
		acc, ok := usage[entry.ItemID]
		if !ok {
			acc = &consumptionAcc{}
			usage[entry.ItemID] = acc
		}
		acc.qty += entry.Quantity
		acc.frequency++
	}

	rows := make([]domain.ConsumptionRow, 0, len(usage))
	for itemID, acc := range usage {
		item := byID[itemID]
		rows = append(rows, domain.ConsumptionRow{
			ItemID:    itemID,
			ItemCode:  item.ItemCode,
			ItemName:  item.Name,
			TotalQty:  acc.qty,
			Frequency: acc.frequency,
		})
	}

	descending := order != "low"
	slices.SortFunc(rows, func(a, b domain.ConsumptionRow) int {
		if a.Frequency != b.Frequency {
			if (a.Frequency > b.Frequency) == descending {
				return -1
			}
			return 1
		}
		return cmpString(a.ItemCode, b.ItemCode)
	})
	if len(rows) > 20 {
		rows = rows[:20]
	}
	return rows, nil
}

func (e *Engine) StockReport(ctx context.Context, locationID string, supplierID string, categoryID string, status string) ([]domain.StockReportRow, error) {
	_, items, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}
	supplierNames, err := e.supplierNames(ctx)
	if err != nil {
		return nil, err
	}
	categoryNames, err := e.categoryNames(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]domain.StockReportRow, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		if supplierID != "" && item.SupplierID != supplierID {
			continue
		}
		if categoryID != "" && item.CategoryID != categoryID {
			continue
		}
		rowStatus := domain.StockReportInStock
		if item.CurrentQty <= item.ROL {
			rowStatus = domain.StockReportLow
		}
		if status != "" && rowStatus != status {
			continue
		}
		rows = append(rows, domain.StockReportRow{
			ItemCode:     item.ItemCode,
			ItemName:     item.Name,
			CurrentQty:   item.CurrentQty,
			OpeningQty:   item.OpeningQty,
			ROL:          item.ROL,
			MOQ:          item.MOQ,
			EOQ:          item.EOQ,
			Status:       rowStatus,
			SupplierName: supplierNames[item.SupplierID],
			CategoryName: categoryNames[item.CategoryID],
		})
	}
	return rows, nil
}

func (e *Engine) TransactionActivity(ctx context.Context, locationID string) (*domain.TransactionActivityReport, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{From: &from, To: &now})
	if err != nil {
		return nil, err
	}

	hourly := make([]domain.HourlyActivity, 24)
	for hour := range hourly {
		hourly[hour].Hour = hour
	}
	byUser := map[string]*domain.UserActivity{}
	userNames := make([]string, 0, 8)
	report := domain.TransactionActivityReport{}

	for _, entry := range entries {
		hour := entry.CreatedAt.Hour()
		hourly[hour].Count++
		report.Summary.TotalTransactions++
		if entry.Type == domain.MovementCheckIn {
			hourly[hour].CheckIn += entry.Quantity
			report.Summary.TotalCheckIn++
		} else {
			hourly[hour].CheckOut += entry.Quantity
			report.Summary.TotalCheckOut++
		}

		user := entry.TakenBy
		if user == "" {
			user = "Unknown"
		}
		acc, ok := byUser[user]
		if !ok {
			acc = &domain.UserActivity{User: user}
			byUser[user] = acc
			userNames = append(userNames, user)
		}
		acc.Total++
		if entry.Type == domain.MovementCheckIn {
			acc.CheckIn++
		} else {
			acc.CheckOut++
		}
	}

	peakHour := 0
	for hour, acc := range hourly {
		if acc.Count > hourly[peakHour].Count {
			peakHour = hour
		}
	}
	report.Summary.AvgPerDay = round2(float64(report.Summary.TotalTransactions) / 30)
	report.Summary.PeakHour = fmt.Sprintf("%d:00", peakHour)
	report.Summary.PeakHourCount = hourly[peakHour].Count

	slices.Sort(userNames)
	users := make([]domain.UserActivity, 0, len(userNames))
	topUser := ""
	var topTotal int64
	for _, name := range userNames {
		acc := byUser[name]
		users = append(users, *acc)
		if acc.Total > topTotal {
			topTotal = acc.Total
			topUser = name
		}
	}

	report.Hourly = hourly
	report.ByUser = users
	report.TopUser = topUser
	return &report, nil
}

func (e *Engine) SmartInsights(ctx context.Context, locationID string) ([]domain.Insight, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	entries, err := e.repo.ListLedger(ctx, locationID, domain.ReportFilter{From: &from, To: &now})
	if err != nil {
		return nil, err
	}
	_, items, err := e.itemIndex(ctx, locationID)
	if err != nil {
		return nil, err
	}

	cutoff7 := now.AddDate(0, 0, -7)
	type insightAcc struct {
		total int64
		week  int64
	}
	usage := map[string]*insightAcc{}
	for _, entry := range entries {
		acc, ok := usage[entry.ItemID]
		if !ok {
			acc = &insightAcc{}
			usage[entry.ItemID] = acc
		}
		acc.total++
		if !entry.CreatedAt.Before(cutoff7) {
			acc.week++
		}
	}

	insights := make([]domain.Insight, 0, len(items))
	for _, item := range items {
		if !item.Active {
			continue
		}
		acc := usage[item.ID]
		switch {
		case item.CurrentQty <= item.ROL:
			insights = append(insights, domain.Insight{
				ItemID:   item.ID,
				ItemName: item.Name,
				Kind:     domain.InsightReorder,
				Severity: domain.UrgencyHigh,
				Message:  fmt.Sprintf("%s is at or below its reorder level (%d left). Reorder immediately.", item.Name, item.CurrentQty),
			})
		case acc == nil || acc.total == 0:
			insights = append(insights, domain.Insight{
				ItemID:   item.ID,
				ItemName: item.Name,
				Kind:     domain.InsightDormant,
				Severity: domain.UrgencyMedium,
				Message:  fmt.Sprintf("%s had no movement in the last 30 days. Review if the item is still needed.", item.Name),
			})
		case acc.week > 10:
			insights = append(insights, domain.Insight{
				ItemID:   item.ID,
				ItemName: item.Name,
				Kind:     domain.InsightHighUsage,
				Severity: domain.UrgencyLow,
				Message:  fmt.Sprintf("%s moved %d times in the last 7 days. Consider increasing stock levels.", item.Name, acc.week),
			})
		}
	}
	return insights, nil
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
