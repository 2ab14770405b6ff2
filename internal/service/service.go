package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo store.Repository
}

func New(repo store.Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateLocation(ctx context.Context, req domain.LocationCreateRequest) (domain.Location, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Location{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Location{}, store.ErrInvalidMovement
	}

	saved, err := s.repo.CreateLocation(ctx, domain.Location{
		Name:      req.Name,
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.Location{}, err
	}

	s.logAudit(ctx, saved.ID, "location_create", "location", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListLocations(ctx context.Context) ([]domain.Location, error) {
	return s.repo.ListLocations(ctx)
}

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Supplier{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Supplier{}, store.ErrInvalidMovement
	}

	saved, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		Name:          req.Name,
		ContactPerson: strings.TrimSpace(req.ContactPerson),
		Email:         strings.TrimSpace(req.Email),
		Phone:         strings.TrimSpace(req.Phone),
		Address:       strings.TrimSpace(req.Address),
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, "", "supplier_create", "supplier", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Category{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, store.ErrInvalidMovement
	}

	saved, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "", "category_create", "category", saved.ID, fmt.Sprintf("name=%s", saved.Name))
	return *saved, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateTaxRate(ctx context.Context, req domain.TaxRateCreateRequest) (domain.TaxRate, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.TaxRate{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Percent < 0 || req.Percent > 100 {
		return domain.TaxRate{}, store.ErrInvalidMovement
	}

	saved, err := s.repo.CreateTaxRate(ctx, domain.TaxRate{
		Name:      req.Name,
		Percent:   req.Percent,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.TaxRate{}, err
	}

	s.logAudit(ctx, "", "tax_rate_create", "tax_rate", saved.ID, fmt.Sprintf("name=%s,percent=%.2f", saved.Name, saved.Percent))
	return *saved, nil
}

func (s *Service) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	return s.repo.ListTaxRates(ctx)
}

func (s *Service) CreateItem(ctx context.Context, locationID string, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	req.ItemCode = strings.ToUpper(strings.TrimSpace(req.ItemCode))
	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.QuantityType = strings.TrimSpace(req.QuantityType)
	if req.QuantityType == "" {
		req.QuantityType = "pcs"
	}

	if req.ItemCode == "" || req.Name == "" {
		return domain.Item{}, store.ErrInvalidMovement
	}
	if req.OpeningQty < 0 || req.PurchasePrice < 0 || req.TaxPercent < 0 || req.TaxPercent > 100 {
		return domain.Item{}, store.ErrInvalidMovement
	}
	if req.ROL < 0 || req.MOQ < 0 || req.EOQ < 0 {
		return domain.Item{}, store.ErrInvalidMovement
	}

	now := time.Now().UTC()
	item := domain.Item{
		LocationID:    locationID,
		ItemCode:      req.ItemCode,
		Name:          req.Name,
		Barcode:       req.Barcode,
		QuantityType:  req.QuantityType,
		OpeningQty:    req.OpeningQty,
		CurrentQty:    req.OpeningQty,
		PurchasePrice: req.PurchasePrice,
		TaxPercent:    req.TaxPercent,
		ROL:           req.ROL,
		MOQ:           req.MOQ,
		EOQ:           req.EOQ,
		SupplierID:    strings.TrimSpace(req.SupplierID),
		CategoryID:    strings.TrimSpace(req.CategoryID),
		TaxID:         strings.TrimSpace(req.TaxID),
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	item.TotalAmount = item.UnitCost()

	saved, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, locationID, "item_create", "item", saved.ID, fmt.Sprintf("code=%s,opening_qty=%d,price=%.2f", saved.ItemCode, saved.OpeningQty, saved.PurchasePrice))
	return *saved, nil
}

func (s *Service) GetItem(ctx context.Context, locationID string, itemID string) (domain.Item, error) {
	item, err := s.repo.GetItemByID(ctx, locationID, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) GetItemByBarcode(ctx context.Context, locationID string, barcode string) (domain.Item, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Item{}, store.ErrInvalidMovement
	}
	item, err := s.repo.GetItemByBarcode(ctx, locationID, barcode)
	if err != nil {
		return domain.Item{}, err
	}
	return *item, nil
}

func (s *Service) ListItems(ctx context.Context, locationID string, includeInactive bool) ([]domain.ItemView, error) {
	items, err := s.repo.ListItems(ctx, locationID, includeInactive)
	if err != nil {
		return nil, err
	}
	suppliers, err := s.repo.ListSuppliers(ctx)
	if err != nil {
		return nil, err
	}
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	taxes, err := s.repo.ListTaxRates(ctx)
	if err != nil {
		return nil, err
	}

	supplierNames := make(map[string]string, len(suppliers))
	for _, supplier := range suppliers {
		supplierNames[supplier.ID] = supplier.Name
	}
	categoryNames := make(map[string]string, len(categories))
	for _, category := range categories {
		categoryNames[category.ID] = category.Name
	}
	taxNames := make(map[string]string, len(taxes))
	for _, tax := range taxes {
		taxNames[tax.ID] = tax.Name
	}
	locationName := ""
	if location, err := s.repo.GetLocationByID(ctx, locationID); err == nil {
		locationName = location.Name
	}

	views := make([]domain.ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, domain.ItemView{
			Item:         item,
			SupplierName: supplierNames[item.SupplierID],
			CategoryName: categoryNames[item.CategoryID],
			TaxName:      taxNames[item.TaxID],
			LocationName: locationName,
		})
	}
	return views, nil
}

func (s *Service) UpdateItem(ctx context.Context, locationID string, itemID string, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Item{}, store.ErrInvalidMovement
		}
		req.Name = &name
	}
	if req.PurchasePrice != nil && *req.PurchasePrice < 0 {
		return domain.Item{}, store.ErrInvalidMovement
	}
	if req.TaxPercent != nil && (*req.TaxPercent < 0 || *req.TaxPercent > 100) {
		return domain.Item{}, store.ErrInvalidMovement
	}

	saved, err := s.repo.UpdateItem(ctx, locationID, itemID, req)
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, locationID, "item_update", "item", saved.ID, fmt.Sprintf("code=%s,price=%.2f,tax=%.2f", saved.ItemCode, saved.PurchasePrice, saved.TaxPercent))
	return *saved, nil
}

func (s *Service) UpdateItemThresholds(ctx context.Context, locationID string, itemID string, thresholds domain.ItemThresholds) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	if thresholds.ROL < 0 || thresholds.MOQ < 0 || thresholds.EOQ < 0 {
		return domain.Item{}, store.ErrInvalidMovement
	}

	saved, err := s.repo.UpdateItemThresholds(ctx, locationID, itemID, thresholds)
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, locationID, "item_thresholds_update", "item", saved.ID, fmt.Sprintf("rol=%d,moq=%d,eoq=%d", saved.ROL, saved.MOQ, saved.EOQ))
	return *saved, nil
}

func (s *Service) DeactivateItem(ctx context.Context, locationID string, itemID string) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	saved, err := s.repo.DeactivateItem(ctx, locationID, itemID)
	if err != nil {
		return domain.Item{}, err
	}

	s.logAudit(ctx, locationID, "item_deactivate", "item", saved.ID, fmt.Sprintf("code=%s", saved.ItemCode))
	return *saved, nil
}

func (s *Service) CheckIn(ctx context.Context, locationID string, req domain.MovementRequest) (domain.MovementResult, error) {
	return s.applyMovement(ctx, locationID, domain.MovementCheckIn, req)
}

func (s *Service) CheckOut(ctx context.Context, locationID string, req domain.MovementRequest) (domain.MovementResult, error) {
	return s.applyMovement(ctx, locationID, domain.MovementCheckOut, req)
}

func (s *Service) applyMovement(ctx context.Context, locationID string, movementType string, req domain.MovementRequest) (domain.MovementResult, error) {
	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" || req.Quantity < 1 {
		return domain.MovementResult{}, store.ErrInvalidMovement
	}

	actor, _ := ActorFromContext(ctx)
	applied, err := s.repo.ApplyMovement(ctx, domain.Movement{
		LocationID:   locationID,
		ItemID:       req.ItemID,
		Type:         movementType,
		Quantity:     req.Quantity,
		QuantityType: strings.TrimSpace(req.QuantityType),
		TakenBy:      actor.Username,
		Remarks:      strings.TrimSpace(req.Remarks),
	})
	if err != nil {
		return domain.MovementResult{}, err
	}

	s.logAudit(ctx, locationID, movementType, "item", applied.Item.ID, fmt.Sprintf("qty=%d,remaining=%d", applied.Entry.Quantity, applied.Entry.RemainingQty))

	return domain.MovementResult{
		Entry: applied.Entry,
		Item:  applied.Item,
		Price: applied.Entry.Price,
	}, nil
}

// BatchCheckIn applies each movement independently. A failed item never
// aborts the rest; failures keep the input order.
func (s *Service) BatchCheckIn(ctx context.Context, locationID string, req domain.BatchMovementRequest) (domain.BatchResult, error) {
	return s.applyBatch(ctx, locationID, domain.MovementCheckIn, req)
}

func (s *Service) BatchCheckOut(ctx context.Context, locationID string, req domain.BatchMovementRequest) (domain.BatchResult, error) {
	return s.applyBatch(ctx, locationID, domain.MovementCheckOut, req)
}

func (s *Service) applyBatch(ctx context.Context, locationID string, movementType string, req domain.BatchMovementRequest) (domain.BatchResult, error) {
	if len(req.Items) == 0 {
		return domain.BatchResult{}, store.ErrInvalidMovement
	}

	result := domain.BatchResult{
		Applied: make([]domain.MovementResult, 0, len(req.Items)),
		Failed:  make([]domain.BatchFailure, 0),
	}
	for _, item := range req.Items {
		applied, err := s.applyMovement(ctx, locationID, movementType, item)
		if err != nil {
			reason, ok := batchFailureReason(err)
			if !ok {
				return domain.BatchResult{}, err
			}
			result.Failed = append(result.Failed, domain.BatchFailure{
				ItemID: item.ItemID,
				Reason: reason,
			})
			continue
		}
		result.Applied = append(result.Applied, applied)
	}
	result.Count = len(result.Applied)
	return result, nil
}

// batchFailureReason maps per-item errors to a payload reason. Anything else
// is a store-level failure and aborts the whole batch.
func batchFailureReason(err error) (string, bool) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "item not found", true
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient stock", true
	case errors.Is(err, store.ErrInvalidMovement):
		return "invalid movement", true
	default:
		return "", false
	}
}

func (s *Service) DashboardStats(ctx context.Context, locationID string) (domain.DashboardStats, error) {
	items, err := s.repo.ListItems(ctx, locationID, false)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.DashboardStats{
		TotalItems: int64(len(items)),
		TotalUsers: int64(len(users)),
	}
	for _, item := range items {
		if item.CurrentQty <= item.ROL {
			stats.LowStockAlerts++
		}
	}
	return stats, nil
}

func (s *Service) RecentTransactions(ctx context.Context, locationID string, limit int) ([]domain.TransactionLogEntry, error) {
	if limit < 1 {
		limit = 10
	}
	entries, _, err := s.repo.PageLedger(ctx, locationID, domain.ReportFilter{Page: 1, Limit: limit})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) LowStockAlerts(ctx context.Context, locationID string) ([]domain.LowStockAlert, error) {
	items, err := s.repo.ListItems(ctx, locationID, false)
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.LowStockAlert, 0, 16)
	for _, item := range items {
		if item.CurrentQty > item.ROL {
			continue
		}
		alerts = append(alerts, domain.LowStockAlert{
			ItemID:     item.ID,
			ItemCode:   item.ItemCode,
			ItemName:   item.Name,
			CurrentQty: item.CurrentQty,
			ROL:        item.ROL,
		})
	}
	return alerts, nil
}

func (s *Service) TodayStats(ctx context.Context, locationID string) (domain.TodayStats, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	entries, err := s.repo.ListLedger(ctx, locationID, domain.ReportFilter{From: &from, To: &now})
	if err != nil {
		return domain.TodayStats{}, err
	}

	var stats domain.TodayStats
	for _, entry := range entries {
		if entry.Type == domain.MovementCheckIn {
			stats.CheckInQty += entry.Quantity
			stats.CheckInTx++
		} else {
			stats.CheckOutQty += entry.Quantity
			stats.CheckOutTx++
		}
	}
	return stats, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, locationID string, date string, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if strings.TrimSpace(date) == "" {
		from = time.Now().UTC().Add(-24 * time.Hour)
	} else {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, store.ErrInvalidMovement
		}
		from = parsed.UTC()
	}
	to := from.Add(24 * time.Hour)

	return s.repo.ListAuditLogs(ctx, locationID, from, to, limit)
}

func (s *Service) logAudit(ctx context.Context, locationID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		LocationID:    locationID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}
