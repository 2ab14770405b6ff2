package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

// Store is an in-memory Repository for dev/demo mode and tests. The
// store-wide write lock is what serializes concurrent movements against the
// same item: ApplyMovement runs its whole read-modify-write under it.
type Store struct {
	mu              sync.RWMutex
	locationsByID   map[string]domain.Location
	suppliersByID   map[string]domain.Supplier
	categoriesByID  map[string]domain.Category
	taxesByID       map[string]domain.TaxRate
	itemsByID       map[string]domain.Item
	ledger          []domain.TransactionLogEntry
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout. These credentials are never used in production
// (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		locationsByID:   map[string]domain.Location{},
		suppliersByID:   map[string]domain.Supplier{},
		categoriesByID:  map[string]domain.Category{},
		taxesByID:       map[string]domain.TaxRate{},
		itemsByID:       map[string]domain.Item{},
		usersByUsername: seedUsers(),
	}
}

// NewSeeded returns a store preloaded with a small warehouse catalog so the
// server is usable without PostgreSQL.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	gudang := domain.Location{ID: "loc-utama", Name: "Gudang Utama", Address: "Jl. Industri No. 12, Bandung", CreatedAt: now}
	cabang := domain.Location{ID: "loc-cabang", Name: "Gudang Cabang Timur", Address: "Jl. Raya Timur 88, Bandung", CreatedAt: now}
	s.locationsByID[gudang.ID] = gudang
	s.locationsByID[cabang.ID] = cabang

	for _, supplier := range []domain.Supplier{
		{ID: "sup-sejahtera", Name: "PT Sumber Sejahtera", ContactPerson: "Budi Santoso", Phone: "0811-220-0101", CreatedAt: now},
		{ID: "sup-makmur", Name: "CV Makmur Jaya", ContactPerson: "Siti Rahma", Phone: "0811-220-0202", CreatedAt: now},
		{ID: "sup-abadi", Name: "UD Abadi", ContactPerson: "Agus Wijaya", Phone: "0811-220-0303", CreatedAt: now},
	} {
		s.suppliersByID[supplier.ID] = supplier
	}

	for _, category := range []domain.Category{
		{ID: "cat-sembako", Name: "Sembako", Description: "Bahan pokok", CreatedAt: now},
		{ID: "cat-minuman", Name: "Minuman", CreatedAt: now},
		{ID: "cat-kemasan", Name: "Kemasan", Description: "Plastik dan kardus", CreatedAt: now},
	} {
		s.categoriesByID[category.ID] = category
	}

	s.taxesByID["tax-ppn"] = domain.TaxRate{ID: "tax-ppn", Name: "PPN", Percent: 11, CreatedAt: now}
	s.taxesByID["tax-bebas"] = domain.TaxRate{ID: "tax-bebas", Name: "Bebas Pajak", Percent: 0, CreatedAt: now}

	seeds := []struct {
		code       string
		name       string
		barcode    string
		unit       string
		qty        int64
		price      float64
		taxPercent float64
		rol        int64
		supplierID string
		categoryID string
		taxID      string
	}{
		{"BRS-5KG", "Beras Premium 5kg", "8991001000011", "karung", 120, 68000, 0, 30, "sup-sejahtera", "cat-sembako", "tax-bebas"},
		{"MNY-1L", "Minyak Goreng 1L", "8991001000028", "botol", 200, 17500, 11, 50, "sup-sejahtera", "cat-sembako", "tax-ppn"},
		{"GUL-1KG", "Gula Pasir 1kg", "8991001000035", "pak", 150, 14500, 0, 40, "sup-makmur", "cat-sembako", "tax-bebas"},
		{"TPG-1KG", "Tepung Terigu 1kg", "8991001000042", "pak", 90, 11000, 11, 25, "sup-makmur", "cat-sembako", "tax-ppn"},
		{"AIR-600", "Air Mineral 600ml", "8991001000059", "dus", 300, 38000, 11, 60, "sup-abadi", "cat-minuman", "tax-ppn"},
		{"TEH-BOT", "Teh Botol 450ml", "8991001000066", "dus", 180, 52000, 11, 40, "sup-abadi", "cat-minuman", "tax-ppn"},
		{"KOP-SCH", "Kopi Sachet 10x20g", "8991001000073", "renceng", 140, 12500, 11, 35, "sup-makmur", "cat-minuman", "tax-ppn"},
		{"PLS-KCL", "Kantong Plastik Kecil", "", "pak", 400, 8500, 11, 80, "sup-abadi", "cat-kemasan", "tax-ppn"},
		{"KRD-SDG", "Kardus Sedang", "", "lembar", 250, 4200, 11, 60, "sup-abadi", "cat-kemasan", "tax-ppn"},
		{"GRM-500", "Garam 500g", "8991001000097", "pak", 110, 6000, 0, 30, "sup-sejahtera", "cat-sembako", "tax-bebas"},
	}
	for _, seed := range seeds {
		item := domain.Item{
			ID:            xid.New("item"),
			LocationID:    gudang.ID,
			ItemCode:      seed.code,
			Name:          seed.name,
			Barcode:       seed.barcode,
			QuantityType:  seed.unit,
			OpeningQty:    seed.qty,
			CurrentQty:    seed.qty,
			PurchasePrice: seed.price,
			TaxPercent:    seed.taxPercent,
			ROL:           seed.rol,
			MOQ:           seed.rol / 2,
			EOQ:           seed.rol * 2,
			SupplierID:    seed.supplierID,
			CategoryID:    seed.categoryID,
			TaxID:         seed.taxID,
			Active:        true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		item.TotalAmount = item.UnitCost()
		s.itemsByID[item.ID] = item
	}

	return s
}

func (s *Store) CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error) {
	location.Name = strings.TrimSpace(location.Name)
	if location.Name == "" {
		return nil, store.ErrInvalidMovement
	}
	if location.ID == "" {
		location.ID = xid.New("loc")
	}
	if location.CreatedAt.IsZero() {
		location.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.locationsByID[location.ID]; exists {
		return nil, store.ErrInvalidMovement
	}
	s.locationsByID[location.ID] = location
	saved := location
	return &saved, nil
}

func (s *Store) GetLocationByID(ctx context.Context, locationID string) (*domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	location, ok := s.locationsByID[locationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	saved := location
	return &saved, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locations := make([]domain.Location, 0, len(s.locationsByID))
	for _, location := range s.locationsByID {
		locations = append(locations, location)
	}
	slices.SortFunc(locations, func(a, b domain.Location) int {
		return cmpString(a.Name, b.Name)
	})
	return locations, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidMovement
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.suppliersByID[supplier.ID] = supplier
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidMovement
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.categoriesByID[category.ID] = category
	saved := category
	return &saved, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	categories := make([]domain.Category, 0, len(s.categoriesByID))
	for _, category := range s.categoriesByID {
		categories = append(categories, category)
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmpString(a.Name, b.Name)
	})
	return categories, nil
}

func (s *Store) CreateTaxRate(ctx context.Context, tax domain.TaxRate) (*domain.TaxRate, error) {
	tax.Name = strings.TrimSpace(tax.Name)
	if tax.Name == "" || tax.Percent < 0 {
		return nil, store.ErrInvalidMovement
	}
	if tax.ID == "" {
		tax.ID = xid.New("tax")
	}
	if tax.CreatedAt.IsZero() {
		tax.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.taxesByID[tax.ID] = tax
	saved := tax
	return &saved, nil
}

func (s *Store) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	taxes := make([]domain.TaxRate, 0, len(s.taxesByID))
	for _, tax := range s.taxesByID {
		taxes = append(taxes, tax)
	}
	slices.SortFunc(taxes, func(a, b domain.TaxRate) int {
		return cmpString(a.Name, b.Name)
	})
	return taxes, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.LocationID == "" || item.ItemCode == "" || item.Name == "" {
		return nil, store.ErrInvalidMovement
	}
	if item.OpeningQty < 0 || item.PurchasePrice < 0 || item.TaxPercent < 0 {
		return nil, store.ErrInvalidMovement
	}
	if item.ID == "" {
		item.ID = xid.New("item")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = item.CreatedAt
	item.CurrentQty = item.OpeningQty
	item.Active = true
	item.TotalAmount = item.UnitCost()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.locationsByID[item.LocationID]; !exists {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.itemsByID {
		if existing.LocationID != item.LocationID {
			continue
		}
		if existing.ItemCode == item.ItemCode {
			return nil, store.ErrInvalidMovement
		}
		if item.Barcode != "" && existing.Barcode == item.Barcode {
			return nil, store.ErrInvalidMovement
		}
	}
	s.itemsByID[item.ID] = item
	saved := item
	return &saved, nil
}

func (s *Store) GetItemByID(ctx context.Context, locationID string, itemID string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.itemsByID[itemID]
	if !ok || item.LocationID != locationID {
		return nil, store.ErrNotFound
	}
	saved := item
	return &saved, nil
}

func (s *Store) GetItemByBarcode(ctx context.Context, locationID string, barcode string) (*domain.Item, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.itemsByID {
		if item.LocationID == locationID && item.Barcode == barcode {
			saved := item
			return &saved, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListItems(ctx context.Context, locationID string, includeInactive bool) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.Item, 0, len(s.itemsByID))
	for _, item := range s.itemsByID {
		if item.LocationID != locationID {
			continue
		}
		if !includeInactive && !item.Active {
			continue
		}
		items = append(items, item)
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return cmpString(a.ItemCode, b.ItemCode)
	})
	return items, nil
}

func (s *Store) UpdateItem(ctx context.Context, locationID string, itemID string, update domain.ItemUpdateRequest) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.itemsByID[itemID]
	if !ok || item.LocationID != locationID {
		return nil, store.ErrNotFound
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, store.ErrInvalidMovement
		}
		item.Name = name
	}
	if update.Barcode != nil {
		barcode := strings.TrimSpace(*update.Barcode)
		if barcode != "" {
			for _, existing := range s.itemsByID {
				if existing.ID != itemID && existing.LocationID == locationID && existing.Barcode == barcode {
					return nil, store.ErrInvalidMovement
				}
			}
		}
		item.Barcode = barcode
	}
	if update.QuantityType != nil {
		item.QuantityType = strings.TrimSpace(*update.QuantityType)
	}
	if update.PurchasePrice != nil {
		if *update.PurchasePrice < 0 {
			return nil, store.ErrInvalidMovement
		}
		item.PurchasePrice = *update.PurchasePrice
	}
	if update.TaxPercent != nil {
		if *update.TaxPercent < 0 {
			return nil, store.ErrInvalidMovement
		}
		item.TaxPercent = *update.TaxPercent
	}
	if update.SupplierID != nil {
		item.SupplierID = *update.SupplierID
	}
	if update.CategoryID != nil {
		item.CategoryID = *update.CategoryID
	}
	if update.TaxID != nil {
		item.TaxID = *update.TaxID
	}
	item.TotalAmount = item.UnitCost()
	item.UpdatedAt = time.Now().UTC()
	s.itemsByID[itemID] = item
	saved := item
	return &saved, nil
}

func (s *Store) UpdateItemThresholds(ctx context.Context, locationID string, itemID string, thresholds domain.ItemThresholds) (*domain.Item, error) {
	if thresholds.ROL < 0 || thresholds.MOQ < 0 || thresholds.EOQ < 0 {
		return nil, store.ErrInvalidMovement
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.itemsByID[itemID]
	if !ok || item.LocationID != locationID {
		return nil, store.ErrNotFound
	}
	item.ROL = thresholds.ROL
	item.MOQ = thresholds.MOQ
	item.EOQ = thresholds.EOQ
	item.UpdatedAt = time.Now().UTC()
	s.itemsByID[itemID] = item
	saved := item
	return &saved, nil
}

func (s *Store) DeactivateItem(ctx context.Context, locationID string, itemID string) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.itemsByID[itemID]
	if !ok || item.LocationID != locationID {
		return nil, store.ErrNotFound
	}
	item.Active = false
	item.UpdatedAt = time.Now().UTC()
	s.itemsByID[itemID] = item
	saved := item
	return &saved, nil
}

func (s *Store) ApplyMovement(ctx context.Context, movement domain.Movement) (*store.MovementApplied, error) {
	if movement.Quantity < 1 {
		return nil, store.ErrInvalidMovement
	}
	if movement.Type != domain.MovementCheckIn && movement.Type != domain.MovementCheckOut {
		return nil, store.ErrInvalidMovement
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.itemsByID[movement.ItemID]
	if !ok || item.LocationID != movement.LocationID || !item.Active {
		return nil, store.ErrNotFound
	}

	newQty := item.CurrentQty
	if movement.Type == domain.MovementCheckIn {
		newQty += movement.Quantity
	} else {
		newQty -= movement.Quantity
	}
	if newQty < 0 {
		return nil, store.ErrInsufficientStock
	}

	now := time.Now().UTC()
	item.CurrentQty = newQty
	item.UpdatedAt = now
	s.itemsByID[item.ID] = item

	quantityType := movement.QuantityType
	if quantityType == "" {
		quantityType = item.QuantityType
	}
	entry := domain.TransactionLogEntry{
		ID:           xid.New("txlog"),
		ItemID:       item.ID,
		LocationID:   item.LocationID,
		Type:         movement.Type,
		Quantity:     movement.Quantity,
		QuantityType: quantityType,
		RemainingQty: newQty,
		Price:        item.PurchasePrice,
		TaxPercent:   item.TaxPercent,
		TakenBy:      movement.TakenBy,
		Remarks:      movement.Remarks,
		CreatedAt:    now,
	}
	s.ledger = append(s.ledger, entry)

	return &store.MovementApplied{Entry: entry, Item: item}, nil
}

func (s *Store) ListLedger(ctx context.Context, locationID string, filter domain.ReportFilter) ([]domain.TransactionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterLedger(locationID, filter), nil
}

func (s *Store) PageLedger(ctx context.Context, locationID string, filter domain.ReportFilter) ([]domain.TransactionLogEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := s.filterLedger(locationID, filter)
	total := len(matched)
	slices.Reverse(matched)

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	start := (page - 1) * limit
	if start >= total {
		return []domain.TransactionLogEntry{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// filterLedger must be called with at least the read lock held. Results are
// in commit order, oldest first, in a fresh slice.
func (s *Store) filterLedger(locationID string, filter domain.ReportFilter) []domain.TransactionLogEntry {
	matched := make([]domain.TransactionLogEntry, 0, len(s.ledger))
	for _, entry := range s.ledger {
		if entry.LocationID != locationID {
			continue
		}
		if filter.ItemID != "" && entry.ItemID != filter.ItemID {
			continue
		}
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if filter.From != nil && entry.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && entry.CreatedAt.After(*filter.To) {
			continue
		}
		if filter.SupplierID != "" || filter.CategoryID != "" {
			item, ok := s.itemsByID[entry.ItemID]
			if !ok {
				continue
			}
			if filter.SupplierID != "" && item.SupplierID != filter.SupplierID {
				continue
			}
			if filter.CategoryID != "" && item.CategoryID != filter.CategoryID {
				continue
			}
		}
		matched = append(matched, entry)
	}
	return matched
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, locationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.LocationID != locationID {
			continue
		}
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		logs = append(logs, entry)
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidMovement
	}
	if user.Role == "" {
		user.Role = "staff"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrInvalidMovement
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidMovement
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
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
