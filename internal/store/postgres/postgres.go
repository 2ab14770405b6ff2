package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gudangku/backend/internal/domain"
	"gudangku/backend/internal/store"
	"gudangku/backend/internal/xid"
)

// Store is the PostgreSQL Repository. Per-item serialization for movements is
// enforced in the database: ApplyMovement runs a serializable transaction and
// locks the item row with SELECT ... FOR UPDATE before the read-modify-write.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO locations (id, name, address, created_at)
		VALUES ($1,$2,$3,$4)
	`, location.ID, location.Name, nullIfEmpty(location.Address), location.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidMovement
		}
		return nil, err
	}
	saved := location
	return &saved, nil
}

func (s *Store) GetLocationByID(ctx context.Context, locationID string) (*domain.Location, error) {
	var location domain.Location
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(address,''), created_at
		FROM locations
		WHERE id = $1
	`, locationID).Scan(&location.ID, &location.Name, &location.Address, &location.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	location.CreatedAt = location.CreatedAt.UTC()
	return &location, nil
}

func (s *Store) ListLocations(ctx context.Context) ([]domain.Location, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(address,''), created_at
		FROM locations
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	locations := make([]domain.Location, 0, 8)
	for rows.Next() {
		var location domain.Location
		if err := rows.Scan(&location.ID, &location.Name, &location.Address, &location.CreatedAt); err != nil {
			return nil, err
		}
		location.CreatedAt = location.CreatedAt.UTC()
		locations = append(locations, location)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact_person, email, phone, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.ContactPerson), nullIfEmpty(supplier.Email),
		nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidMovement
		}
		return nil, err
	}
	saved := supplier
	return &saved, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(contact_person,''), COALESCE(email,''), COALESCE(phone,''), COALESCE(address,''), created_at
		FROM suppliers
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 64)
	for rows.Next() {
		var supplier domain.Supplier
		if err := rows.Scan(&supplier.ID, &supplier.Name, &supplier.ContactPerson, &supplier.Email, &supplier.Phone, &supplier.Address, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, created_at)
		VALUES ($1,$2,$3,$4)
	`, category.ID, category.Name, nullIfEmpty(category.Description), category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidMovement
		}
		return nil, err
	}
	saved := category
	return &saved, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description,''), created_at
		FROM categories
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 32)
	for rows.Next() {
		var category domain.Category
		if err := rows.Scan(&category.ID, &category.Name, &category.Description, &category.CreatedAt); err != nil {
			return nil, err
		}
		category.CreatedAt = category.CreatedAt.UTC()
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_rates (id, name, percent, created_at)
		VALUES ($1,$2,$3,$4)
	`, tax.ID, tax.Name, tax.Percent, tax.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidMovement
		}
		return nil, err
	}
	saved := tax
	return &saved, nil
}

func (s *Store) ListTaxRates(ctx context.Context) ([]domain.TaxRate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, percent, created_at
		FROM tax_rates
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	taxes := make([]domain.TaxRate, 0, 8)
	for rows.Next() {
		var tax domain.TaxRate
		if err := rows.Scan(&tax.ID, &tax.Name, &tax.Percent, &tax.CreatedAt); err != nil {
			return nil, err
		}
		tax.CreatedAt = tax.CreatedAt.UTC()
		taxes = append(taxes, tax)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return taxes, nil
}

const itemColumns = `
	id, location_id, item_code, name, COALESCE(barcode,''), quantity_type,
	opening_qty, current_qty, purchase_price, tax_percent, total_amount,
	rol, moq, eoq, COALESCE(supplier_id,''), COALESCE(category_id,''),
	COALESCE(tax_id,''), active, created_at, updated_at`

func scanItem(scanner interface{ Scan(...any) error }) (domain.Item, error) {
	var item domain.Item
	err := scanner.Scan(
		&item.ID,
		&item.LocationID,
		&item.ItemCode,
		&item.Name,
		&item.Barcode,
		&item.QuantityType,
		&item.OpeningQty,
		&item.CurrentQty,
		&item.PurchasePrice,
		&item.TaxPercent,
		&item.TotalAmount,
		&item.ROL,
		&item.MOQ,
		&item.EOQ,
		&item.SupplierID,
		&item.CategoryID,
		&item.TaxID,
		&item.Active,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return item, err
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, location_id, item_code, name, barcode, quantity_type,
			opening_qty, current_qty, purchase_price, tax_percent, total_amount,
			rol, moq, eoq, supplier_id, category_id, tax_id, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, item.ID, item.LocationID, item.ItemCode, item.Name, nullIfEmpty(item.Barcode), item.QuantityType,
		item.OpeningQty, item.CurrentQty, item.PurchasePrice, item.TaxPercent, item.TotalAmount,
		item.ROL, item.MOQ, item.EOQ, nullIfEmpty(item.SupplierID), nullIfEmpty(item.CategoryID),
		nullIfEmpty(item.TaxID), item.Active, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidMovement
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	saved := item
	return &saved, nil
}

func (s *Store) GetItemByID(ctx context.Context, locationID string, itemID string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1 AND location_id = $2
	`, itemID, locationID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetItemByBarcode(ctx context.Context, locationID string, barcode string) (*domain.Item, error) {
	if barcode == "" {
		return nil, store.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE location_id = $1 AND barcode = $2
	`, locationID, barcode)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context, locationID string, includeInactive bool) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE location_id = $1
			AND ($2 OR active)
		ORDER BY item_code ASC
	`, locationID, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateItem(ctx context.Context, locationID string, itemID string, update domain.ItemUpdateRequest) (*domain.Item, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1 AND location_id = $2
		FOR UPDATE
	`, itemID, locationID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return nil, store.ErrInvalidMovement
		}
		item.Name = name
	}
	if update.Barcode != nil {
		item.Barcode = strings.TrimSpace(*update.Barcode)
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

	_, err = tx.ExecContext(ctx, `
		UPDATE items
		SET name = $3, barcode = $4, quantity_type = $5, purchase_price = $6,
			tax_percent = $7, total_amount = $8, supplier_id = $9,
			category_id = $10, tax_id = $11, updated_at = $12
		WHERE id = $1 AND location_id = $2
	`, item.ID, item.LocationID, item.Name, nullIfEmpty(item.Barcode), item.QuantityType,
		item.PurchasePrice, item.TaxPercent, item.TotalAmount, nullIfEmpty(item.SupplierID),
		nullIfEmpty(item.CategoryID), nullIfEmpty(item.TaxID), item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidMovement
		}
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateItemThresholds(ctx context.Context, locationID string, itemID string, thresholds domain.ItemThresholds) (*domain.Item, error) {
	if thresholds.ROL < 0 || thresholds.MOQ < 0 || thresholds.EOQ < 0 {
		return nil, store.ErrInvalidMovement
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE items
		SET rol = $3, moq = $4, eoq = $5, updated_at = now()
		WHERE id = $1 AND location_id = $2
		RETURNING `+itemColumns+`
	`, itemID, locationID, thresholds.ROL, thresholds.MOQ, thresholds.EOQ)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeactivateItem(ctx context.Context, locationID string, itemID string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE items
		SET active = false, updated_at = now()
		WHERE id = $1 AND location_id = $2
		RETURNING `+itemColumns+`
	`, itemID, locationID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (s *Store) ApplyMovement(ctx context.Context, movement domain.Movement) (*store.MovementApplied, error) {
	if movement.Quantity < 1 {
		return nil, store.ErrInvalidMovement
	}
	if movement.Type != domain.MovementCheckIn && movement.Type != domain.MovementCheckOut {
		return nil, store.ErrInvalidMovement
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = $1 AND location_id = $2 AND active
		FOR UPDATE
	`, movement.ItemID, movement.LocationID)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
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
	_, err = tx.ExecContext(ctx, `
		UPDATE items
		SET current_qty = $3, updated_at = $4
		WHERE id = $1 AND location_id = $2
	`, item.ID, item.LocationID, newQty, now)
	if err != nil {
		return nil, err
	}

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
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transaction_logs (
			id, item_id, location_id, type, qty, quantity_type, remaining_qty,
			price, tax_percent, taken_by, remarks, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, entry.ID, entry.ItemID, entry.LocationID, entry.Type, entry.Quantity, entry.QuantityType,
		entry.RemainingQty, entry.Price, entry.TaxPercent, entry.TakenBy, nullIfEmpty(entry.Remarks), entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	item.CurrentQty = newQty
	item.UpdatedAt = now
	return &store.MovementApplied{Entry: entry, Item: item}, nil
}

const ledgerFilterWhere = `
	t.location_id = $1
	AND ($2 = '' OR t.item_id = $2)
	AND ($3 = '' OR t.type = $3)
	AND ($4 = '' OR i.supplier_id = $4)
	AND ($5 = '' OR i.category_id = $5)
	AND ($6::timestamptz IS NULL OR t.created_at >= $6)
	AND ($7::timestamptz IS NULL OR t.created_at <= $7)`

func ledgerFilterArgs(locationID string, filter domain.ReportFilter) []any {
	return []any{
		locationID,
		filter.ItemID,
		filter.Type,
		filter.SupplierID,
		filter.CategoryID,
		nullTime(filter.From),
		nullTime(filter.To),
	}
}

func (s *Store) ListLedger(ctx context.Context, locationID string, filter domain.ReportFilter) ([]domain.TransactionLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.item_id, t.location_id, t.type, t.qty, t.quantity_type,
			t.remaining_qty, t.price, t.tax_percent, t.taken_by, COALESCE(t.remarks,''), t.created_at
		FROM transaction_logs t
		JOIN items i ON i.id = t.item_id
		WHERE `+ledgerFilterWhere+`
		ORDER BY t.created_at ASC, t.id ASC
	`, ledgerFilterArgs(locationID, filter)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerRows(rows)
}

func (s *Store) PageLedger(ctx context.Context, locationID string, filter domain.ReportFilter) ([]domain.TransactionLogEntry, int, error) {
	args := ledgerFilterArgs(locationID, filter)

	var total int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM transaction_logs t
		JOIN items i ON i.id = t.item_id
		WHERE `+ledgerFilterWhere+`
	`, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.item_id, t.location_id, t.type, t.qty, t.quantity_type,
			t.remaining_qty, t.price, t.tax_percent, t.taken_by, COALESCE(t.remarks,''), t.created_at
		FROM transaction_logs t
		JOIN items i ON i.id = t.item_id
		WHERE `+ledgerFilterWhere+`
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $8 OFFSET $9
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := scanLedgerRows(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func scanLedgerRows(rows *sql.Rows) ([]domain.TransactionLogEntry, error) {
	entries := make([]domain.TransactionLogEntry, 0, 64)
	for rows.Next() {
		var entry domain.TransactionLogEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.ItemID,
			&entry.LocationID,
			&entry.Type,
			&entry.Quantity,
			&entry.QuantityType,
			&entry.RemainingQty,
			&entry.Price,
			&entry.TaxPercent,
			&entry.TakenBy,
			&entry.Remarks,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, location_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.LocationID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, locationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE location_id = $1
			AND created_at >= $2
			AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, locationID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.LocationID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidMovement
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidMovement
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
