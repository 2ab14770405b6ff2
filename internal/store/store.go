package store

import (
	"context"
	"errors"
	"time"

	"gudangku/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidMovement   = errors.New("invalid movement")
)

// MovementApplied is the result of one committed stock movement: the ledger
// entry and the item state after the commit.
type MovementApplied struct {
	Entry domain.TransactionLogEntry
	Item  domain.Item
}

// Repository is the persistence boundary. ApplyMovement must serialize the
// read-modify-write per item inside the store itself and commit the item
// update and the ledger append as one unit, or neither.
type Repository interface {
	CreateLocation(ctx context.Context, location domain.Location) (*domain.Location, error)
	GetLocationByID(ctx context.Context, locationID string) (*domain.Location, error)
	ListLocations(ctx context.Context) ([]domain.Location, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	ListSuppliers(ctx context.Context) ([]domain.Supplier, error)

	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)

	CreateTaxRate(ctx context.Context, tax domain.TaxRate) (*domain.TaxRate, error)
	ListTaxRates(ctx context.Context) ([]domain.TaxRate, error)

	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	GetItemByID(ctx context.Context, locationID string, itemID string) (*domain.Item, error)
	GetItemByBarcode(ctx context.Context, locationID string, barcode string) (*domain.Item, error)
	ListItems(ctx context.Context, locationID string, includeInactive bool) ([]domain.Item, error)
	UpdateItem(ctx context.Context, locationID string, itemID string, update domain.ItemUpdateRequest) (*domain.Item, error)
	UpdateItemThresholds(ctx context.Context, locationID string, itemID string, thresholds domain.ItemThresholds) (*domain.Item, error)
	DeactivateItem(ctx context.Context, locationID string, itemID string) (*domain.Item, error)

	ApplyMovement(ctx context.Context, movement domain.Movement) (*MovementApplied, error)

	// ListLedger returns all matching entries in commit order, oldest first.
	// Page and Limit on the filter are ignored.
	ListLedger(ctx context.Context, locationID string, filter domain.ReportFilter) ([]domain.TransactionLogEntry, error)
	// PageLedger returns one page of matching entries, newest first, plus
	// the total match count before pagination.
	PageLedger(ctx context.Context, locationID string, filter domain.ReportFilter) ([]domain.TransactionLogEntry, int, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, locationID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
