package domain

import (
	"math"
	"time"
)

type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type LocationCreateRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Supplier struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person,omitempty"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Address       string    `json:"address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
}

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type TaxRate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Percent   float64   `json:"percent"`
	CreatedAt time.Time `json:"created_at"`
}

type TaxRateCreateRequest struct {
	Name    string  `json:"name"`
	Percent float64 `json:"percent"`
}

// Item is the catalog master record for one stock-keeping unit at one
// location. CurrentQty is mutated only through movements; OpeningQty is the
// immutable baseline the ledger replays from.
type Item struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	ItemCode      string    `json:"item_code"`
	Name          string    `json:"name"`
	Barcode       string    `json:"barcode,omitempty"`
	QuantityType  string    `json:"quantityType"`
	OpeningQty    int64     `json:"opening_qty"`
	CurrentQty    int64     `json:"current_qty"`
	PurchasePrice float64   `json:"purchase_price"`
	TaxPercent    float64   `json:"tax_percent"`
	TotalAmount   float64   `json:"total_amount"`
	ROL           int64     `json:"rol"`
	MOQ           int64     `json:"moq"`
	EOQ           int64     `json:"eoq"`
	SupplierID    string    `json:"supplier_id,omitempty"`
	CategoryID    string    `json:"category_id,omitempty"`
	TaxID         string    `json:"tax_id,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UnitCost returns the tax-inclusive price of one unit.
func (i Item) UnitCost() float64 {
	return i.PurchasePrice + i.PurchasePrice*i.TaxPercent/100
}

type ItemCreateRequest struct {
	ItemCode      string  `json:"item_code"`
	Name          string  `json:"name"`
	Barcode       string  `json:"barcode"`
	QuantityType  string  `json:"quantityType"`
	OpeningQty    int64   `json:"opening_qty"`
	PurchasePrice float64 `json:"purchase_price"`
	TaxPercent    float64 `json:"tax_percent"`
	ROL           int64   `json:"rol"`
	MOQ           int64   `json:"moq"`
	EOQ           int64   `json:"eoq"`
	SupplierID    string  `json:"supplier_id"`
	CategoryID    string  `json:"category_id"`
	TaxID         string  `json:"tax_id"`
}

type ItemUpdateRequest struct {
	Name          *string  `json:"name,omitempty"`
	Barcode       *string  `json:"barcode,omitempty"`
	QuantityType  *string  `json:"quantityType,omitempty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	TaxPercent    *float64 `json:"tax_percent,omitempty"`
	SupplierID    *string  `json:"supplier_id,omitempty"`
	CategoryID    *string  `json:"category_id,omitempty"`
	TaxID         *string  `json:"tax_id,omitempty"`
}

type ItemThresholds struct {
	ROL int64 `json:"rol"`
	MOQ int64 `json:"moq"`
	EOQ int64 `json:"eoq"`
}

// ItemView is an item joined with the display names of its references.
type ItemView struct {
	Item
	SupplierName string `json:"supplier_name,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	TaxName      string `json:"tax_name,omitempty"`
	LocationName string `json:"location_name,omitempty"`
}

// TransactionLogEntry is one immutable ledger fact. RemainingQty is the
// item's quantity after this entry committed, never recomputed. Price and
// TaxPercent are snapshots of the item at movement time.
type TransactionLogEntry struct {
	ID           string    `json:"id"`
	ItemID       string    `json:"item_id"`
	LocationID   string    `json:"location_id"`
	Type         string    `json:"type"`
	Quantity     int64     `json:"quantity"`
	QuantityType string    `json:"quantityType"`
	RemainingQty int64     `json:"remaining_qty"`
	Price        float64   `json:"price"`
	TaxPercent   float64   `json:"tax_percent"`
	TakenBy      string    `json:"taken_by"`
	Remarks      string    `json:"remarks,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Movement is a validated request to apply one stock delta.
type Movement struct {
	LocationID   string
	ItemID       string
	Type         string
	Quantity     int64
	QuantityType string
	TakenBy      string
	Remarks      string
}

type MovementRequest struct {
	ItemID       string `json:"item_id"`
	Quantity     int64  `json:"quantity"`
	QuantityType string `json:"quantityType"`
	Remarks      string `json:"notes"`
}

type BatchMovementRequest struct {
	Items []MovementRequest `json:"items"`
}

type MovementResult struct {
	Entry TransactionLogEntry `json:"transaction"`
	Item  Item                `json:"item"`
	Price float64             `json:"price"`
}

type BatchFailure struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

type BatchResult struct {
	Applied []MovementResult `json:"items"`
	Count   int              `json:"count"`
	Failed  []BatchFailure   `json:"errors"`
}

// ReportFilter scopes ledger reads. The date range applies only when both
// ends are set; SupplierID and CategoryID filter on the joined item.
type ReportFilter struct {
	From       *time.Time
	To         *time.Time
	SupplierID string
	CategoryID string
	ItemID     string
	Type       string
	Page       int
	Limit      int
}

type TransactionSummary struct {
	TotalCheckInAmount  float64 `json:"total_check_in_amount"`
	TotalCheckOutAmount float64 `json:"total_check_out_amount"`
	Revenue             float64 `json:"revenue"`
	TotalTransactions   int64   `json:"total_transactions"`
	TotalCheckInQty     int64   `json:"total_check_in_qty"`
	TotalCheckOutQty    int64   `json:"total_check_out_qty"`
	TotalQuantity       int64   `json:"total_quantity"`
}

type LedgerRow struct {
	TransactionID string    `json:"transaction_id"`
	Date          time.Time `json:"date"`
	ItemID        string    `json:"item_id"`
	ItemName      string    `json:"item_name"`
	ItemCode      string    `json:"item_code"`
	Type          string    `json:"type"`
	Quantity      int64     `json:"quantity"`
	QuantityType  string    `json:"quantityType"`
	Price         float64   `json:"price"`
	TaxPercent    float64   `json:"tax_percent"`
	TaxAmount     float64   `json:"tax_amount"`
	TotalAmount   float64   `json:"total_amount"`
	Location      string    `json:"location"`
	TakenBy       string    `json:"taken_by"`
	Remarks       string    `json:"remarks,omitempty"`
}

type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

type LedgerPage struct {
	Rows       []LedgerRow `json:"rows"`
	Pagination Pagination  `json:"pagination"`
}

type DailyTrendPoint struct {
	Date     string  `json:"date"`
	CheckIn  float64 `json:"check_in"`
	CheckOut float64 `json:"check_out"`
}

type ProductQty struct {
	ItemName string `json:"item_name"`
	Quantity int64  `json:"quantity"`
}

type ChartReport struct {
	DailyTrend  []DailyTrendPoint `json:"daily_trend"`
	TopCheckIn  []ProductQty      `json:"top_check_in"`
	TopCheckOut []ProductQty      `json:"top_check_out"`
	TopProducts []ProductQty      `json:"top_products"`
}

type ItemAnalysisRow struct {
	ItemID          string     `json:"item_id"`
	ItemCode        string     `json:"item_code"`
	ItemName        string     `json:"item_name"`
	CurrentQty      int64      `json:"current_qty"`
	ROL             int64      `json:"rol"`
	MOQ             int64      `json:"moq"`
	EOQ             int64      `json:"eoq"`
	TotalCheckIn    int64      `json:"total_check_in"`
	TotalCheckOut   int64      `json:"total_check_out"`
	TurnoverRate    float64    `json:"turnover_rate"`
	SupplierName    string     `json:"supplier_name,omitempty"`
	CategoryName    string     `json:"category_name,omitempty"`
	LastTransaction *time.Time `json:"last_transaction,omitempty"`
}

// DaysToStockout is a projected day count. Unbounded means there is no
// recent usage to project from, so no stockout is foreseeable.
type DaysToStockout struct {
	Days      float64 `json:"days"`
	Unbounded bool    `json:"unbounded"`
}

func BoundedDays(days float64) DaysToStockout {
	return DaysToStockout{Days: math.Round(days*100) / 100}
}

func UnboundedDays() DaysToStockout {
	return DaysToStockout{Unbounded: true}
}

type ReorderRecommendation struct {
	ItemID            string         `json:"item_id"`
	ItemCode          string         `json:"item_code"`
	ItemName          string         `json:"item_name"`
	CurrentQty        int64          `json:"current_qty"`
	ROL               int64          `json:"rol"`
	MOQ               int64          `json:"moq"`
	EOQ               int64          `json:"eoq"`
	AvgDailyUsage     float64        `json:"avg_daily_usage"`
	DaysUntilStockout DaysToStockout `json:"days_until_stockout"`
	RecommendedROL    int64          `json:"recommended_rol"`
	Status            string         `json:"status"`
	ShouldReorder     bool           `json:"should_reorder"`
}

type PredictiveRow struct {
	ItemID                  string         `json:"item_id"`
	ItemCode                string         `json:"item_code"`
	ItemName                string         `json:"item_name"`
	CurrentQty              int64          `json:"current_qty"`
	AvgDailyUsage30         float64        `json:"avg_daily_usage_30"`
	AvgDailyUsage60         float64        `json:"avg_daily_usage_60"`
	Trend                   string         `json:"trend"`
	TrendPercent            float64        `json:"trend_percent"`
	PredictedDaysToStockout DaysToStockout `json:"predicted_days_to_stockout"`
	PredictedStockoutDate   *time.Time     `json:"predicted_stockout_date,omitempty"`
	Urgency                 string         `json:"urgency"`
}

type ABCRow struct {
	ItemID            string  `json:"item_id"`
	ItemCode          string  `json:"item_code"`
	ItemName          string  `json:"item_name"`
	TotalQty          int64   `json:"total_qty"`
	UnitPrice         float64 `json:"unit_price"`
	TotalValue        float64 `json:"total_value"`
	ValuePercent      float64 `json:"value_percent"`
	CumulativePercent float64 `json:"cumulative_percent"`
	Frequency         int64   `json:"frequency"`
	Class             string  `json:"class"`
}

type PriceComparisonRow struct {
	ItemID           string  `json:"item_id"`
	ItemCode         string  `json:"item_code"`
	ItemName         string  `json:"item_name"`
	SupplierID       string  `json:"supplier_id,omitempty"`
	SupplierName     string  `json:"supplier_name"`
	CategoryName     string  `json:"category_name"`
	Price            float64 `json:"price"`
	TaxPercent       float64 `json:"tax_percent"`
	CategoryAvgPrice float64 `json:"category_avg_price"`
	CategoryMinPrice float64 `json:"category_min_price"`
	CategoryMaxPrice float64 `json:"category_max_price"`
	PriceDiffPercent float64 `json:"price_diff_percent"`
	PriceStatus      string  `json:"price_status"`
}

type SeasonalPoint struct {
	ItemID      string  `json:"item_id"`
	ItemName    string  `json:"item_name"`
	Month       int     `json:"month"`
	TotalQty    int64   `json:"total_qty"`
	Occurrences int64   `json:"occurrences"`
	AvgQty      float64 `json:"avg_qty"`
}

type MonthlyLogRow struct {
	Month    string `json:"month"`
	CheckIn  int64  `json:"check_in"`
	CheckOut int64  `json:"check_out"`
	TotalQty int64  `json:"total_qty"`
}

type ConsumptionRow struct {
	ItemID    string `json:"item_id"`
	ItemCode  string `json:"item_code"`
	ItemName  string `json:"item_name"`
	TotalQty  int64  `json:"total_qty"`
	Frequency int64  `json:"frequency"`
}

type StockReportRow struct {
	ItemCode     string `json:"item_code"`
	ItemName     string `json:"item_name"`
	CurrentQty   int64  `json:"current_qty"`
	OpeningQty   int64  `json:"opening_qty"`
	ROL          int64  `json:"rol"`
	MOQ          int64  `json:"moq"`
	EOQ          int64  `json:"eoq"`
	Status       string `json:"status"`
	SupplierName string `json:"supplier_name,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
}

type HourlyActivity struct {
	Hour     int   `json:"hour"`
	CheckIn  int64 `json:"check_in"`
	CheckOut int64 `json:"check_out"`
	Count    int64 `json:"count"`
}

type UserActivity struct {
	User     string `json:"user"`
	CheckIn  int64  `json:"check_in"`
	CheckOut int64  `json:"check_out"`
	Total    int64  `json:"total"`
}

type ActivitySummary struct {
	TotalTransactions int64   `json:"total_transactions"`
	TotalCheckIn      int64   `json:"total_check_in"`
	TotalCheckOut     int64   `json:"total_check_out"`
	AvgPerDay         float64 `json:"avg_per_day"`
	PeakHour          string  `json:"peak_hour"`
	PeakHourCount     int64   `json:"peak_hour_count"`
}

type TransactionActivityReport struct {
	Hourly  []HourlyActivity `json:"hourly"`
	ByUser  []UserActivity   `json:"by_user"`
	TopUser string           `json:"top_user"`
	Summary ActivitySummary  `json:"summary"`
}

type Insight struct {
	ItemID   string `json:"item_id"`
	ItemName string `json:"item_name"`
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

type DashboardStats struct {
	TotalItems     int64 `json:"total_items"`
	LowStockAlerts int64 `json:"low_stock_alerts"`
	TotalUsers     int64 `json:"total_users"`
}

type TodayStats struct {
	CheckInQty  int64 `json:"check_in_qty"`
	CheckOutQty int64 `json:"check_out_qty"`
	CheckInTx   int64 `json:"check_in_tx"`
	CheckOutTx  int64 `json:"check_out_tx"`
}

type LowStockAlert struct {
	ItemID       string `json:"item_id"`
	ItemCode     string `json:"item_code"`
	ItemName     string `json:"item_name"`
	CurrentQty   int64  `json:"current_qty"`
	ROL          int64  `json:"rol"`
	SupplierName string `json:"supplier_name,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type StaffCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type StaffUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	LocationID    string    `json:"location_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	MovementCheckIn  = "checkin"
	MovementCheckOut = "checkout"
)

const (
	StockStatusCritical = "critical"
	StockStatusWarning  = "warning"
	StockStatusGood     = "good"
)

const (
	StockReportLow     = "Low Stock"
	StockReportInStock = "In Stock"
)

const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyMedium   = "medium"
	UrgencyLow      = "low"
)

const (
	ABCClassA = "A"
	ABCClassB = "B"
	ABCClassC = "C"
)

const (
	InsightReorder   = "reorder"
	InsightDormant   = "dormant"
	InsightHighUsage = "high_usage"
)

const (
	PriceStatusHigh    = "high"
	PriceStatusLow     = "low"
	PriceStatusAverage = "average"
)
