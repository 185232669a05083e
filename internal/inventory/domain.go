package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/udaykiran1867/tce-project1/internal/shared"
)

// ActionType enumerates movement log entry kinds.
type ActionType string

const (
	// ActionCompanyPurchase records stock received from a supplier.
	ActionCompanyPurchase ActionType = "company_purchase"
	// ActionDefectiveRemoved records units written off as defective.
	ActionDefectiveRemoved ActionType = "defective_removed"
	// ActionStudentBorrow records units lent to a student.
	ActionStudentBorrow ActionType = "student_borrow"
	// ActionStudentReturn records borrowed units coming back.
	ActionStudentReturn ActionType = "student_return"
	// ActionStudentPurchase records units sold to a student.
	ActionStudentPurchase ActionType = "student_purchase"
	// ActionTransactionUpdated is a zero quantity marker written on record edits.
	ActionTransactionUpdated ActionType = "transaction_updated"
	// ActionTransactionDeleted is a zero quantity marker written on record deletes.
	ActionTransactionDeleted ActionType = "transaction_deleted"
	// ActionManualAdjustment carries a signed availability delta for ledger
	// writes that no other action type describes.
	ActionManualAdjustment ActionType = "manual_adjustment"
)

// TransactionType distinguishes borrow and purchase records.
type TransactionType string

const (
	// TransactionBorrowed marks a temporary loan.
	TransactionBorrowed TransactionType = "borrowed"
	// TransactionPurchased marks a permanent removal.
	TransactionPurchased TransactionType = "purchased"
)

// ParseTransactionType accepts both the stored and the short form.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "borrowed", "borrow":
		return TransactionBorrowed, nil
	case "purchased", "purchase":
		return TransactionPurchased, nil
	}
	return "", shared.Invalid("transaction_type", "must be borrowed or purchased")
}

// Product is catalogue data. Identity never changes after creation.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       *float64
	ImageURL    *string
	CreatedAt   time.Time
}

// Stock is the ledger row of a product.
type Stock struct {
	ProductID      int64
	MasterCount    int
	AvailableCount int
	UpdatedAt      time.Time
}

// ProductStock joins a product with its ledger row.
type ProductStock struct {
	Product
	MasterCount    int
	AvailableCount int
}

// Movement is one movement log entry.
type Movement struct {
	ID          int64
	ProductID   int64
	Action      ActionType
	Quantity    int
	ReferenceID *int64
	Remarks     *string
	CreatedAt   time.Time
}

// Record is a student borrow or purchase.
type Record struct {
	ID          int64
	ProductID   int64
	StudentName string
	USN         string
	PhoneNumber string
	Section     string
	Type        TransactionType
	Quantity    int
	IssueDate   *time.Time
	ReturnDate  *time.Time
	CreatedAt   time.Time
}

// Returned reports whether a return date is recorded. Any stored date counts,
// including one in the future.
func (r Record) Returned() bool {
	return r.ReturnDate != nil
}

// holding is how many units the record currently keeps out of availability.
func (r Record) holding() int {
	switch r.Type {
	case TransactionPurchased:
		return r.Quantity
	case TransactionBorrowed:
		if !r.Returned() {
			return r.Quantity
		}
	}
	return 0
}

// AddProductInput describes a new catalogue entry with its initial stock.
type AddProductInput struct {
	Name         string
	Description  string
	MasterCount  int
	Availability *int
	Price        *float64
	ImageURL     *string
}

// DetailsInput is a partial admin correction; nil fields are left unchanged.
type DetailsInput struct {
	Price        *float64
	ImageURL     *string
	MasterCount  *int
	Availability *int
}

// LedgerResult reports ledger values after a mutation.
type LedgerResult struct {
	ProductID      int64
	MasterCount    int
	AvailableCount int
	RemarksStored  bool
}

// CreateRecordInput describes a new borrow or purchase.
type CreateRecordInput struct {
	ProductID      int64
	StudentName    string
	USN            string
	PhoneNumber    string
	Section        string
	Type           TransactionType
	Quantity       int
	IssueDate      *time.Time
	ReturnDate     *time.Time
	IdempotencyKey string
}

// RecordPatch is a partial record edit. ClearReturn nulls the return date and
// wins over ReturnDate.
type RecordPatch struct {
	StudentName *string
	USN         *string
	PhoneNumber *string
	Section     *string
	Type        *TransactionType
	Quantity    *int
	IssueDate   *time.Time
	ReturnDate  *time.Time
	ClearReturn bool
}

// ReturnResult reports whether a return credited availability.
type ReturnResult struct {
	RecordID   int64
	Credited   bool
	ReturnDate time.Time
}

// Drift describes a product whose availability disagrees with its movement log.
type Drift struct {
	ProductID int64 `json:"productId"`
	Master    int   `json:"masterCount"`
	Stored    int   `json:"storedAvailable"`
	Replayed  int   `json:"replayedAvailable"`
	Repaired  bool  `json:"repaired"`
}

// Delta is replayed minus stored.
func (d Drift) Delta() int {
	return d.Replayed - d.Stored
}

var (
	// ErrProductNotFound is returned for unknown product ids.
	ErrProductNotFound = fmt.Errorf("inventory: product %w", shared.ErrNotFound)
	// ErrRecordNotFound is returned for unknown transaction ids.
	ErrRecordNotFound = fmt.Errorf("inventory: transaction %w", shared.ErrNotFound)
	// ErrStockMissing is returned when a product has no ledger row.
	ErrStockMissing = fmt.Errorf("%w: stock not found for product", shared.ErrConflict)
	// ErrInsufficientStock rejects mutations that would drive availability below zero.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient available stock", shared.ErrConflict)
	// ErrInsufficientForUpdate rejects transaction edits that cannot be satisfied.
	ErrInsufficientForUpdate = fmt.Errorf("%w: insufficient stock for this update", shared.ErrConflict)
	// ErrNotEnoughForBorrow rejects borrows larger than current availability.
	ErrNotEnoughForBorrow = fmt.Errorf("%w: not enough available stock", shared.ErrConflict)
	// ErrDuplicateRequest is returned while an identical idempotent request is still running.
	ErrDuplicateRequest = fmt.Errorf("%w: request with this idempotency key is in progress", shared.ErrConflict)
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseDate accepts RFC3339 timestamps and plain calendar dates. Empty input
// returns nil.
func ParseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, shared.Invalid(field, "must be a date (YYYY-MM-DD) or RFC3339 timestamp")
}
