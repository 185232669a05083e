package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udaykiran1867/tce-project1/internal/inventory"
	"github.com/udaykiran1867/tce-project1/internal/platform/db"
)

// LogEntry is a raw movement log row as exposed by the recent logs endpoint.
type LogEntry struct {
	ID              int64     `json:"id"`
	ProductID       int64     `json:"product_id"`
	ActionType      string    `json:"action_type"`
	QuantityChanged int       `json:"quantity_changed"`
	CreatedAt       time.Time `json:"created_at"`
	ReferenceID     *int64    `json:"reference_id"`
}

// DefectiveRemark is a defective write-off together with its note.
type DefectiveRemark struct {
	ID          int64     `json:"id"`
	ProductID   int64     `json:"productId"`
	ProductName string    `json:"productName"`
	Quantity    int       `json:"quantity"`
	Remark      *string   `json:"remark"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Repository reads report inputs from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MovementsBetween returns movement log entries with start <= created_at < end.
func (r *Repository) MovementsBetween(ctx context.Context, start, end time.Time) ([]inventory.Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, action_type, quantity_changed, reference_id, created_at
FROM inventory_logs WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.Movement
	for rows.Next() {
		var mv inventory.Movement
		var action string
		if err := rows.Scan(&mv.ID, &mv.ProductID, &action, &mv.Quantity, &mv.ReferenceID, &mv.CreatedAt); err != nil {
			return nil, err
		}
		mv.Action = inventory.ActionType(action)
		out = append(out, mv)
	}
	return out, rows.Err()
}

// RecordsBetween returns records whose effective date lies near [start, end).
// The bounds are widened by a day so callers can apply the exact timezone
// aware cut themselves.
func (r *Repository) RecordsBetween(ctx context.Context, start, end time.Time) ([]ProductRecord, error) {
	from := start.AddDate(0, 0, -1).Format("2006-01-02")
	to := end.AddDate(0, 0, 1).Format("2006-01-02")
	rows, err := r.pool.Query(ctx, `SELECT t.id, t.product_id, t.student_name, t.usn, t.phone_number, t.section,
	t.transaction_type, t.quantity, t.issue_date, t.return_date, t.created_at, COALESCE(p.name, '')
FROM student_transactions t
LEFT JOIN products p ON p.id = t.product_id
WHERE COALESCE(t.issue_date, t.created_at::date) BETWEEN $1::date AND $2::date
ORDER BY t.id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductRecord
	for rows.Next() {
		var rec ProductRecord
		var txType string
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.StudentName, &rec.USN, &rec.PhoneNumber, &rec.Section,
			&txType, &rec.Quantity, &rec.IssueDate, &rec.ReturnDate, &rec.CreatedAt, &rec.ProductName); err != nil {
			return nil, err
		}
		rec.Type = inventory.TransactionType(txType)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PriorTotals aggregates every movement before the cut-off by product and action.
func (r *Repository) PriorTotals(ctx context.Context, before time.Time) ([]PriorTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, action_type,
	COALESCE(SUM(ABS(quantity_changed)), 0), COALESCE(SUM(quantity_changed), 0)
FROM inventory_logs WHERE created_at < $1
GROUP BY product_id, action_type`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PriorTotal
	for rows.Next() {
		var t PriorTotal
		var action string
		if err := rows.Scan(&t.ProductID, &action, &t.Magnitude, &t.Net); err != nil {
			return nil, err
		}
		t.Action = inventory.ActionType(action)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Products lists the catalogue.
func (r *Repository) Products(ctx context.Context) ([]inventory.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, price, image_url, created_at FROM products ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []inventory.Product
	for rows.Next() {
		var p inventory.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecentLogs returns the newest movement log rows.
func (r *Repository) RecentLogs(ctx context.Context, limit int) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, action_type, quantity_changed, created_at, reference_id
FROM inventory_logs ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectLogs(rows)
}

// LogsBetween returns movement log rows in [start, end) oldest first.
func (r *Repository) LogsBetween(ctx context.Context, start, end time.Time) ([]LogEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, action_type, quantity_changed, created_at, reference_id
FROM inventory_logs WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id`, start, end)
	if err != nil {
		return nil, err
	}
	return collectLogs(rows)
}

func collectLogs(rows pgx.Rows) ([]LogEntry, error) {
	defer rows.Close()
	out := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ActionType, &e.QuantityChanged, &e.CreatedAt, &e.ReferenceID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DefectiveRemarks lists defective write-offs newest first. Databases
// without the remarks column yield entries with a nil remark.
func (r *Repository) DefectiveRemarks(ctx context.Context, limit int) ([]DefectiveRemark, error) {
	out, err := r.defectiveRemarks(ctx, limit, `l.remarks`)
	if db.HasCode(err, db.CodeUndefinedColumn) {
		return r.defectiveRemarks(ctx, limit, `NULL::text`)
	}
	return out, err
}

func (r *Repository) defectiveRemarks(ctx context.Context, limit int, remarkExpr string) ([]DefectiveRemark, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.id, l.product_id, COALESCE(p.name, ''), l.quantity_changed, `+remarkExpr+`, l.created_at
FROM inventory_logs l
LEFT JOIN products p ON p.id = l.product_id
WHERE l.action_type = $1
ORDER BY l.created_at DESC, l.id DESC LIMIT $2`, string(inventory.ActionDefectiveRemoved), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []DefectiveRemark{}
	for rows.Next() {
		var d DefectiveRemark
		if err := rows.Scan(&d.ID, &d.ProductID, &d.ProductName, &d.Quantity, &d.Remark, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Quantity = abs(d.Quantity)
		out = append(out, d)
	}
	return out, rows.Err()
}
