package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udaykiran1867/tce-project1/internal/platform/db"
)

// Repository persists products, stock, movements and student records in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertProduct(ctx context.Context, p Product) (Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	UpdateProduct(ctx context.Context, p Product) error
	DeleteProduct(ctx context.Context, id int64) error

	InsertStock(ctx context.Context, s Stock) error
	GetStockForUpdate(ctx context.Context, productID int64) (Stock, error)
	UpdateStock(ctx context.Context, s Stock) error
	DeleteStock(ctx context.Context, productID int64) error
	ListStock(ctx context.Context, forUpdate bool) ([]Stock, error)

	InsertMovement(ctx context.Context, m Movement) (remarksStored bool, err error)
	DeleteMovements(ctx context.Context, productID int64) error
	MovementTotals(ctx context.Context) (map[int64]int, error)

	InsertRecord(ctx context.Context, r Record) (Record, error)
	GetRecordForUpdate(ctx context.Context, id int64) (Record, error)
	UpdateRecord(ctx context.Context, r Record) error
	DeleteRecord(ctx context.Context, id int64) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read committed transaction. Stock rows
// are locked with FOR UPDATE so mutations of one product serialise.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const productStockSelect = `SELECT p.id, p.name, p.description, p.price, p.image_url, p.created_at,
	COALESCE(s.master_count, 0), COALESCE(s.available_count, 0)
FROM products p
LEFT JOIN product_stock s ON s.product_id = p.id`

// ListProducts returns every product with its ledger values ordered by name.
func (r *Repository) ListProducts(ctx context.Context) ([]ProductStock, error) {
	rows, err := r.pool.Query(ctx, productStockSelect+` ORDER BY p.name, p.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ProductStock
	for rows.Next() {
		var ps ProductStock
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.Description, &ps.Price, &ps.ImageURL, &ps.CreatedAt,
			&ps.MasterCount, &ps.AvailableCount); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// GetProductStock returns one product with its ledger values.
func (r *Repository) GetProductStock(ctx context.Context, id int64) (ProductStock, error) {
	var ps ProductStock
	err := r.pool.QueryRow(ctx, productStockSelect+` WHERE p.id = $1`, id).Scan(&ps.ID, &ps.Name, &ps.Description,
		&ps.Price, &ps.ImageURL, &ps.CreatedAt, &ps.MasterCount, &ps.AvailableCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductStock{}, ErrProductNotFound
	}
	return ps, err
}

const recordColumns = `id, product_id, student_name, usn, phone_number, section, transaction_type, quantity,
	issue_date, return_date, created_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var txType string
	err := row.Scan(&rec.ID, &rec.ProductID, &rec.StudentName, &rec.USN, &rec.PhoneNumber, &rec.Section,
		&txType, &rec.Quantity, &rec.IssueDate, &rec.ReturnDate, &rec.CreatedAt)
	rec.Type = TransactionType(txType)
	return rec, err
}

// ListRecords returns every student record newest first.
func (r *Repository) ListRecords(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+recordColumns+` FROM student_transactions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRecord loads one student record.
func (r *Repository) GetRecord(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM student_transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (r *txRepo) InsertProduct(ctx context.Context, p Product) (Product, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO products (name, description, price, image_url)
VALUES ($1, $2, $3, $4) RETURNING id, created_at`, p.Name, p.Description, p.Price, p.ImageURL).Scan(&p.ID, &p.CreatedAt)
	return p, err
}

func (r *txRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, name, description, price, image_url, created_at FROM products WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return p, err
}

func (r *txRepo) UpdateProduct(ctx context.Context, p Product) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET price = $2, image_url = $3 WHERE id = $1`, p.ID, p.Price, p.ImageURL)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepo) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepo) InsertStock(ctx context.Context, s Stock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO product_stock (product_id, master_count, available_count, updated_at)
VALUES ($1, $2, $3, NOW())`, s.ProductID, s.MasterCount, s.AvailableCount)
	return err
}

func (r *txRepo) GetStockForUpdate(ctx context.Context, productID int64) (Stock, error) {
	var s Stock
	err := r.tx.QueryRow(ctx, `SELECT product_id, master_count, available_count, updated_at
FROM product_stock WHERE product_id = $1 FOR UPDATE`, productID).Scan(&s.ProductID, &s.MasterCount, &s.AvailableCount, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stock{}, ErrStockMissing
	}
	return s, err
}

func (r *txRepo) UpdateStock(ctx context.Context, s Stock) error {
	_, err := r.tx.Exec(ctx, `UPDATE product_stock SET master_count = $2, available_count = $3, updated_at = NOW()
WHERE product_id = $1`, s.ProductID, s.MasterCount, s.AvailableCount)
	if db.HasCode(err, db.CodeCheckViolation) {
		return ErrInsufficientStock
	}
	return err
}

func (r *txRepo) DeleteStock(ctx context.Context, productID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM product_stock WHERE product_id = $1`, productID)
	return err
}

func (r *txRepo) ListStock(ctx context.Context, forUpdate bool) ([]Stock, error) {
	query := `SELECT product_id, master_count, available_count, updated_at FROM product_stock ORDER BY product_id`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rows, err := r.tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Stock
	for rows.Next() {
		var s Stock
		if err := rows.Scan(&s.ProductID, &s.MasterCount, &s.AvailableCount, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertMovement appends a log entry. A remark is written inside a savepoint;
// when the column is missing the savepoint is rolled back and the entry is
// written without it.
func (r *txRepo) InsertMovement(ctx context.Context, m Movement) (bool, error) {
	if m.Remarks == nil {
		return false, r.insertMovement(ctx, r.tx, m, false)
	}
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("inventory: savepoint: %w", err)
	}
	err = r.insertMovement(ctx, sp, m, true)
	if err == nil {
		return true, sp.Commit(ctx)
	}
	_ = sp.Rollback(ctx)
	if !db.HasCode(err, db.CodeUndefinedColumn) {
		return false, err
	}
	return false, r.insertMovement(ctx, r.tx, m, false)
}

func (r *txRepo) insertMovement(ctx context.Context, tx pgx.Tx, m Movement, withRemarks bool) error {
	if withRemarks {
		_, err := tx.Exec(ctx, `INSERT INTO inventory_logs (product_id, action_type, quantity_changed, reference_id, remarks, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`, m.ProductID, string(m.Action), m.Quantity, m.ReferenceID, m.Remarks, m.CreatedAt)
		return err
	}
	_, err := tx.Exec(ctx, `INSERT INTO inventory_logs (product_id, action_type, quantity_changed, reference_id, created_at)
VALUES ($1, $2, $3, $4, $5)`, m.ProductID, string(m.Action), m.Quantity, m.ReferenceID, m.CreatedAt)
	return err
}

func (r *txRepo) DeleteMovements(ctx context.Context, productID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM inventory_logs WHERE product_id = $1`, productID)
	return err
}

// MovementTotals sums signed quantities per product. Markers carry zero and
// drop out of the sum.
func (r *txRepo) MovementTotals(ctx context.Context) (map[int64]int, error) {
	rows, err := r.tx.Query(ctx, `SELECT product_id, COALESCE(SUM(quantity_changed), 0) FROM inventory_logs GROUP BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]int)
	for rows.Next() {
		var productID int64
		var total int64
		if err := rows.Scan(&productID, &total); err != nil {
			return nil, err
		}
		out[productID] = int(total)
	}
	return out, rows.Err()
}

func (r *txRepo) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO student_transactions (product_id, student_name, usn, phone_number, section,
	transaction_type, quantity, issue_date, return_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at`,
		rec.ProductID, rec.StudentName, rec.USN, rec.PhoneNumber, rec.Section, string(rec.Type), rec.Quantity,
		rec.IssueDate, rec.ReturnDate).Scan(&rec.ID, &rec.CreatedAt)
	if db.HasCode(err, db.CodeForeignKeyViolation) {
		return Record{}, ErrProductNotFound
	}
	return rec, err
}

func (r *txRepo) GetRecordForUpdate(ctx context.Context, id int64) (Record, error) {
	rec, err := scanRecord(r.tx.QueryRow(ctx, `SELECT `+recordColumns+` FROM student_transactions WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	return rec, err
}

func (r *txRepo) UpdateRecord(ctx context.Context, rec Record) error {
	_, err := r.tx.Exec(ctx, `UPDATE student_transactions SET student_name = $2, usn = $3, phone_number = $4, section = $5,
	transaction_type = $6, quantity = $7, issue_date = $8, return_date = $9 WHERE id = $1`,
		rec.ID, rec.StudentName, rec.USN, rec.PhoneNumber, rec.Section, string(rec.Type), rec.Quantity,
		rec.IssueDate, rec.ReturnDate)
	return err
}

func (r *txRepo) DeleteRecord(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM student_transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
