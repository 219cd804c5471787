package purchases

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/harbor-erp/harbor-erp/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence. It also fronts the two
// data store procedures used by refund breakdown and eligibility.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetPurchase returns purchase header and line items. AmountPaid is the sum
// of recorded payments for the purchase.
func (r *Repository) GetPurchase(ctx context.Context, id int64) (Purchase, error) {
	const headerSQL = `SELECT p.id, p.number, p.supplier_id, p.total_amount,
		COALESCE((SELECT SUM(amount) FROM purchase_payments WHERE purchase_id = p.id), 0) AS amount_paid,
		p.created_at
	FROM purchases p WHERE p.id = $1`

	var purchase Purchase
	err := r.pool.QueryRow(ctx, headerSQL, id).Scan(
		&purchase.ID, &purchase.Number, &purchase.SupplierID,
		&purchase.TotalAmount, &purchase.AmountPaid, &purchase.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, err
	}

	const linesSQL = `SELECT id, purchase_id, product_id, qty, received_qty, returned_qty, purchase_price
	FROM purchase_line_items WHERE purchase_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, linesSQL, id)
	if err != nil {
		return Purchase{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var line LineItem
		if err := rows.Scan(&line.ID, &line.PurchaseID, &line.ProductID,
			&line.Qty, &line.ReceivedQty, &line.ReturnedQty, &line.PurchasePrice); err != nil {
			return Purchase{}, err
		}
		purchase.Lines = append(purchase.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Purchase{}, err
	}
	return purchase, nil
}

// ListPurchases returns purchases with supplier name, paid total and
// aggregated line quantities.
func (r *Repository) ListPurchases(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseListItem, int, error) {
	countSQL := `SELECT COUNT(*) FROM purchases p WHERE 1=1`
	args := []any{}
	argNum := 1

	if filters.SupplierID > 0 {
		countSQL += ` AND p.supplier_id = $` + itoa(argNum)
		args = append(args, filters.SupplierID)
		argNum++
	}
	if filters.Search != "" {
		countSQL += ` AND p.number ILIKE $` + itoa(argNum)
		args = append(args, "%"+filters.Search+"%")
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dataSQL := `SELECT p.id, p.number, p.supplier_id, COALESCE(s.name, '') AS supplier_name,
		p.total_amount,
		COALESCE((SELECT SUM(amount) FROM purchase_payments WHERE purchase_id = p.id), 0) AS amount_paid,
		COALESCE((SELECT SUM(qty) FROM purchase_line_items WHERE purchase_id = p.id), 0) AS ordered_qty,
		COALESCE((SELECT SUM(received_qty) FROM purchase_line_items WHERE purchase_id = p.id), 0) AS received_qty,
		COALESCE((SELECT SUM(returned_qty) FROM purchase_line_items WHERE purchase_id = p.id), 0) AS returned_qty,
		p.created_at
	FROM purchases p
	LEFT JOIN suppliers s ON s.id = p.supplier_id
	WHERE 1=1`

	args2 := []any{}
	argNum2 := 1
	if filters.SupplierID > 0 {
		dataSQL += ` AND p.supplier_id = $` + itoa(argNum2)
		args2 = append(args2, filters.SupplierID)
		argNum2++
	}
	if filters.Search != "" {
		dataSQL += ` AND p.number ILIKE $` + itoa(argNum2)
		args2 = append(args2, "%"+filters.Search+"%")
		argNum2++
	}

	dataSQL += ` ORDER BY ` + sortOrderPurchases(filters.SortBy, filters.SortDir) +
		` LIMIT $` + itoa(argNum2) + ` OFFSET $` + itoa(argNum2+1)
	args2 = append(args2, limit, offset)

	rows, err := r.pool.Query(ctx, dataSQL, args2...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []PurchaseListItem
	for rows.Next() {
		var item PurchaseListItem
		if err := rows.Scan(&item.ID, &item.Number, &item.SupplierID, &item.SupplierName,
			&item.TotalAmount, &item.AmountPaid,
			&item.OrderedQty, &item.ReceivedQty, &item.ReturnedQty, &item.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// GetReturn fetches a purchase return by ID.
func (r *Repository) GetReturn(ctx context.Context, id int64) (Return, error) {
	const query = `SELECT id, purchase_id, total_amount, refund_status, COALESCE(refund_amount, 0), created_at
	FROM purchase_returns WHERE id = $1`

	var ret Return
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ret.ID, &ret.PurchaseID, &ret.TotalAmount, &ret.RefundStatus, &ret.RefundAmount, &ret.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Return{}, ErrNotFound
		}
		return Return{}, err
	}
	return ret, nil
}

// ListReturns fetches all returns recorded against a purchase.
func (r *Repository) ListReturns(ctx context.Context, purchaseID int64) ([]Return, error) {
	const query = `SELECT id, purchase_id, total_amount, refund_status, COALESCE(refund_amount, 0), created_at
	FROM purchase_returns WHERE purchase_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var returns []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.PurchaseID, &ret.TotalAmount, &ret.RefundStatus, &ret.RefundAmount, &ret.CreatedAt); err != nil {
			return nil, err
		}
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return returns, nil
}

// ListEvents fetches the purchase timeline in chronological order.
func (r *Repository) ListEvents(ctx context.Context, purchaseID int64) ([]Event, error) {
	const query = `SELECT id, purchase_id, event_type, created_at
	FROM purchase_events WHERE purchase_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.PurchaseID, &evt.Type, &evt.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// CalculateRefundBreakdown invokes the data store breakdown procedure.
func (r *Repository) CalculateRefundBreakdown(ctx context.Context, purchaseID int64, amount decimal.Decimal) ([]BreakdownRow, error) {
	const query = `SELECT payment_id, refund_amount, payment_method, payment_date
	FROM calculate_refund_breakdown($1, $2)`

	rows, err := r.pool.Query(ctx, query, purchaseID, amount)
	if err != nil {
		return nil, fmt.Errorf("purchases: calculate_refund_breakdown: %w", err)
	}
	defer rows.Close()

	var result []BreakdownRow
	for rows.Next() {
		var row BreakdownRow
		if err := rows.Scan(&row.PaymentID, &row.RefundAmount, &row.PaymentMethod, &row.PaymentDate); err != nil {
			return nil, fmt.Errorf("purchases: calculate_refund_breakdown: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("purchases: calculate_refund_breakdown: %w", err)
	}
	return result, nil
}

// IsReturnRefundEligible invokes the data store eligibility procedure.
func (r *Repository) IsReturnRefundEligible(ctx context.Context, purchaseID int64) (RefundEligibility, error) {
	const query = `SELECT eligible, COALESCE(reason, '') FROM is_return_refund_eligible($1)`

	var eligibility RefundEligibility
	if err := r.pool.QueryRow(ctx, query, purchaseID).Scan(&eligibility.Eligible, &eligibility.Reason); err != nil {
		return RefundEligibility{}, fmt.Errorf("purchases: is_return_refund_eligible: %w", err)
	}
	return eligibility, nil
}

func (tx *txRepo) UpdateReturnRefund(ctx context.Context, id int64, status RefundStatus, refundAmount decimal.Decimal) error {
	if refundAmount.IsPositive() {
		_, err := tx.tx.Exec(ctx, `UPDATE purchase_returns SET refund_status=$1, refund_amount=$2 WHERE id=$3`, status, refundAmount, id)
		return err
	}
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_returns SET refund_status=$1 WHERE id=$2`, status, id)
	return err
}

func (tx *txRepo) InsertRefundTransaction(ctx context.Context, rt RefundTransaction) (int64, error) {
	const query = `INSERT INTO refund_transactions (return_id, payment_id, amount, method, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`

	var id int64
	err := tx.tx.QueryRow(ctx, query, rt.ReturnID, rt.PaymentID, rt.Amount, rt.Method, rt.Status, rt.CreatedAt).Scan(&id)
	return id, err
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

// sortOrderPurchases returns a safe ORDER BY clause for purchase listings.
func sortOrderPurchases(sortBy, sortDir string) string {
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	switch sortBy {
	case "number":
		return "p.number " + dir
	case "supplier":
		return "supplier_name " + dir
	case "total":
		return "p.total_amount " + dir
	case "paid":
		return "amount_paid " + dir
	default:
		return "p.created_at DESC"
	}
}
