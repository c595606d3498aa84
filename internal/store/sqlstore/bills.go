package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tillbook/backend/internal/billing"
	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

// inChunk bounds the number of ids bound into one IN list.
const inChunk = 500

// SaveBill records a bill and takes its quantities out of stock in a single
// transaction. Either the bill, its lines and every stock decrement are
// committed together or nothing is.
func (s *Store) SaveBill(ctx context.Context, req domain.BillRequest) (*domain.Bill, error) {
	if err := store.ValidateBillRequest(req); err != nil {
		return nil, err
	}
	items, err := billing.MergeItems(req.Items, store.MaxQuantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx, "save bill")

	var customerID int64
	if err := tx.GetContext(ctx, &customerID, tx.Rebind(`SELECT id FROM customers WHERE id = ?`), req.CustomerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %d: %w", req.CustomerID, store.ErrNotFound)
		}
		return nil, err
	}

	products := make(map[int64]domain.Product, len(items))
	for _, id := range billing.ProductIDs(items) {
		var product domain.Product
		err := tx.GetContext(ctx, &product, tx.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`+s.d.lockClause), id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ProductNotFound(id)
		}
		if err != nil {
			return nil, err
		}
		products[id] = product
	}

	lines := make([]domain.BillLine, 0, len(items))
	for _, item := range items {
		product := products[item.ProductID]
		if product.Stock < item.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Available: product.Stock,
				Requested: item.Quantity,
			}
		}
		lines = append(lines, domain.BillLine{
			ProductID: product.ID,
			Name:      product.Name,
			SalePrice: product.SalePrice,
			Quantity:  item.Quantity,
		})
	}

	totals, err := billing.Compute(lines, float64(req.GST), req.Discount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	createdAt := time.Now().UTC()
	billID, err := s.insert(ctx, tx, `
		INSERT INTO bills (customer_id, subtotal_cents, discount_cents, gst_percent, gst_cents, total_cents, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, req.CustomerID, totals.Subtotal, totals.Discount, float64(req.GST), totals.GSTAmount, totals.Total, req.Date, createdAt)
	if err != nil {
		if s.d.isForeign(err) {
			return nil, fmt.Errorf("customer %d: %w", req.CustomerID, store.ErrNotFound)
		}
		return nil, err
	}

	for _, line := range lines {
		if _, err := s.exec(ctx, tx, `
			INSERT INTO bill_items (bill_id, product_id, name, sale_price_cents, quantity)
			VALUES (?, ?, ?, ?, ?)
		`, billID, line.ProductID, line.Name, line.SalePrice, line.Quantity); err != nil {
			return nil, err
		}
	}

	for _, line := range lines {
		affected, err := s.exec(ctx, tx, `
			UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?
		`, line.Quantity, line.ProductID, line.Quantity)
		if err != nil {
			if s.d.isCheck(err) {
				return nil, fmt.Errorf("product %d: %w", line.ProductID, store.ErrStockConflict)
			}
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, store.ErrStockConflict)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.Bill{
		ID:         billID,
		CustomerID: req.CustomerID,
		Items:      lines,
		Subtotal:   totals.Subtotal,
		Discount:   totals.Discount,
		GST:        float64(req.GST),
		GSTAmount:  totals.GSTAmount,
		Total:      totals.Total,
		Date:       req.Date,
		CreatedAt:  createdAt,
	}, nil
}

const billRecordQuery = `
	SELECT b.id, b.customer_id, b.subtotal_cents, b.discount_cents, b.gst_percent, b.gst_cents,
		b.total_cents, b.date, b.created_at, c.name AS customer_name, c.mobile AS customer_mobile
	FROM bills b
	JOIN customers c ON c.id = b.customer_id`

func (s *Store) ListBills(ctx context.Context) ([]domain.BillRecord, error) {
	return s.queryBills(ctx, billRecordQuery+` ORDER BY b.id`)
}

// SalesReport filters bills by inclusive date range, by a product appearing
// on any line and by a customer mobile substring. Empty filters are ignored.
func (s *Store) SalesReport(ctx context.Context, filter domain.SalesReportFilter) ([]domain.BillRecord, error) {
	if err := store.ValidateDateRange(filter.DateFrom, filter.DateTo); err != nil {
		return nil, err
	}

	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if filter.DateFrom != "" {
		conds = append(conds, "b.date >= ?")
		args = append(args, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conds = append(conds, "b.date <= ?")
		args = append(args, filter.DateTo)
	}
	if filter.ProductID > 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM bill_items bi WHERE bi.bill_id = b.id AND bi.product_id = ?)")
		args = append(args, filter.ProductID)
	}
	if strings.TrimSpace(filter.Mobile) != "" {
		conds = append(conds, "LOWER(c.mobile) LIKE ? ESCAPE '!'")
		args = append(args, likePattern(filter.Mobile))
	}

	query := billRecordQuery
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY b.date, b.id"
	return s.queryBills(ctx, query, args...)
}

func (s *Store) queryBills(ctx context.Context, query string, args ...any) ([]domain.BillRecord, error) {
	records := make([]domain.BillRecord, 0, 32)
	if err := s.db.SelectContext(ctx, &records, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	index := make(map[int64]int, len(records))
	ids := make([]int64, 0, len(records))
	for i := range records {
		records[i].Items = make([]domain.BillLine, 0, 4)
		index[records[i].ID] = i
		ids = append(ids, records[i].ID)
	}

	type lineRow struct {
		BillID int64 `db:"bill_id"`
		domain.BillLine
	}
	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		query, args, err := sqlx.In(`
			SELECT bill_id, product_id, name, sale_price_cents, quantity
			FROM bill_items
			WHERE bill_id IN (?)
			ORDER BY id
		`, ids[start:end])
		if err != nil {
			return nil, err
		}
		var rows []lineRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return nil, err
		}
		for _, row := range rows {
			i := index[row.BillID]
			records[i].Items = append(records[i].Items, row.BillLine)
		}
	}
	return records, nil
}
