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

// CreatePurchase records goods received from a vendor and adds them to stock
// in one transaction.
func (s *Store) CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error) {
	if err := store.ValidatePurchaseRequest(req); err != nil {
		return nil, err
	}
	total, err := billing.PurchaseTotal(req.Items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx, "create purchase")

	createdAt := time.Now().UTC()
	purchaseID, err := s.insert(ctx, tx, `
		INSERT INTO purchases (vendor, date, total_cents, created_at) VALUES (?, ?, ?, ?)
	`, req.Vendor, req.Date, total, createdAt)
	if err != nil {
		return nil, err
	}

	for _, line := range req.Items {
		if _, err := s.exec(ctx, tx, `
			INSERT INTO purchase_items (purchase_id, product_id, quantity, purchase_price_cents)
			VALUES (?, ?, ?, ?)
		`, purchaseID, line.ProductID, line.Quantity, line.PurchasePrice); err != nil {
			return nil, err
		}
		affected, err := s.exec(ctx, tx, `
			UPDATE products SET stock = stock + ? WHERE id = ? AND stock <= ?
		`, line.Quantity, line.ProductID, store.MaxStock-line.Quantity)
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, s.purchaseMiss(ctx, tx, line.ProductID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	items := make([]domain.PurchaseLine, len(req.Items))
	copy(items, req.Items)
	return &domain.Purchase{
		ID:        purchaseID,
		Vendor:    req.Vendor,
		Date:      req.Date,
		Items:     items,
		Total:     total,
		CreatedAt: createdAt,
	}, nil
}

// purchaseMiss explains an increment that matched no row: either the product
// is gone or the purchase would take its stock past store.MaxStock.
func (s *Store) purchaseMiss(ctx context.Context, tx *sqlx.Tx, productID int64) error {
	var stock int
	err := tx.GetContext(ctx, &stock, tx.Rebind(`SELECT stock FROM products WHERE id = ?`), productID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ProductNotFound(productID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: stock for product %d would exceed %d", store.ErrInvalidInput, productID, store.MaxStock)
}

func (s *Store) ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	if err := store.ValidateDateRange(filter.From, filter.To); err != nil {
		return nil, err
	}

	conds := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if strings.TrimSpace(filter.Vendor) != "" {
		conds = append(conds, "LOWER(vendor) LIKE ? ESCAPE '!'")
		args = append(args, likePattern(filter.Vendor))
	}
	if filter.From != "" {
		conds = append(conds, "date >= ?")
		args = append(args, filter.From)
	}
	if filter.To != "" {
		conds = append(conds, "date <= ?")
		args = append(args, filter.To)
	}

	query := `SELECT id, vendor, date, total_cents, created_at FROM purchases`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"

	purchases := make([]domain.Purchase, 0, 32)
	if err := s.db.SelectContext(ctx, &purchases, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	if len(purchases) == 0 {
		return purchases, nil
	}
	if err := s.attachPurchaseLines(ctx, purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}

func (s *Store) attachPurchaseLines(ctx context.Context, purchases []domain.Purchase) error {
	index := make(map[int64]int, len(purchases))
	ids := make([]int64, 0, len(purchases))
	for i := range purchases {
		purchases[i].Items = make([]domain.PurchaseLine, 0, 4)
		index[purchases[i].ID] = i
		ids = append(ids, purchases[i].ID)
	}

	type lineRow struct {
		PurchaseID int64 `db:"purchase_id"`
		domain.PurchaseLine
	}
	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		query, args, err := sqlx.In(`
			SELECT purchase_id, product_id, quantity, purchase_price_cents
			FROM purchase_items
			WHERE purchase_id IN (?)
			ORDER BY id
		`, ids[start:end])
		if err != nil {
			return err
		}
		var rows []lineRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return fmt.Errorf("load purchase lines: %w", err)
		}
		for _, row := range rows {
			i := index[row.PurchaseID]
			purchases[i].Items = append(purchases[i].Items, row.PurchaseLine)
		}
	}
	return nil
}

// Daybook totals the bills and purchases dated on day. Days without activity
// report zeros.
func (s *Store) Daybook(ctx context.Context, day string) (domain.Daybook, error) {
	if err := store.ValidateDate(day); err != nil {
		return domain.Daybook{}, err
	}

	var sales, purchases domain.Money
	if err := s.db.GetContext(ctx, &sales, s.db.Rebind(`
		SELECT COALESCE(SUM(total_cents), 0) FROM bills WHERE date = ?
	`), day); err != nil {
		return domain.Daybook{}, err
	}
	if err := s.db.GetContext(ctx, &purchases, s.db.Rebind(`
		SELECT COALESCE(SUM(total_cents), 0) FROM purchases WHERE date = ?
	`), day); err != nil {
		return domain.Daybook{}, err
	}

	return domain.Daybook{
		Sales:     sales,
		Purchases: purchases,
		Profit:    sales - purchases,
	}, nil
}
