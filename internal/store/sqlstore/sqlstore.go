// Package sqlstore implements store.Repository on database/sql through sqlx.
// The same queries run on SQLite (the default single-file store), PostgreSQL
// and MySQL; only DDL, insert-id retrieval, row locking and constraint error
// codes differ per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

type Options struct {
	Driver string
	DSN    string
	// AdminPasswordHash seeds the default admin account on an empty database.
	AdminPasswordHash string
}

type Store struct {
	db *sqlx.DB
	d  dialect
}

func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := d.dsn(opts.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.driverName, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(d.maxOpen)
	if d.maxOpen > 1 {
		db.SetMaxIdleConns(8)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, d: d}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.seed(ctx, opts.AdminPasswordHash); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// insert runs an INSERT and returns the generated id.
func (s *Store) insert(ctx context.Context, q sqlx.ExtContext, query string, args ...any) (int64, error) {
	if s.d.returningID {
		var id int64
		if err := sqlx.GetContext(ctx, q, &id, s.db.Rebind(query+" RETURNING id"), args...); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := q.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) exec(ctx context.Context, q sqlx.ExecerContext, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func rollback(tx *sqlx.Tx, op string) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Printf("[sqlstore] WARN: rollback %s: %v", op, err)
	}
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.GetContext(ctx, &user, s.db.Rebind(`
		SELECT id, username, password, role, created_at FROM users WHERE username = ?
	`), username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return nil, store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	id, err := s.insert(ctx, s.db, `
		INSERT INTO users (username, password, role, created_at) VALUES (?, ?, ?, ?)
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if s.d.isUnique(err) {
			return nil, fmt.Errorf("username %q: %w", user.Username, store.ErrConstraintViolation)
		}
		return nil, err
	}
	created := user
	created.ID = id
	return &created, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	affected, err := s.exec(ctx, s.db, `UPDATE users SET password = ? WHERE username = ?`, password, username)
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const productColumns = `id, code, name, category, unit, purchase_price_cents, sale_price_cents, stock`

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	if err := s.db.SelectContext(ctx, &products, `SELECT `+productColumns+` FROM products ORDER BY id`); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (domain.InsertResult, error) {
	if err := store.ValidateProduct(product); err != nil {
		return domain.InsertResult{}, err
	}
	id, err := s.insert(ctx, s.db, `
		INSERT INTO products (code, name, category, unit, purchase_price_cents, sale_price_cents, stock)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, product.Code, product.Name, product.Category, product.Unit, product.PurchasePrice, product.SalePrice, product.Stock)
	if err != nil {
		if s.d.isConstraint(err) {
			return domain.InsertResult{}, fmt.Errorf("product code %q: %w", product.Code, store.ErrConstraintViolation)
		}
		return domain.InsertResult{}, err
	}
	return domain.InsertResult{ID: id, Changes: 1}, nil
}

// UpdateProduct replaces the descriptive fields and prices. Stock is owned by
// bills and purchases and is left untouched.
func (s *Store) UpdateProduct(ctx context.Context, id int64, product domain.Product) (domain.WriteResult, error) {
	if err := store.ValidateProduct(product); err != nil {
		return domain.WriteResult{}, err
	}
	affected, err := s.exec(ctx, s.db, `
		UPDATE products
		SET code = ?, name = ?, category = ?, unit = ?, purchase_price_cents = ?, sale_price_cents = ?
		WHERE id = ?
	`, product.Code, product.Name, product.Category, product.Unit, product.PurchasePrice, product.SalePrice, id)
	if err != nil {
		if s.d.isConstraint(err) {
			return domain.WriteResult{}, fmt.Errorf("product code %q: %w", product.Code, store.ErrConstraintViolation)
		}
		return domain.WriteResult{}, err
	}
	if affected == 0 {
		return domain.WriteResult{}, store.ErrNotFound
	}
	return domain.WriteResult{Changes: affected}, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) (domain.WriteResult, error) {
	affected, err := s.exec(ctx, s.db, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		if s.d.isConstraint(err) {
			return domain.WriteResult{}, fmt.Errorf("product %d: %w", id, store.ErrConstraintViolation)
		}
		return domain.WriteResult{}, err
	}
	if affected == 0 {
		return domain.WriteResult{}, store.ErrNotFound
	}
	return domain.WriteResult{Changes: affected}, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0, 64)
	if err := s.db.SelectContext(ctx, &customers, `SELECT id, name, mobile, gstin FROM customers ORDER BY id`); err != nil {
		return nil, err
	}
	return customers, nil
}

// CreateCustomer is find-or-create keyed by mobile number.
func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (domain.CustomerCreateResult, error) {
	if err := store.ValidateCustomer(customer); err != nil {
		return domain.CustomerCreateResult{}, err
	}
	if existing, err := s.FindCustomerByMobile(ctx, customer.Mobile); err == nil {
		return domain.CustomerCreateResult{Existing: true, ID: existing.ID}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.CustomerCreateResult{}, err
	}

	id, err := s.insert(ctx, s.db, `
		INSERT INTO customers (name, mobile, gstin) VALUES (?, ?, ?)
	`, customer.Name, customer.Mobile, customer.GSTIN)
	if err != nil {
		if !s.d.isUnique(err) {
			return domain.CustomerCreateResult{}, err
		}
		// Lost a race with another insert of the same mobile.
		existing, findErr := s.FindCustomerByMobile(ctx, customer.Mobile)
		if findErr != nil {
			return domain.CustomerCreateResult{}, fmt.Errorf("customer mobile %q: %w", customer.Mobile, store.ErrConstraintViolation)
		}
		return domain.CustomerCreateResult{Existing: true, ID: existing.ID}, nil
	}
	return domain.CustomerCreateResult{Existing: false, ID: id}, nil
}

func (s *Store) FindCustomerByMobile(ctx context.Context, mobile string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.GetContext(ctx, &customer, s.db.Rebind(`
		SELECT id, name, mobile, gstin FROM customers WHERE mobile = ?
	`), mobile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var settings domain.Settings
	err := s.db.GetContext(ctx, &settings, s.db.Rebind(`
		SELECT id, business_name, logo, gst_percentage, units, invoice_footer, invoice_layout
		FROM settings WHERE id = ?
	`), settingsID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, nil
	}
	if err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// UpdateSettings rewrites the singleton row. It never inserts one.
func (s *Store) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.WriteResult, error) {
	if err := store.ValidateSettings(settings); err != nil {
		return domain.WriteResult{}, err
	}
	affected, err := s.exec(ctx, s.db, `
		UPDATE settings
		SET business_name = ?, logo = ?, gst_percentage = ?, units = ?, invoice_footer = ?, invoice_layout = ?
		WHERE id = ?
	`, settings.BusinessName, settings.Logo, settings.GSTPercentage, settings.Units, settings.InvoiceFooter, settings.InvoiceLayout, settingsID)
	if err != nil {
		return domain.WriteResult{}, err
	}
	if affected == 0 {
		return domain.WriteResult{}, store.ErrNotFound
	}
	return domain.WriteResult{Changes: affected}, nil
}

// likeEscaper escapes LIKE wildcards for an ESCAPE '!' clause. A bang is used
// because backslash is itself an escape in MySQL string literals.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// likePattern builds a case-insensitive substring match. The query must
// declare ESCAPE '!'.
func likePattern(value string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(value))) + "%"
}
