package sqlstore

import (
	"context"
	"fmt"
	"log"
	"time"

	"tillbook/backend/internal/domain"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		purchase_price_cents INTEGER NOT NULL DEFAULT 0,
		sale_price_cents INTEGER NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		mobile TEXT NOT NULL UNIQUE,
		gstin TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS bills (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		subtotal_cents INTEGER NOT NULL,
		discount_cents INTEGER NOT NULL DEFAULT 0,
		gst_percent REAL NOT NULL DEFAULT 0,
		gst_cents INTEGER NOT NULL DEFAULT 0,
		total_cents INTEGER NOT NULL,
		date TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bill_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bill_id INTEGER NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		sale_price_cents INTEGER NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vendor TEXT NOT NULL,
		date TEXT NOT NULL,
		total_cents INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		purchase_id INTEGER NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		purchase_price_cents INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY,
		business_name TEXT NOT NULL DEFAULT '',
		logo TEXT NOT NULL DEFAULT '',
		gst_percentage REAL NOT NULL DEFAULT 0,
		units TEXT NOT NULL DEFAULT '',
		invoice_footer TEXT NOT NULL DEFAULT '',
		invoice_layout TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bills_date ON bills(date)`,
	`CREATE INDEX IF NOT EXISTS idx_bill_items_bill ON bill_items(bill_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bill_items_product ON bill_items(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_date ON purchases(date)`,
	`CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase ON purchase_items(purchase_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		purchase_price_cents BIGINT NOT NULL DEFAULT 0,
		sale_price_cents BIGINT NOT NULL DEFAULT 0,
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		mobile TEXT NOT NULL UNIQUE,
		gstin TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS bills (
		id BIGSERIAL PRIMARY KEY,
		customer_id BIGINT NOT NULL REFERENCES customers(id),
		subtotal_cents BIGINT NOT NULL,
		discount_cents BIGINT NOT NULL DEFAULT 0,
		gst_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
		gst_cents BIGINT NOT NULL DEFAULT 0,
		total_cents BIGINT NOT NULL,
		date TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS bill_items (
		id BIGSERIAL PRIMARY KEY,
		bill_id BIGINT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		sale_price_cents BIGINT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id BIGSERIAL PRIMARY KEY,
		vendor TEXT NOT NULL,
		date TEXT NOT NULL,
		total_cents BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id BIGSERIAL PRIMARY KEY,
		purchase_id BIGINT NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		purchase_price_cents BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id BIGINT PRIMARY KEY,
		business_name TEXT NOT NULL DEFAULT '',
		logo TEXT NOT NULL DEFAULT '',
		gst_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		units TEXT NOT NULL DEFAULT '',
		invoice_footer TEXT NOT NULL DEFAULT '',
		invoice_layout TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bills_date ON bills(date)`,
	`CREATE INDEX IF NOT EXISTS idx_bill_items_bill ON bill_items(bill_id)`,
	`CREATE INDEX IF NOT EXISTS idx_bill_items_product ON bill_items(product_id)`,
	`CREATE INDEX IF NOT EXISTS idx_purchases_date ON purchases(date)`,
	`CREATE INDEX IF NOT EXISTS idx_purchase_items_purchase ON purchase_items(purchase_id)`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		username VARCHAR(191) NOT NULL UNIQUE,
		password VARCHAR(255) NOT NULL,
		role VARCHAR(32) NOT NULL,
		created_at DATETIME(6) NOT NULL
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		code VARCHAR(191) NOT NULL UNIQUE,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(255) NOT NULL DEFAULT '',
		unit VARCHAR(64) NOT NULL DEFAULT '',
		purchase_price_cents BIGINT NOT NULL DEFAULT 0,
		sale_price_cents BIGINT NOT NULL DEFAULT 0,
		stock INT NOT NULL DEFAULT 0,
		CONSTRAINT chk_products_stock CHECK (stock >= 0)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS customers (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		mobile VARCHAR(32) NOT NULL UNIQUE,
		gstin VARCHAR(32) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bills (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		customer_id BIGINT NOT NULL,
		subtotal_cents BIGINT NOT NULL,
		discount_cents BIGINT NOT NULL DEFAULT 0,
		gst_percent DOUBLE NOT NULL DEFAULT 0,
		gst_cents BIGINT NOT NULL DEFAULT 0,
		total_cents BIGINT NOT NULL,
		date CHAR(10) NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_bills_date (date),
		CONSTRAINT fk_bills_customer FOREIGN KEY (customer_id) REFERENCES customers(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bill_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		bill_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL,
		sale_price_cents BIGINT NOT NULL,
		quantity INT NOT NULL,
		INDEX idx_bill_items_product (product_id),
		CONSTRAINT chk_bill_items_quantity CHECK (quantity > 0),
		CONSTRAINT fk_bill_items_bill FOREIGN KEY (bill_id) REFERENCES bills(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		vendor VARCHAR(255) NOT NULL,
		date CHAR(10) NOT NULL,
		total_cents BIGINT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_purchases_date (date)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		purchase_id BIGINT NOT NULL,
		product_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		purchase_price_cents BIGINT NOT NULL,
		CONSTRAINT chk_purchase_items_quantity CHECK (quantity > 0),
		CONSTRAINT fk_purchase_items_purchase FOREIGN KEY (purchase_id) REFERENCES purchases(id) ON DELETE CASCADE
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS settings (
		id BIGINT PRIMARY KEY,
		business_name VARCHAR(255) NOT NULL DEFAULT '',
		logo TEXT NOT NULL,
		gst_percentage DOUBLE NOT NULL DEFAULT 0,
		units VARCHAR(255) NOT NULL DEFAULT '',
		invoice_footer VARCHAR(1024) NOT NULL DEFAULT '',
		invoice_layout VARCHAR(64) NOT NULL DEFAULT ''
	) ENGINE=InnoDB`,
}

const settingsID = 1

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.d.name, err)
		}
	}
	return nil
}

// seed inserts the default admin account and the settings row when they are
// missing. Existing rows are never touched.
func (s *Store) seed(ctx context.Context, adminPasswordHash string) error {
	var users int
	if err := s.db.GetContext(ctx, &users, s.db.Rebind(`SELECT COUNT(*) FROM users WHERE username = ?`), domain.DefaultAdminUsername); err != nil {
		return err
	}
	if users == 0 && adminPasswordHash != "" {
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO users (username, password, role, created_at) VALUES (?, ?, ?, ?)
		`), domain.DefaultAdminUsername, adminPasswordHash, domain.RoleAdmin, time.Now().UTC()); err != nil && !s.d.isUnique(err) {
			return err
		}
		log.Printf("[sqlstore] seeded default %q account", domain.DefaultAdminUsername)
	}

	var settingsRows int
	if err := s.db.GetContext(ctx, &settingsRows, s.db.Rebind(`SELECT COUNT(*) FROM settings WHERE id = ?`), settingsID); err != nil {
		return err
	}
	if settingsRows == 0 {
		defaults := domain.DefaultSettings()
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO settings (id, business_name, logo, gst_percentage, units, invoice_footer, invoice_layout)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`), settingsID, defaults.BusinessName, defaults.Logo, defaults.GSTPercentage, defaults.Units, defaults.InvoiceFooter, defaults.InvoiceLayout); err != nil && !s.d.isUnique(err) {
			return err
		}
	}
	return nil
}
