package sqlstore

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type dialect struct {
	name        string
	driverName  string
	returningID bool
	lockClause  string
	schema      []string
	maxOpen     int
	dsn         func(string) (string, error)
	isUnique    func(error) bool
	isForeign   func(error) bool
	isCheck     func(error) bool
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite, "sqlite3":
		return dialect{
			name:       DriverSQLite,
			driverName: "sqlite3",
			schema:     sqliteSchema,
			// Single writer; immediate transactions take the write lock at BEGIN.
			maxOpen:   1,
			dsn:       sqliteDSN,
			isUnique:  sqliteCode(sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey),
			isForeign: sqliteCode(sqlite3.ErrConstraintForeignKey),
			isCheck:   sqliteCode(sqlite3.ErrConstraintCheck),
		}, nil
	case DriverPostgres, "pgx":
		return dialect{
			name:        DriverPostgres,
			driverName:  "pgx",
			returningID: true,
			lockClause:  " FOR UPDATE",
			schema:      postgresSchema,
			maxOpen:     30,
			dsn:         func(dsn string) (string, error) { return dsn, nil },
			isUnique:    pgCode("23505"),
			isForeign:   pgCode("23503"),
			isCheck:     pgCode("23514"),
		}, nil
	case DriverMySQL:
		return dialect{
			name:       DriverMySQL,
			driverName: "mysql",
			lockClause: " FOR UPDATE",
			schema:     mysqlSchema,
			maxOpen:    30,
			dsn:        mysqlDSN,
			isUnique:   mysqlCode(1062),
			isForeign:  mysqlCode(1451, 1452),
			isCheck:    mysqlCode(3819),
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func (d dialect) isConstraint(err error) bool {
	return d.isUnique(err) || d.isForeign(err) || d.isCheck(err)
}

// sqliteParams are applied to every SQLite DSN. Values the caller already set
// in a file: URI win.
var sqliteParams = [][2]string{
	{"_foreign_keys", "on"},
	{"_journal_mode", "WAL"},
	{"_busy_timeout", "5000"},
	{"_txlock", "immediate"},
}

func sqliteDSN(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("sqlite database path is empty")
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	base, rawQuery, _ := strings.Cut(path, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", fmt.Errorf("sqlite dsn query: %w", err)
	}
	extra := make([]string, 0, len(sqliteParams))
	for _, param := range sqliteParams {
		if !query.Has(param[0]) && !hasAlias(query, param[0]) {
			extra = append(extra, param[0]+"="+param[1])
		}
	}
	if len(extra) == 0 {
		return path, nil
	}
	if rawQuery != "" {
		extra = append([]string{rawQuery}, extra...)
	}
	return base + "?" + strings.Join(extra, "&"), nil
}

// hasAlias reports whether go-sqlite3's short spelling of name is present.
func hasAlias(query url.Values, name string) bool {
	alias, ok := map[string]string{
		"_foreign_keys": "_fk",
		"_journal_mode": "_journal",
		"_busy_timeout": "_timeout",
	}[name]
	return ok && query.Has(alias)
}

// mysqlDSN makes RowsAffected count matched rows, so an update that writes
// identical values is not mistaken for a missing row.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	cfg.ClientFoundRows = true
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func sqliteCode(codes ...sqlite3.ErrNoExtended) func(error) bool {
	return func(err error) bool {
		var sqliteErr sqlite3.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}
		for _, code := range codes {
			if sqliteErr.ExtendedCode == code {
				return true
			}
		}
		return false
	}
}

func pgCode(code string) func(error) bool {
	return func(err error) bool {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return pgErr.Code == code
		}
		return false
	}
}

func mysqlCode(numbers ...uint16) func(error) bool {
	return func(err error) bool {
		var myErr *mysql.MySQLError
		if !errors.As(err, &myErr) {
			return false
		}
		for _, n := range numbers {
			if myErr.Number == n {
				return true
			}
		}
		return false
	}
}
