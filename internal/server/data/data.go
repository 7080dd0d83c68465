// Package data is the credential store adapter. It owns the database
// connection and every query the managers run against it.
package data

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"unicode"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/keyfobhq/keyfob/internal"
	"github.com/keyfobhq/keyfob/internal/logging"
	"github.com/keyfobhq/keyfob/internal/server/data/querybuilder"
)

// NewDB creates a new database connection and initializes the schema before
// returning the connection.
func NewDB(connection gorm.Dialector) (*DB, error) {
	db, err := newRawDB(connection)
	if err != nil {
		return nil, fmt.Errorf("db conn: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	return &DB{DB: db}, nil
}

// newRawDB creates a new database connection without initializing the schema.
func newRawDB(connection gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(connection, &gorm.Config{
		Logger: logging.ToGormLogger(logging.S),
	})
	if err != nil {
		return nil, err
	}

	if connection.Name() == "sqlite" {
		// avoid issues with concurrent writes by telling gorm
		// not to open multiple connections in the connection pool
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("getting db driver: %w", err)
		}

		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func NewSQLiteDriver(connection string) (gorm.Dialector, error) {
	if !strings.HasPrefix(connection, "file::memory") {
		if err := os.MkdirAll(path.Dir(connection), os.ModePerm); err != nil {
			return nil, err
		}
	}
	uri, err := url.Parse(connection)
	if err != nil {
		return nil, err
	}
	query := uri.Query()
	query.Add("_journal_mode", "WAL")
	uri.RawQuery = query.Encode()
	connection = uri.String()

	return sqlite.Open(connection), nil
}

func NewPostgresDriver(connection string) (gorm.Dialector, error) {
	return postgres.Open(connection), nil
}

// ReadTxn can perform read queries, but cannot write.
type ReadTxn interface {
	DriverName() string
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// WriteTxn extends ReadTxn with writes.
type WriteTxn interface {
	ReadTxn
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// GormTxn is a WriteTxn that can also expose the underlying gorm connection,
// for the few operations that still go through gorm directly.
type GormTxn interface {
	WriteTxn
	GormDB() *gorm.DB
}

// DB is the connection pool. It implements GormTxn so single-statement
// operations can run without an explicit transaction.
type DB struct {
	*gorm.DB
}

func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *DB) DriverName() string {
	return d.Dialector.Name()
}

func (d *DB) GormDB() *gorm.DB {
	return d.DB
}

func (d *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	db := d.DB.Exec(query, args...)
	return driver.RowsAffected(db.RowsAffected), db.Error
}

func (d *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return d.DB.Raw(query, args...).Rows()
}

func (d *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return d.DB.Raw(query, args...).Row()
}

// WithContext returns a GormTxn that applies ctx to every statement.
func (d *DB) WithContext(ctx context.Context) GormTxn {
	return &Transaction{DB: d.DB.WithContext(ctx)}
}

// InTransaction runs fn in a database transaction. The transaction is
// committed when fn returns nil, and rolled back otherwise.
func (d *DB) InTransaction(ctx context.Context, fn func(tx GormTxn) error) error {
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Transaction{DB: tx})
	})
	return handleError(err)
}

// Transaction is a GormTxn over either a real database transaction or a
// context-scoped connection.
type Transaction struct {
	*gorm.DB
}

func (t *Transaction) DriverName() string {
	return t.Dialector.Name()
}

func (t *Transaction) GormDB() *gorm.DB {
	return t.DB
}

func (t *Transaction) Exec(query string, args ...interface{}) (sql.Result, error) {
	db := t.DB.Exec(query, args...)
	return driver.RowsAffected(db.RowsAffected), db.Error
}

func (t *Transaction) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return t.DB.Raw(query, args...).Rows()
}

func (t *Transaction) QueryRow(query string, args ...interface{}) *sql.Row {
	return t.DB.Raw(query, args...).Row()
}

// Table is implemented by the table types in this package to map a model to
// its row representation.
type Table interface {
	Table() string
	Columns() []string
	Values() []interface{}
}

func columnsForSelect(table Table) string {
	return strings.Join(table.Columns(), ", ")
}

func columnsForInsert(table Table) string {
	return strings.Join(table.Columns(), ", ")
}

func placeholderForColumns(table Table) string {
	columns := table.Columns()
	result := make([]string, len(columns))
	for i := range columns {
		result[i] = "?"
	}
	return strings.Join(result, ", ")
}

func insert(tx WriteTxn, item Table) error {
	query := querybuilder.New("INSERT INTO")
	query.B(item.Table())
	query.B("(")
	query.B(columnsForInsert(item))
	query.B(") VALUES (")
	query.B(placeholderForColumns(item), item.Values()...)
	query.B(");")
	_, err := tx.Exec(query.String(), query.Args...)
	return handleError(err)
}

func scanRows[T any](rows *sql.Rows, fields func(*T) []interface{}) ([]T, error) {
	defer rows.Close()

	result := make([]T, 0)
	for rows.Next() {
		var item T
		if err := rows.Scan(fields(&item)...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

type UniqueConstraintError struct {
	Table  string
	Column string
}

func (e UniqueConstraintError) Error() string {
	table := strings.TrimSuffix(e.Table, "s")
	if table == "" {
		return "value already exists"
	}
	if e.Column == "" {
		return fmt.Sprintf("a %v with that value already exists", table)
	}
	return fmt.Sprintf("a %v with that %v already exists", table, e.Column)
}

func (e UniqueConstraintError) Is(other error) bool {
	return other == internal.ErrDuplicate
}

// handleError looks for well known DB errors. If the error is recognized it
// is translated so that calling code can inspect it with errors.Is.
func handleError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			// only primary keys are unique, the lookup_key indexes allow
			// collisions
			return UniqueConstraintError{Table: pgErr.TableName, Column: "id"}
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return fmt.Errorf("%w: %v", internal.ErrStoreUnavailable, err)
		}
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", internal.ErrStoreUnavailable, err)
	}

	// https://sqlite.org/src/file?name=ext/rtree/rtree.c:
	// pRtree->base.zErrMsg = sqlite3_mprintf(
	//     "UNIQUE constraint failed: %s.%s", pRtree->zName, zCol
	// );
	if strings.HasPrefix(err.Error(), "UNIQUE constraint failed:") {
		fields := strings.FieldsFunc(err.Error(), func(r rune) bool {
			return unicode.IsSpace(r) || r == '.'
		})

		// fields = [UNIQUE, constraint, failed:, <table>, <column>]
		if len(fields) == 5 {
			return UniqueConstraintError{Table: fields[3], Column: fields[4]}
		}
		logging.Warnf("unhandled unique constraint error format: %q", err.Error())
		return UniqueConstraintError{}
	}

	return err
}

// handleReadError translates "no rows" into internal.ErrNotFound. Rows can
// vanish between statements when the sweeper runs concurrently, so callers
// treat this the same as a row that never existed.
func handleReadError(err error) error {
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, gorm.ErrRecordNotFound) {
		return internal.ErrNotFound
	}
	return handleError(err)
}
