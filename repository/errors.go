package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrForeignKey is returned when a write references a row that does not exist.
	ErrForeignKey = errors.New("referenced row does not exist")
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrNoReferencedRow = 1452
)

// translateError maps driver constraint errors onto the repository sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %s", ErrDuplicate, myErr.Message)
		case mysqlErrNoReferencedRow:
			return fmt.Errorf("%w: %s", ErrForeignKey, myErr.Message)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrDuplicate, liteErr.Error())
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", ErrForeignKey, liteErr.Error())
		}
	}
	return err
}

// escapeLike escapes LIKE wildcards using '!' so the same SQL runs on MySQL and SQLite.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
