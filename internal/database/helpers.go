package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/link-sweeper/internal/domain"
)

// execRequireRows validates that an ExecContext result affected at least one row.
// Returns err if non-nil, or notFoundErr if rowsAffected is 0.
func execRequireRows(result sql.Result, err, notFoundErr error) error {
	if err != nil {
		return err
	}
	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return affectedErr
	}
	if n == 0 {
		return notFoundErr
	}
	return nil
}

// notFoundOr maps sql.ErrNoRows to an ErrNotFound describing what, and
// wraps any other error as a persistence failure of op.
func notFoundOr(err error, op, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFoundf("%s", what)
	}
	return domain.Persistence(op, err)
}

// likeEscaper escapes LIKE metacharacters using the default backslash escape.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern returns an ILIKE pattern matching s anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// whereBuilder accumulates AND-ed conditions with numbered placeholders.
type whereBuilder struct {
	conditions []string
	args       []any
}

// add appends a condition. Each %s in format is replaced by the next
// placeholder, and one arg is consumed per placeholder.
func (w *whereBuilder) add(format string, args ...any) {
	placeholders := make([]any, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", len(w.args)+i+1)
	}
	w.conditions = append(w.conditions, fmt.Sprintf(format, placeholders...))
	w.args = append(w.args, args...)
}

// raw appends a condition without arguments.
func (w *whereBuilder) raw(condition string) {
	w.conditions = append(w.conditions, condition)
}

func (w *whereBuilder) clause() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

func (w *whereBuilder) next() string {
	return fmt.Sprintf("$%d", len(w.args)+1)
}
