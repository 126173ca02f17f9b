package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ListOptions controls pagination for list queries
type ListOptions struct {
	Limit  int
	Offset int
}

func (o *ListOptions) limitOffset() (int, int) {
	limit := 50
	offset := 0
	if o != nil {
		if o.Limit > 0 {
			limit = o.Limit
		}
		if o.Offset > 0 {
			offset = o.Offset
		}
	}
	if limit > 100 {
		limit = 100
	}
	return limit, offset
}

// isUniqueViolation reports whether err is a PostgreSQL unique-key violation
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
