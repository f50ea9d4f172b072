package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	domerr "github.com/opst/vitrain/pkg/domain/errors"
)

// requested record is missing.
type Missing struct {
	Table    string
	Identity string
}

var _ error = Missing{}

func (m Missing) Error() string {
	return fmt.Sprintf("%s is not found in %s", m.Identity, m.Table)
}

func (m Missing) Unwrap() error {
	return domerr.ErrMissing
}

// requested record conflicts with an existing one.
type Conflict struct {
	Table      string
	Identity   string
	Constraint string
}

var _ error = Conflict{}

func (c Conflict) Error() string {
	return fmt.Sprintf(
		"%s conflicts in %s (constraint: %s)",
		c.Identity, c.Table, c.Constraint,
	)
}

func (c Conflict) Unwrap() error {
	return domerr.ErrConflict
}

// Classify translates constraint violations reported by postgres.
//
// A unique violation becomes Conflict, and a foreign key violation becomes Missing
// of the referenced record (table, identity). Other errors are returned as they are.
func Classify(err error, table string, identity string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		return Conflict{Table: table, Identity: identity, Constraint: pgErr.ConstraintName}
	case pgerrcode.ForeignKeyViolation:
		return Missing{Table: table, Identity: identity}
	}
	return err
}
