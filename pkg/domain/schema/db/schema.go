package db

import (
	"context"
	"errors"
	"fmt"
)

var ErrOutdated = errors.New("schema is outdated")

// SchemaInterface represents a database schema.
type SchemaInterface interface {
	// Upgrade upgrades the schema to the latest version.
	Upgrade(ctx context.Context) error

	// Version returns the current version of the schema.
	//
	// It is 0 when no schema is applied yet.
	Version(ctx context.Context) (int, error)

	// Latest returns the latest version of the schema known.
	Latest() (int, error)
}

// Check returns ErrOutdated if the schema in database is older than the latest.
func Check(ctx context.Context, s SchemaInterface) error {
	latest, err := s.Latest()
	if err != nil {
		return err
	}
	current, err := s.Version(ctx)
	if err != nil {
		return err
	}
	if current < latest {
		return fmt.Errorf("%w: %d (in db) < %d (latest)", ErrOutdated, current, latest)
	}
	return nil
}
