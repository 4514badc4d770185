// Package migrate applies, creates and validates the goose SQL migrations
// that define the postgres schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where migrations live in the source tree. create and
// validate work against it on disk.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded is the migration set compiled into every binary.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source resolves dir to a filesystem. DefaultDir maps to the embedded set
// so binaries run without the source tree next to them.
func Source(dir string) fs.FS {
	if dir == "" || filepath.Clean(dir) == DefaultDir {
		return Embedded()
	}
	return os.DirFS(dir)
}

func newProvider(db *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return provider, nil
}

// Run executes one of up, down, redo or status against fsys.
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, command string) ([]*goose.MigrationResult, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}

	switch command {
	case "up":
		results, err := provider.Up(ctx)
		if err != nil {
			return results, fmt.Errorf("goose up: %w", err)
		}
		return results, nil
	case "down":
		result, err := provider.Down(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose down: %w", err)
		}
		return []*goose.MigrationResult{result}, nil
	case "redo":
		down, err := provider.Down(ctx)
		if err != nil {
			return nil, fmt.Errorf("goose redo (down): %w", err)
		}
		up, err := provider.UpByOne(ctx)
		if err != nil {
			return []*goose.MigrationResult{down}, fmt.Errorf("goose redo (up): %w", err)
		}
		return []*goose.MigrationResult{down, up}, nil
	default:
		return nil, fmt.Errorf("unsupported goose command %q", command)
	}
}

// Status reports every known migration and whether it has been applied.
func Status(ctx context.Context, db *sql.DB, fsys fs.FS) ([]*goose.MigrationStatus, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	return statuses, nil
}

// ParseVersion accepts the YYYYMMDDHHMMSS prefix of a migration filename.
func ParseVersion(raw string) (int64, error) {
	if len(raw) != len(versionLayout) {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	return version, nil
}

// MigrateTo moves the schema up or down until target is the newest applied
// version.
func MigrateTo(ctx context.Context, db *sql.DB, fsys fs.FS, target int64) ([]*goose.MigrationResult, error) {
	provider, err := newProvider(db, fsys)
	if err != nil {
		return nil, err
	}
	current, err := provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil, nil
	case current < target:
		results, err := provider.UpTo(ctx, target)
		if err != nil {
			return results, fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return results, nil
	default:
		results, err := provider.DownTo(ctx, target)
		if err != nil {
			return results, fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return results, nil
	}
}
