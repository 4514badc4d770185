package migrate

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestCreateSQLMigrationWritesValidFile(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "Add Payout Holds!", at)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20261019083000_add_payout_holds.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = createSQLMigrationAt(dir, "add payout holds", at)
	require.ErrorContains(t, err, "already exists")

	_, err = createSQLMigrationAt(dir, "!!!", at)
	require.ErrorContains(t, err, "empty sanitized filename")
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20261001000000_ok.sql", "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n")
	write("20261001000000_dup.sql", "-- +goose Up\n-- +goose Down\n")
	write("bad-name.sql", "")
	write("20261002000000_flipped.sql", "-- +goose Down\n-- +goose Up\n")
	write("20261003000000_no_down.sql", "-- +goose Up\n")
	write("README.md", "ignored")

	err := ValidateDir(dir)
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 4)
	require.ErrorContains(t, err, "duplicate migration version")
	require.ErrorContains(t, err, "invalid migration filename")
	require.ErrorContains(t, err, "Down before Up")
	require.ErrorContains(t, err, "missing")
}

func TestEmbeddedMatchesSourceTree(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, onDisk)

	embeddedFiles, err := fs.Glob(Embedded(), "*.sql")
	require.NoError(t, err)
	require.Len(t, embeddedFiles, len(onDisk))
	for _, path := range onDisk {
		require.Contains(t, embeddedFiles, filepath.Base(path))
	}
}

func TestSourceResolvesDefaultDirToEmbedded(t *testing.T) {
	_, err := fs.Stat(Source(DefaultDir), "20261001090100_create_orders.sql")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.sql"), nil, 0o644))
	_, err = fs.Stat(Source(dir), "x.sql")
	require.NoError(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("20261001090100")
	require.NoError(t, err)
	require.Equal(t, int64(20261001090100), v)

	for _, raw := range []string{"", "2026", "2026100109010x", "202610010901000"} {
		_, err := ParseVersion(raw)
		require.Error(t, err, raw)
	}
}

func TestRunRequiresDB(t *testing.T) {
	_, err := Run(context.Background(), nil, Embedded(), "up")
	require.ErrorContains(t, err, "db is required")
}
