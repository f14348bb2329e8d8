// Package migrate applies the SQL schema and seed files. Migrations are
// ordered `NNN_name.up.sql` / `NNN_name.down.sql` pairs; seeds are plain
// `.sql` files applied once. Bookkeeping lives in two tables so seeds and
// schema history stay independent.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"authgate.org/internal/obs"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
	sqlSuffix  = ".sql"
)

// Runner executes migration and seed files from a filesystem, typically
// os.DirFS over ops/ or an embedded copy.
type Runner struct {
	db            *sql.DB
	files         fs.FS
	migrationsDir string
	seedsDir      string
}

// NewRunner constructs a Runner reading migrationsDir and seedsDir inside
// fsys.
func NewRunner(db *sql.DB, fsys fs.FS, migrationsDir, seedsDir string) (*Runner, error) {
	if db == nil || fsys == nil {
		return nil, errors.New("migrate: database handle and filesystem are required")
	}
	return &Runner{
		db:            db,
		files:         fsys,
		migrationsDir: migrationsDir,
		seedsDir:      seedsDir,
	}, nil
}

// Up applies all pending migrations in name order.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, migrationsTable)
	if err != nil {
		return err
	}
	names, err := r.sqlFiles(r.migrationsDir, upSuffix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.execFile(ctx, r.migrationsDir+"/"+name); err != nil {
			return fmt.Errorf("migrate: apply %s: %w", name, err)
		}
		if err := r.record(ctx, migrationsTable, name); err != nil {
			return err
		}
		obs.Logger().Info().Str("migration", name).Msg("migration_applied")
	}
	return nil
}

// Down rolls back the most recently applied migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	history, err := r.history(ctx, migrationsTable)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("migrate: nothing to roll back")
	}
	last := history[len(history)-1]
	downName := strings.TrimSuffix(last, upSuffix) + downSuffix
	if err := r.execFile(ctx, r.migrationsDir+"/"+downName); err != nil {
		return fmt.Errorf("migrate: roll back %s: %w", last, err)
	}
	if _, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, migrationsTable), last); err != nil {
		return err
	}
	obs.Logger().Info().Str("migration", last).Msg("migration_rolled_back")
	return nil
}

// Status returns applied migrations in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureTables(ctx); err != nil {
		return nil, err
	}
	return r.history(ctx, migrationsTable)
}

// Seed applies pending seed files. Seeds already recorded are skipped, so
// re-running is safe.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, seedsTable)
	if err != nil {
		return err
	}
	names, err := r.sqlFiles(r.seedsDir, sqlSuffix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.execFile(ctx, r.seedsDir+"/"+name); err != nil {
			return fmt.Errorf("migrate: apply seed %s: %w", name, err)
		}
		if err := r.record(ctx, seedsTable, name); err != nil {
			return err
		}
		obs.Logger().Info().Str("seed", name).Msg("seed_applied")
	}
	return nil
}

func (r *Runner) ensureTables(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				applied_at timestamptz not null default now()
			)`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

// execFile runs one SQL file inside a transaction. Files are split into
// statements because the driver's extended protocol executes one statement
// per call.
func (r *Runner) execFile(ctx context.Context, path string) error {
	raw, err := fs.ReadFile(r.files, path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Runner) record(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s (name) values ($1)`, table), name)
	return err
}

func (r *Runner) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	names, err := r.queryNames(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

func (r *Runner) history(ctx context.Context, table string) ([]string, error) {
	return r.queryNames(ctx, fmt.Sprintf(`select name from %s order by applied_at, name`, table))
}

func (r *Runner) queryNames(ctx context.Context, query string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *Runner) sqlFiles(dir, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(r.files, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if suffix == sqlSuffix && strings.HasSuffix(name, downSuffix) {
			continue
		}
		if strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements breaks a file into single statements on semicolons,
// respecting single-quoted strings and skipping `--` line comments so
// semicolons and quotes inside either do not end a statement.
func splitStatements(src string) []string {
	var (
		out      []string
		current  strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			out = append(out, s)
		}
		current.Reset()
	}
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\'':
			inString = !inString
			current.WriteByte(c)
		case !inString && c == '-' && i+1 < len(src) && src[i+1] == '-':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			current.WriteByte('\n')
		case c == ';' && !inString:
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return out
}
