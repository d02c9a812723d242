package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsGlob = "sql/migrations/*.sql"
	// Ключ advisory-блокировки, чтобы миграции не запускались параллельно
	// с нескольких инстансов.
	migrationLockKey = int64(20260415)
)

const schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var migrationNameRE = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type direction string

const (
	dirUp   direction = "up"
	dirDown direction = "down"
)

// migration — собранная пара up/down для одной версии схемы.
type migration struct {
	version int64
	name    string
	up      string
	down    string
}

// attach кладёт тело sql-файла в соответствующую половину пары.
func (m *migration) attach(dir direction, body string) error {
	switch dir {
	case dirUp:
		if m.up != "" {
			return fmt.Errorf("duplicate up migration for version %d", m.version)
		}
		m.up = body
	case dirDown:
		if m.down != "" {
			return fmt.Errorf("duplicate down migration for version %d", m.version)
		}
		m.down = body
	}
	return nil
}

// MigrateUp применяет up-миграции; steps=0 применяет все доступные.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, dirUp, steps)
}

// MigrateDown откатывает миграции. Неположительный steps интерпретируется
// как один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, dirDown, steps)
}

// MigrationStatus возвращает текущую версию и количество применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if err := s.ready(); err != nil {
		return 0, 0, err
	}

	statusCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(statusCtx, schemaMigrationsDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var version int64
	var applied int
	row := s.db.QueryRowContext(statusCtx, `SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`)
	if err := row.Scan(&version, &applied); err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}

	return version, applied, nil
}

func (s *Store) migrate(ctx context.Context, dir direction, steps int) error {
	if err := s.ready(); err != nil {
		return err
	}

	migrations, err := readMigrationDir(migrationsFS)
	if err != nil {
		return err
	}

	// Все шаги выполняются на одном соединении: advisory lock привязан к нему.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	sc := schemaConn{conn: conn}
	if err := sc.lock(ctx); err != nil {
		return err
	}
	defer sc.unlock()

	if err := sc.ensureTable(ctx); err != nil {
		return err
	}

	switch dir {
	case dirUp:
		return rollForward(ctx, sc, migrations, steps)
	case dirDown:
		return rollBack(ctx, sc, migrations, steps)
	default:
		return fmt.Errorf("unsupported migration direction: %s", dir)
	}
}

func rollForward(ctx context.Context, sc schemaConn, migrations []migration, steps int) error {
	done, err := sc.appliedVersions(ctx)
	if err != nil {
		return err
	}

	applied := 0
	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		if err := sc.runStep(ctx, m, dirUp); err != nil {
			return err
		}
		applied++
		if steps > 0 && applied == steps {
			return nil
		}
	}

	return nil
}

func rollBack(ctx context.Context, sc schemaConn, migrations []migration, steps int) error {
	byVersion := make(map[int64]migration, len(migrations))
	for _, m := range migrations {
		byVersion[m.version] = m
	}

	recent, err := sc.newestVersions(ctx, steps)
	if err != nil {
		return err
	}

	for _, version := range recent {
		m, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("cannot rollback unknown migration version %d", version)
		}
		if err := sc.runStep(ctx, m, dirDown); err != nil {
			return err
		}
	}

	return nil
}

// schemaConn держит соединение с advisory-блокировкой и операции
// над таблицей schema_migrations.
type schemaConn struct {
	conn *sql.Conn
}

func (sc schemaConn) lock(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := sc.conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	return nil
}

func (sc schemaConn) unlock() {
	_, _ = sc.conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
}

func (sc schemaConn) ensureTable(ctx context.Context) error {
	if _, err := sc.conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}

func (sc schemaConn) appliedVersions(ctx context.Context) (map[int64]bool, error) {
	rows, err := sc.conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}

	list, err := scanVersions(rows, 0)
	if err != nil {
		return nil, err
	}

	done := make(map[int64]bool, len(list))
	for _, version := range list {
		done[version] = true
	}
	return done, nil
}

func (sc schemaConn) newestVersions(ctx context.Context, limit int) ([]int64, error) {
	rows, err := sc.conn.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query newest migrations: %w", err)
	}
	return scanVersions(rows, limit)
}

func scanVersions(rows *sql.Rows, sizeHint int) ([]int64, error) {
	defer rows.Close()

	versions := make([]int64, 0, sizeHint)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}

	return versions, nil
}

// runStep выполняет тело миграции и запись в schema_migrations
// в одной транзакции.
func (sc schemaConn) runStep(ctx context.Context, m migration, dir direction) error {
	script := m.up
	record := `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`
	args := []any{m.version, m.name}
	if dir == dirDown {
		script = m.down
		record = `DELETE FROM schema_migrations WHERE version = $1`
		args = []any{m.version}
	}

	tx, err := sc.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %d): %w", dir, m.version, err)
	}

	if _, err := tx.ExecContext(ctx, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute %s migration %d_%s: %w", dir, m.version, m.name, err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s migration %d_%s: %w", dir, m.version, m.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %d_%s: %w", dir, m.version, m.name, err)
	}

	return nil
}

// readMigrationDir собирает встроенные sql-файлы в упорядоченный список
// пар up/down. Неполная или неоднозначная пара считается ошибкой.
func readMigrationDir(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	pairs := make(map[int64]*migration, len(files)/2)
	for _, file := range files {
		base := filepath.Base(file)
		version, name, dir, err := parseMigrationName(base)
		if err != nil {
			return nil, err
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		pair := pairs[version]
		if pair == nil {
			pair = &migration{version: version, name: name}
			pairs[version] = pair
		}
		if pair.name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, pair.name, name)
		}
		if err := pair.attach(dir, body); err != nil {
			return nil, err
		}
	}

	migrations := make([]migration, 0, len(pairs))
	for _, pair := range pairs {
		if pair.up == "" || pair.down == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", pair.version, pair.name)
		}
		migrations = append(migrations, *pair)
	}
	slices.SortFunc(migrations, func(a, b migration) int { return cmp.Compare(a.version, b.version) })

	return migrations, nil
}

// parseMigrationName разбирает имя файла вида 0001_name.up.sql.
func parseMigrationName(base string) (int64, string, direction, error) {
	matches := migrationNameRE.FindStringSubmatch(base)
	if len(matches) != 4 {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}

	version, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("parse migration version from %s: %w", base, err)
	}

	return version, matches[2], direction(matches[3]), nil
}
