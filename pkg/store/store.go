package store

import (
	"embed"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Options control the connection pool and maintenance behavior.
type Options struct {
	// PoolSize caps concurrent connections. Queries serialize only on
	// pool checkout, not on execution.
	PoolSize int
	// Retention is how long time-series rows are kept.
	Retention time.Duration
	// VacuumThresholdBytes triggers compaction once the database file
	// grows past it.
	VacuumThresholdBytes int64
	// MaintenanceInterval is the period between maintenance runs.
	MaintenanceInterval time.Duration
}

// DefaultOptions match the production deployment defaults.
func DefaultOptions() Options {
	return Options{
		PoolSize:             5,
		Retention:            30 * 24 * time.Hour,
		VacuumThresholdBytes: 100 * 1024 * 1024,
		MaintenanceInterval:  time.Hour,
	}
}

// Stores aggregates the per-table stores over one shared database.
type Stores struct {
	Nodes     NodeStore
	Telemetry TelemetryStore
	Positions PositionStore
	Messages  MessageStore
	Topology  TopologyStore

	db          *sqlx.DB
	path        string
	log         *slog.Logger
	opts        Options
	maintenance *maintenanceTask
}

// Open opens (creating if necessary) the database at path, applies the
// base schema migrations and the additive column migration, and starts
// the background maintenance task.
func Open(path string, log *slog.Logger, opts Options) (*Stores, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultOptions().PoolSize
	}

	db, err := sqlx.Connect("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(opts.PoolSize)
	db.SetMaxIdleConns(opts.PoolSize)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := ensureTelemetryColumns(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("extending telemetry schema: %w", err)
	}

	s := &Stores{
		Nodes:     &sqliteNodeStore{db: db},
		Telemetry: &sqliteTelemetryStore{db: db},
		Positions: &sqlitePositionStore{db: db},
		Messages:  &sqliteMessageStore{db: db},
		Topology:  &sqliteTopologyStore{db: db},
		db:        db,
		path:      path,
		log:       log,
		opts:      opts,
	}
	s.maintenance = startMaintenance(s)
	log.Info("database opened", "path", path, "pool_size", opts.PoolSize)
	return s, nil
}

// dsn builds the sqlite connection string. Pragmas ride the DSN so
// every pooled connection gets them, not just the first.
func dsn(path string) string {
	pragmas := url.Values{}
	for _, p := range []string{
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"busy_timeout(30000)",
		"cache_size(-2000)",
		"temp_store(MEMORY)",
	} {
		pragmas.Add("_pragma", p)
	}
	return "file:" + path + "?" + pragmas.Encode() + "&_time_format=sqlite"
}

func runMigrations(db *sqlx.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	drv, err := sqlitemigrate.WithInstance(db.DB, &sqlitemigrate.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// CleanupOldData prunes telemetry, position and message rows older than
// the retention window. Node rows are never deleted by the bridge.
func (s *Stores) CleanupOldData(retention time.Duration) error {
	cutoff := time.Now().UTC().Add(-retention)
	var total int64
	for _, table := range []string{"telemetry", "positions", "messages"} {
		res, err := s.db.Exec("DELETE FROM "+table+" WHERE timestamp < ?", cutoff)
		if err != nil {
			return fmt.Errorf("pruning %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if total > 0 {
		s.log.Info("pruned old rows", "rows", total, "retention", retention)
	}
	return nil
}

// Retention reports the configured retention window.
func (s *Stores) Retention() time.Duration {
	return s.opts.Retention
}

// Close stops the maintenance task, waiting a bounded time for it to
// exit, and closes the pool.
func (s *Stores) Close() error {
	if s.maintenance != nil {
		s.maintenance.stop(5 * time.Second)
	}
	return s.db.Close()
}
