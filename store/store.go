// Package store persists operations, exchange rates and aggregation runs in
// a SQLite database.
//
// Operations are append-only: importing the same operation twice is a no-op,
// importing a different operation under an existing id is an error. Every
// aggregation run is saved with its configuration, ledger end state and
// events, under a random run id.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/etnz/fiscal"
	"github.com/etnz/fiscal/date"
	"github.com/etnz/fiscal/fx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// Store is a handle on the database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating it if needed, and applies
// pending schema migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	// a single connection avoids SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not read migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migration instance creation failed: %w", err)
	}
	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
	case err != nil:
		return fmt.Errorf("failed to apply migrations: %w", err)
	default:
		v, _, _ := m.Version()
		log.Printf("database schema migrated to version %d", v)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// AddOperations appends ops in order and returns how many were new.
// Operations already stored with identical content are skipped. Nothing is
// written if any operation is invalid or conflicts with a stored one.
func (s *Store) AddOperations(ctx context.Context, ops []fiscal.Operation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var errs []error
	added := 0
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		data, err := json.Marshal(op)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO operations (id, tx, time, kind, account, asset, data) VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO NOTHING`,
			op.ID, op.TxID(), op.Time.Format(time.RFC3339Nano), string(op.Kind), op.Account, op.Asset, string(data))
		if err != nil {
			return 0, fmt.Errorf("operation %q: %w", op.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			added++
			continue
		}
		var existing string
		if err := tx.QueryRowContext(ctx, `SELECT data FROM operations WHERE id = ?`, op.ID).Scan(&existing); err != nil {
			return 0, fmt.Errorf("operation %q: %w", op.ID, err)
		}
		if existing != string(data) {
			errs = append(errs, fmt.Errorf("%w: %q differs from the stored operation", fiscal.ErrDuplicateOperation, op.ID))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// Operations returns every stored operation in import order.
func (s *Store) Operations(ctx context.Context) ([]fiscal.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM operations ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ops []fiscal.Operation
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var op fiscal.Operation
		if err := json.Unmarshal([]byte(data), &op); err != nil {
			return nil, fmt.Errorf("operation %q: %w", id, err)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// AddRates stores every observation of t, replacing existing ones.
func (s *Store) AddRates(ctx context.Context, t *fx.Table) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	n := 0
	for r := range t.Rates() {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO rates (pair, day, rate) VALUES (?, ?, ?)
			 ON CONFLICT(pair, day) DO UPDATE SET rate = excluded.rate`,
			r.Pair.String(), r.Date.String(), r.Rate.String())
		if err != nil {
			return 0, fmt.Errorf("%s on %s: %w", r.Pair, r.Date, err)
		}
		n++
	}
	return n, tx.Commit()
}

// LookupRate implements fx.Lookup on the stored rates.
func (s *Store) LookupRate(ctx context.Context, pair fx.Pair, on date.Date) (decimal.Decimal, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT rate FROM rates WHERE pair = ? AND day = ?`, pair.String(), on.String()).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%s on %s: %w", pair, on, fx.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(text)
}

// Rates loads every stored rate into a table.
func (s *Store) Rates(ctx context.Context) (*fx.Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT pair, day, rate FROM rates ORDER BY pair, day`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	t := fx.NewTable()
	for rows.Next() {
		var pair, day, text string
		if err := rows.Scan(&pair, &day, &text); err != nil {
			return nil, err
		}
		p, err := fx.ParsePair(pair)
		if err != nil {
			return nil, err
		}
		d, err := date.Parse(day)
		if err != nil {
			return nil, err
		}
		r, err := decimal.NewFromString(text)
		if err != nil {
			return nil, fmt.Errorf("%s on %s: %w", pair, day, err)
		}
		t.Set(p, d, r)
	}
	return t, rows.Err()
}

// Run is a saved aggregation run.
type Run struct {
	ID         string         `json:"id"`
	Created    time.Time      `json:"created"`
	Config     fiscal.Config  `json:"config"`
	Operations int            `json:"operations"` // number of operations aggregated
	Ledger     *fiscal.Ledger `json:"ledger,omitempty"`
	Failures   []string       `json:"failures,omitempty"`
}

// SaveRun records the result of aggregating n operations with cfg.
func (s *Store) SaveRun(ctx context.Context, cfg fiscal.Config, n int, res *fiscal.Result) (Run, error) {
	run := Run{
		ID:         uuid.NewString(),
		Created:    time.Now().UTC(),
		Config:     cfg,
		Operations: n,
		Ledger:     res.Ledger,
		Failures:   []string{},
	}
	for _, f := range res.Failures {
		run.Failures = append(run.Failures, f.Error())
	}
	cfgData, err := json.Marshal(cfg)
	if err != nil {
		return Run{}, err
	}
	ledger, err := json.Marshal(res.Ledger)
	if err != nil {
		return Run{}, err
	}
	failures, err := json.Marshal(run.Failures)
	if err != nil {
		return Run{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, err
	}
	defer tx.Rollback()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, created, config, operations, ledger, failures) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Created.Format(time.RFC3339Nano), string(cfgData), n, string(ledger), string(failures))
	if err != nil {
		return Run{}, err
	}
	for i, e := range res.Events {
		data, err := json.Marshal(e)
		if err != nil {
			return Run{}, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO events (run, seq, id, class, fiscal_year, data) VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, i, e.ID, string(e.Class), e.FiscalYear, string(data))
		if err != nil {
			return Run{}, fmt.Errorf("event %q: %w", e.ID, err)
		}
	}
	return run, tx.Commit()
}

const runColumns = `id, created, config, operations, ledger, failures`

// scanRun reads a row of runColumns.
func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var run Run
	var created, cfg, ledger, failures string
	if err := row.Scan(&run.ID, &created, &cfg, &run.Operations, &ledger, &failures); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	var err error
	if run.Created, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	if run.Config, err = fiscal.DecodeConfig(strings.NewReader(cfg)); err != nil {
		return Run{}, fmt.Errorf("run %s: %w", run.ID, err)
	}
	run.Ledger = fiscal.NewLedger()
	if err := json.Unmarshal([]byte(ledger), run.Ledger); err != nil {
		return Run{}, fmt.Errorf("run %s: ledger: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(failures), &run.Failures); err != nil {
		return Run{}, fmt.Errorf("run %s: failures: %w", run.ID, err)
	}
	return run, nil
}

// LatestRun returns the last saved run, ErrNotFound if there is none.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	return scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq DESC LIMIT 1`))
}

// GetRun returns the run with id, ErrNotFound if it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, ErrNotFound) {
		return Run{}, fmt.Errorf("run %s: %w", id, err)
	}
	return run, err
}

// Runs lists the saved runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns the events of a run in production order. A non empty
// fiscalYear keeps only the events of that fiscal year.
func (s *Store) Events(ctx context.Context, runID, fiscalYear string) ([]fiscal.TaxableEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM events WHERE run = ? AND (? = '' OR fiscal_year = ?) ORDER BY seq`,
		runID, fiscalYear, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []fiscal.TaxableEvent
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		var e fiscal.TaxableEvent
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, fmt.Errorf("event %q: %w", id, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
