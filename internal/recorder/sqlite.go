package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the vault journal to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the vault store and dashboards can read while the keeper writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_events (
			id          TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL,
			vault       TEXT NOT NULL,
			at          INTEGER NOT NULL,
			price       REAL,
			drift_pct   REAL,
			staged      INTEGER,
			bin_lower   INTEGER,
			bin_upper   INTEGER,
			seeded      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_vault_at ON price_events(vault, at)`,

		`CREATE TABLE IF NOT EXISTS rebalance_events (
			id           TEXT PRIMARY KEY,
			recorded_at  INTEGER NOT NULL,
			vault        TEXT NOT NULL,
			at           INTEGER NOT NULL,
			from_lower   INTEGER,
			from_upper   INTEGER,
			to_lower     INTEGER,
			to_upper     INTEGER,
			token_amount INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rebalance_vault_at ON rebalance_events(vault, at)`,

		`CREATE TABLE IF NOT EXISTS harvest_events (
			id          TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL,
			vault       TEXT NOT NULL,
			at          INTEGER NOT NULL,
			amount      INTEGER,
			total_after INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_harvest_vault_at ON harvest_events(vault, at)`,

		`CREATE TABLE IF NOT EXISTS liquidity_events (
			id          TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL,
			vault       TEXT NOT NULL,
			action      TEXT,
			amount      INTEGER,
			share       INTEGER,
			bin_lower   INTEGER,
			bin_upper   INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS lifecycle_events (
			id          TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL,
			vault       TEXT NOT NULL,
			action      TEXT,
			note        TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS rejections (
			id          TEXT PRIMARY KEY,
			recorded_at INTEGER NOT NULL,
			vault       TEXT NOT NULL,
			op          TEXT,
			kind        TEXT,
			detail      TEXT,
			fail_open   INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rejections_vault ON rejections(vault, recorded_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordPrice(evt *PriceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO price_events
		(id, recorded_at, vault, at, price, drift_pct, staged, bin_lower, bin_upper, seeded)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), time.Now().Unix(), evt.Vault, evt.At,
		evt.Price, evt.DriftPct, evt.Staged, evt.Candidate[0], evt.Candidate[1], evt.Seeded,
	)
	return err
}

func (r *SQLiteRecorder) RecordRebalance(evt *RebalanceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO rebalance_events
		(id, recorded_at, vault, at, from_lower, from_upper, to_lower, to_upper, token_amount)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		uuid.NewString(), time.Now().Unix(), evt.Vault, evt.At,
		evt.From[0], evt.From[1], evt.To[0], evt.To[1], int64(evt.TokenAmount),
	)
	return err
}

func (r *SQLiteRecorder) RecordHarvest(evt *HarvestEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO harvest_events
		(id, recorded_at, vault, at, amount, total_after)
		VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), time.Now().Unix(), evt.Vault, evt.At,
		int64(evt.Amount), int64(evt.TotalAfter),
	)
	return err
}

func (r *SQLiteRecorder) RecordLiquidity(evt *LiquidityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO liquidity_events
		(id, recorded_at, vault, action, amount, share, bin_lower, bin_upper)
		VALUES (?,?,?,?,?,?,?,?)`,
		uuid.NewString(), time.Now().Unix(), evt.Vault, evt.Action,
		int64(evt.Amount), int64(evt.Share), evt.Bins[0], evt.Bins[1],
	)
	return err
}

func (r *SQLiteRecorder) RecordLifecycle(evt *LifecycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO lifecycle_events
		(id, recorded_at, vault, action, note)
		VALUES (?,?,?,?,?)`,
		uuid.NewString(), time.Now().Unix(), evt.Vault, evt.Action, evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordRejection(evt *RejectionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO rejections
		(id, recorded_at, vault, op, kind, detail, fail_open)
		VALUES (?,?,?,?,?,?,?)`,
		uuid.NewString(), time.Now().Unix(), evt.Vault, evt.Op, evt.Kind, evt.Detail, evt.FailOpen,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info("closing sqlite recorder")
	return r.db.Close()
}
