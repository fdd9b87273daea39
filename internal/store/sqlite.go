package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"DynamicVault/internal/model"
)

// SQLiteStore keeps one fixed-layout account blob per vault.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteStore opens (or creates) the vault table in the SQLite database at dbPath.
func NewSQLiteStore(dbPath string, log *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS vaults (
		admin      TEXT PRIMARY KEY,
		account    BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create vaults table: %w", err)
	}
	log.Info("sqlite vault store opened", zap.String("path", dbPath))
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]model.Vault, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT admin, account FROM vaults ORDER BY admin`)
	if err != nil {
		return nil, fmt.Errorf("query vaults: %w", err)
	}
	defer rows.Close()

	var out []model.Vault
	for rows.Next() {
		var admin string
		var blob []byte
		if err := rows.Scan(&admin, &blob); err != nil {
			return nil, fmt.Errorf("scan vault: %w", err)
		}
		v, err := model.UnmarshalAccount(blob)
		if err != nil {
			return nil, fmt.Errorf("vault %s: %w", admin, err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, v model.Vault) error {
	blob, err := model.MarshalAccount(&v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO vaults (admin, account, updated_at) VALUES (?,?,?)
		ON CONFLICT(admin) DO UPDATE SET account = excluded.account, updated_at = excluded.updated_at`,
		v.Admin.String(), blob, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert vault: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.log.Info("closing sqlite vault store")
	return s.db.Close()
}
