// Package checkpoint persists the last reported cost of every container
// resource so the never-decreasing guarantee survives restarts.
package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/elevated-systems/container-cost-exporter/pkg/containercost/types"
	_ "github.com/mattn/go-sqlite3"
	"k8s.io/klog/v2"
)

// Store loads and saves checkpointed costs
type Store interface {
	LoadAll(ctx context.Context) (map[types.IdentityKey]float64, error)
	Save(ctx context.Context, costs map[types.IdentityKey]float64) error
	Close() error
}

// SQLiteStore implements Store on a local SQLite file
type SQLiteStore struct {
	db       *sql.DB
	dbPath   string
	mutex    sync.Mutex
	prepared map[string]*sql.Stmt
	now      func() time.Time
}

var _ Store = &SQLiteStore{}

// NewSQLiteStore opens or creates the checkpoint database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	// Cycles of different kinds save concurrently; sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{
		db:       db,
		dbPath:   dbPath,
		prepared: make(map[string]*sql.Stmt),
		now:      time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare checkpoint statements: %w", err)
	}

	klog.V(2).InfoS("Opened cost checkpoint", "path", dbPath)
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cost_checkpoints (
		resource TEXT NOT NULL,
		container TEXT NOT NULL,
		pod TEXT NOT NULL,
		namespace TEXT NOT NULL,
		node TEXT NOT NULL,
		cost REAL NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (resource, container, pod, namespace, node)
	);

	CREATE INDEX IF NOT EXISTS idx_cost_checkpoints_updated_at ON cost_checkpoints(updated_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepareStatements() error {
	statements := map[string]string{
		// A stored cost is only ever raised
		"upsert": `
			INSERT INTO cost_checkpoints (resource, container, pod, namespace, node, cost, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (resource, container, pod, namespace, node)
			DO UPDATE SET cost = MAX(cost, excluded.cost), updated_at = excluded.updated_at
		`,
		"select_all": `
			SELECT resource, container, pod, namespace, node, cost
			FROM cost_checkpoints
		`,
		"cleanup": `
			DELETE FROM cost_checkpoints
			WHERE updated_at < ?
		`,
	}

	for name, query := range statements {
		stmt, err := s.db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		s.prepared[name] = stmt
	}
	return nil
}

// LoadAll returns every checkpointed cost keyed by identity.
// Rows with an unknown resource kind are skipped.
func (s *SQLiteStore) LoadAll(ctx context.Context) (map[types.IdentityKey]float64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	rows, err := s.prepared["select_all"].QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	out := make(map[types.IdentityKey]float64)
	for rows.Next() {
		var resource string
		var key types.IdentityKey
		var cost float64
		if err := rows.Scan(&resource, &key.Container, &key.Pod, &key.Namespace, &key.Node, &cost); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		kind, err := types.ParseResourceKind(resource)
		if err != nil {
			klog.V(2).InfoS("Skipping checkpoint with unknown resource", "resource", resource)
			continue
		}
		key.Kind = kind
		out[key] = cost
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoints: %w", err)
	}

	klog.V(2).InfoS("Loaded cost checkpoints", "count", len(out))
	return out, nil
}

// Save upserts costs in one transaction
func (s *SQLiteStore) Save(ctx context.Context, costs map[types.IdentityKey]float64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin checkpoint transaction: %w", err)
	}
	stmt := tx.StmtContext(ctx, s.prepared["upsert"])
	updatedAt := s.now().UTC()

	for key, cost := range costs {
		if _, err := stmt.ExecContext(ctx, key.Kind.String(), key.Container, key.Pod, key.Namespace, key.Node, cost, updatedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to checkpoint %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit checkpoints: %w", err)
	}

	klog.V(4).InfoS("Checkpointed costs", "count", len(costs))
	return nil
}

// Cleanup drops checkpoints not updated within retention
func (s *SQLiteStore) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	res, err := s.prepared["cleanup"].ExecContext(ctx, s.now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up checkpoints: %w", err)
	}
	n, _ := res.RowsAffected()
	klog.V(2).InfoS("Cleaned up stale cost checkpoints", "deleted", n, "retention", retention)
	return n, nil
}

// Close closes prepared statements and the database
func (s *SQLiteStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, stmt := range s.prepared {
		stmt.Close()
	}
	return s.db.Close()
}
