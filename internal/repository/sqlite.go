package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cidermill-sync-server/internal/domain"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS press_runs (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS queue_items (
	id         TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	data       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS conflicts (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL
);
`

// OpenSQLite opens (and if needed initializes) the local single-file store.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return db, nil
}

type sqliteDraftRepository struct {
	db *sql.DB
}

func NewSQLiteDraftRepository(db *sql.DB) DraftRepository {
	return &sqliteDraftRepository{db: db}
}

func (r *sqliteDraftRepository) Put(run *domain.PressRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode press run: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO press_runs (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		run.ID, data,
	)
	if err != nil {
		return fmt.Errorf("failed to store press run: %w", err)
	}
	return nil
}

func (r *sqliteDraftRepository) Get(id string) (*domain.PressRun, error) {
	var data []byte
	err := r.db.QueryRow(`SELECT data FROM press_runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get press run: %w", err)
	}
	var run domain.PressRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to decode press run: %w", err)
	}
	return &run, nil
}

func (r *sqliteDraftRepository) List() ([]*domain.PressRun, error) {
	rows, err := r.db.Query(`SELECT data FROM press_runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list press runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.PressRun
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var run domain.PressRun
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func (r *sqliteDraftRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM press_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete press run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type sqliteQueueRepository struct {
	db *sql.DB
}

func NewSQLiteQueueRepository(db *sql.DB) QueueRepository {
	return &sqliteQueueRepository{db: db}
}

func (r *sqliteQueueRepository) Put(item *domain.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode queue item: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO queue_items (id, created_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		item.ID, item.CreatedAt.Format(time.RFC3339Nano), data,
	)
	if err != nil {
		return fmt.Errorf("failed to store queue item: %w", err)
	}
	return nil
}

func (r *sqliteQueueRepository) Get(id string) (*domain.QueueItem, error) {
	var data []byte
	err := r.db.QueryRow(`SELECT data FROM queue_items WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	var item domain.QueueItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode queue item: %w", err)
	}
	return &item, nil
}

func (r *sqliteQueueRepository) List() ([]*domain.QueueItem, error) {
	rows, err := r.db.Query(`SELECT data FROM queue_items ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var item domain.QueueItem
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *sqliteQueueRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM queue_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete queue item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteQueueRepository) DeleteAll() error {
	if _, err := r.db.Exec(`DELETE FROM queue_items`); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}
	return nil
}

type sqliteConflictRepository struct {
	db *sql.DB
}

func NewSQLiteConflictRepository(db *sql.DB) ConflictRepository {
	return &sqliteConflictRepository{db: db}
}

func (r *sqliteConflictRepository) Put(conflict *domain.Conflict) error {
	data, err := json.Marshal(conflict)
	if err != nil {
		return fmt.Errorf("failed to encode conflict: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO conflicts (id, data) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		conflict.ID, data,
	)
	if err != nil {
		return fmt.Errorf("failed to store conflict: %w", err)
	}
	return nil
}

func (r *sqliteConflictRepository) Get(id string) (*domain.Conflict, error) {
	var data []byte
	err := r.db.QueryRow(`SELECT data FROM conflicts WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	var conflict domain.Conflict
	if err := json.Unmarshal(data, &conflict); err != nil {
		return nil, fmt.Errorf("failed to decode conflict: %w", err)
	}
	return &conflict, nil
}

func (r *sqliteConflictRepository) List() ([]*domain.Conflict, error) {
	rows, err := r.db.Query(`SELECT data FROM conflicts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*domain.Conflict
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var conflict domain.Conflict
		if err := json.Unmarshal(data, &conflict); err != nil {
			continue
		}
		conflicts = append(conflicts, &conflict)
	}
	return conflicts, rows.Err()
}

func (r *sqliteConflictRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM conflicts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conflict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
