package repository

import (
	"context"
	"errors"
	"fmt"

	"cidermill-sync-server/internal/domain"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
)

// ErrNotFound is returned when a document does not exist. Callers treat it as
// "absent", not as a storage failure.
var ErrNotFound = errors.New("not found")

// DraftRepository persists press-run drafts. Writes always replace the whole
// document; partial field patches against the underlying store are not
// supported, which keeps read-modify-write the only mutation path.
type DraftRepository interface {
	Put(run *domain.PressRun) error
	Get(id string) (*domain.PressRun, error)
	List() ([]*domain.PressRun, error)
	Delete(id string) error
}

// QueueRepository persists pending sync intents.
type QueueRepository interface {
	Put(item *domain.QueueItem) error
	Get(id string) (*domain.QueueItem, error)
	List() ([]*domain.QueueItem, error)
	Delete(id string) error
	DeleteAll() error
}

// ConflictRepository persists conflicts that were handed to manual review so
// they survive a process restart. Auto-resolved conflicts are never stored.
type ConflictRepository interface {
	Put(conflict *domain.Conflict) error
	Get(id string) (*domain.Conflict, error)
	List() ([]*domain.Conflict, error)
	Delete(id string) error
}

type Backend string

const (
	BackendCouch  Backend = "couch"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Stores bundles the three repositories opened against one backend.
type Stores struct {
	Drafts    DraftRepository
	Queue     QueueRepository
	Conflicts ConflictRepository
}

// CouchOptions configures the CouchDB backend.
type CouchOptions struct {
	URL    string
	DBName string
}

// Open selects a backend and opens all repositories against it.
func Open(backend Backend, couch CouchOptions, sqlitePath string) (*Stores, error) {
	switch backend {
	case BackendCouch:
		client, err := kivik.New("couch", couch.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to CouchDB: %w", err)
		}
		exists, err := client.DBExists(context.Background(), couch.DBName)
		if err != nil {
			return nil, fmt.Errorf("failed to check database existence: %w", err)
		}
		if !exists {
			if err := client.CreateDB(context.Background(), couch.DBName); err != nil {
				return nil, fmt.Errorf("failed to create database: %w", err)
			}
		}
		return &Stores{
			Drafts:    NewCouchDraftRepository(client, couch.DBName),
			Queue:     NewCouchQueueRepository(client, couch.DBName),
			Conflicts: NewCouchConflictRepository(client, couch.DBName),
		}, nil

	case BackendSQLite:
		db, err := OpenSQLite(sqlitePath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Drafts:    NewSQLiteDraftRepository(db),
			Queue:     NewSQLiteQueueRepository(db),
			Conflicts: NewSQLiteConflictRepository(db),
		}, nil

	case BackendMemory:
		return &Stores{
			Drafts:    NewMemoryDraftRepository(),
			Queue:     NewMemoryQueueRepository(),
			Conflicts: NewMemoryConflictRepository(),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
