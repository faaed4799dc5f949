package repository

import (
	"context"
	"fmt"
	"net/http"

	"cidermill-sync-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const (
	docTypePressRun  = "press_run"
	docTypeQueueItem = "queue_item"
	docTypeConflict  = "conflict"
)

type couchDraftRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchDraftRepository(client *kivik.Client, dbName string) DraftRepository {
	return &couchDraftRepository{client: client, dbName: dbName}
}

type pressRunDoc struct {
	Rev     string           `json:"_rev,omitempty"`
	DocType string           `json:"doc_type"`
	Data    *domain.PressRun `json:"data"`
}

func (r *couchDraftRepository) Put(run *domain.PressRun) error {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("pressrun:%s", run.ID)

	doc := pressRunDoc{DocType: docTypePressRun, Data: run}
	doc.Rev = currentRev(db, docID)

	if _, err := db.Put(context.Background(), docID, doc); err != nil {
		return fmt.Errorf("failed to store press run: %w", err)
	}
	return nil
}

func (r *couchDraftRepository) Get(id string) (*domain.PressRun, error) {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("pressrun:%s", id)

	var doc pressRunDoc
	if err := db.Get(context.Background(), docID).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get press run: %w", err)
	}
	return doc.Data, nil
}

func (r *couchDraftRepository) List() ([]*domain.PressRun, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": docTypePressRun,
		},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list press runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.PressRun
	for rows.Next() {
		var doc pressRunDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		runs = append(runs, doc.Data)
	}
	return runs, nil
}

func (r *couchDraftRepository) Delete(id string) error {
	return couchDelete(r.client.DB(r.dbName), fmt.Sprintf("pressrun:%s", id))
}

type couchQueueRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchQueueRepository(client *kivik.Client, dbName string) QueueRepository {
	return &couchQueueRepository{client: client, dbName: dbName}
}

type queueItemDoc struct {
	Rev     string            `json:"_rev,omitempty"`
	DocType string            `json:"doc_type"`
	Data    *domain.QueueItem `json:"data"`
}

func (r *couchQueueRepository) Put(item *domain.QueueItem) error {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("queue:%s", item.ID)

	doc := queueItemDoc{DocType: docTypeQueueItem, Data: item}
	doc.Rev = currentRev(db, docID)

	if _, err := db.Put(context.Background(), docID, doc); err != nil {
		return fmt.Errorf("failed to store queue item: %w", err)
	}
	return nil
}

func (r *couchQueueRepository) Get(id string) (*domain.QueueItem, error) {
	db := r.client.DB(r.dbName)

	var doc queueItemDoc
	if err := db.Get(context.Background(), fmt.Sprintf("queue:%s", id)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get queue item: %w", err)
	}
	return doc.Data, nil
}

func (r *couchQueueRepository) List() ([]*domain.QueueItem, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": docTypeQueueItem,
		},
		"sort": []map[string]string{{"data.created_at": "asc"}},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list queue items: %w", err)
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		var doc queueItemDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		items = append(items, doc.Data)
	}
	return items, nil
}

func (r *couchQueueRepository) Delete(id string) error {
	return couchDelete(r.client.DB(r.dbName), fmt.Sprintf("queue:%s", id))
}

func (r *couchQueueRepository) DeleteAll() error {
	items, err := r.List()
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := r.Delete(item.ID); err != nil {
			return err
		}
	}
	return nil
}

type couchConflictRepository struct {
	client *kivik.Client
	dbName string
}

func NewCouchConflictRepository(client *kivik.Client, dbName string) ConflictRepository {
	return &couchConflictRepository{client: client, dbName: dbName}
}

type conflictDoc struct {
	Rev     string           `json:"_rev,omitempty"`
	DocType string           `json:"doc_type"`
	Data    *domain.Conflict `json:"data"`
}

func (r *couchConflictRepository) Put(conflict *domain.Conflict) error {
	db := r.client.DB(r.dbName)
	docID := fmt.Sprintf("conflict:%s", conflict.ID)

	doc := conflictDoc{DocType: docTypeConflict, Data: conflict}
	doc.Rev = currentRev(db, docID)

	if _, err := db.Put(context.Background(), docID, doc); err != nil {
		return fmt.Errorf("failed to store conflict: %w", err)
	}
	return nil
}

func (r *couchConflictRepository) Get(id string) (*domain.Conflict, error) {
	db := r.client.DB(r.dbName)

	var doc conflictDoc
	if err := db.Get(context.Background(), fmt.Sprintf("conflict:%s", id)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return doc.Data, nil
}

func (r *couchConflictRepository) List() ([]*domain.Conflict, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"doc_type": docTypeConflict,
		},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*domain.Conflict
	for rows.Next() {
		var doc conflictDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		conflicts = append(conflicts, doc.Data)
	}
	return conflicts, nil
}

func (r *couchConflictRepository) Delete(id string) error {
	return couchDelete(r.client.DB(r.dbName), fmt.Sprintf("conflict:%s", id))
}

// currentRev fetches the revision of an existing document so a Put replaces it
// instead of conflicting. Empty means the document does not exist yet.
func currentRev(db *kivik.DB, docID string) string {
	var existing map[string]interface{}
	if err := db.Get(context.Background(), docID).ScanDoc(&existing); err != nil {
		return ""
	}
	rev, _ := existing["_rev"].(string)
	return rev
}

func couchDelete(db *kivik.DB, docID string) error {
	rev := currentRev(db, docID)
	if rev == "" {
		return ErrNotFound
	}
	if _, err := db.Delete(context.Background(), docID, rev); err != nil {
		return fmt.Errorf("failed to delete %s: %w", docID, err)
	}
	return nil
}
