package history

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/repoagent/repoagent/pkg/badgerfx"
	"github.com/samber/lo"
)

type Repository struct {
	db      *badger.DB
	records *badgerfx.Repository[*recordModel]
}

func NewRepository(db *badger.DB) *Repository {
	return &Repository{
		db:      db,
		records: badgerfx.NewRepository(func() *recordModel { return &recordModel{} }),
	}
}

// Create stores a record and its repository index.
func (r *Repository) Create(_ context.Context, record Record) error {
	if err := r.db.Update(func(txn *badger.Txn) error {
		return r.records.Write(txn, newRecordModel(record))
	}); err != nil {
		return fmt.Errorf("failed to create history record: %w", err)
	}

	return nil
}

// Get retrieves a record by its ID.
func (r *Repository) Get(_ context.Context, id uuid.UUID) (Record, error) {
	var model *recordModel

	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		model, err = r.records.Read(txn, id.String())
		return err
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to get history record: %w", err)
	}

	return model.toDomain(), nil
}

// ListByRoot returns the records of one repository, newest first.
func (r *Repository) ListByRoot(_ context.Context, root string, limit int) ([]Record, error) {
	var models []*recordModel

	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		models, err = r.records.ListByIndex(txn, repoPrefix(root), true, limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history records: %w", err)
	}

	return lo.Map(models, func(m *recordModel, _ int) Record { return m.toDomain() }), nil
}

// Delete removes a record and its index.
func (r *Repository) Delete(_ context.Context, id uuid.UUID) error {
	if err := r.db.Update(func(txn *badger.Txn) error {
		return r.records.Delete(txn, id.String())
	}); err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}

	return nil
}
