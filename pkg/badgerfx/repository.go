package badgerfx

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

type EntityFactory[T Entity] func() T

// Repository reads and writes entities of one type inside caller-owned
// transactions.
type Repository[T Entity] struct {
	zero    T
	factory EntityFactory[T]
}

func NewRepository[T Entity](factory EntityFactory[T]) *Repository[T] {
	return &Repository[T]{
		zero:    factory(),
		factory: factory,
	}
}

// ListByIndex resolves index keys under prefix to their entities. Reverse
// walks from the end of the prefix range. A limit of zero means no limit.
func (r *Repository[T]) ListByIndex(txn *badger.Txn, prefix string, reverse bool, limit int) ([]T, error) {
	validPrefix := []byte(prefix)
	seekPrefix := []byte(prefix)
	if reverse {
		seekPrefix = append(seekPrefix, SeekEnd)
	}

	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var entities []T
	for it.Seek(seekPrefix); it.ValidForPrefix(validPrefix); it.Next() {
		if limit > 0 && len(entities) >= limit {
			break
		}

		key, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get entity key: %w", err)
		}

		entity, err := r.get(txn, key)
		if err != nil {
			return nil, err
		}

		entities = append(entities, entity)
	}

	return entities, nil
}

func (r *Repository[T]) Read(txn *badger.Txn, id string) (T, error) {
	return r.get(txn, []byte(r.zero.StorageKey(id)))
}

func (r *Repository[T]) Write(txn *badger.Txn, entity T) error {
	data, err := entity.MarshalStorage()
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	key := []byte(entity.StorageKey())
	for _, index := range entity.StorageIndexes() {
		if setErr := txn.Set([]byte(index), key); setErr != nil {
			return fmt.Errorf("failed to set entity index: %w", setErr)
		}
	}

	if setErr := txn.Set(key, data); setErr != nil {
		return fmt.Errorf("failed to write entity: %w", setErr)
	}

	return nil
}

func (r *Repository[T]) Delete(txn *badger.Txn, id string) error {
	entity, err := r.Read(txn, id)
	if err != nil {
		return err
	}

	for _, index := range entity.StorageIndexes() {
		if delErr := txn.Delete([]byte(index)); delErr != nil {
			return fmt.Errorf("failed to delete entity index: %w", delErr)
		}
	}

	if delErr := txn.Delete([]byte(entity.StorageKey())); delErr != nil {
		return fmt.Errorf("failed to delete entity: %w", delErr)
	}

	return nil
}

func (r *Repository[T]) get(txn *badger.Txn, key []byte) (T, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return r.zero, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return r.zero, fmt.Errorf("failed to get entity: %w", err)
	}

	entity := r.factory()
	if valErr := item.Value(entity.UnmarshalStorage); valErr != nil {
		return r.zero, fmt.Errorf("failed to unmarshal entity: %w", valErr)
	}

	return entity, nil
}
