// Package badgerkv is an embedded, on-disk storage.Adapter over BadgerDB,
// generalizing the teacher's BadgerCache[T] (a typed document cache keyed
// by primitive.ObjectID) into a durable keyed store for arbitrary
// JSON-shaped documents. Documents live at key "doc:<id>"; per-field index
// buckets live at "idx:<field>:<value>:<id>" (Badger has no native set
// type, so membership is expressed as key existence, same trick
// BadgerCache's own prefix-scan helpers use).
package badgerkv

import (
	"context"
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/storage"
	"github.com/signaldb-go/signaldb/valueutil"
)

// Adapter is a storage.Adapter over a *badger.DB.
type Adapter struct {
	db      *badger.DB
	indexed map[string]struct{}
}

// New wraps an already-opened *badger.DB.
func New(db *badger.DB) *Adapter {
	return &Adapter{db: db, indexed: map[string]struct{}{}}
}

// Open opens (or creates) a Badger database at dbPath and wraps it.
func Open(dbPath string) (*Adapter, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func docKey(id string) []byte { return []byte("doc:" + id) }

func idxKey(field string, value any, id string) []byte {
	return []byte("idx:" + field + ":" + valueutil.Serialize(value) + ":" + id)
}

func idxPrefix(field string, value any) []byte {
	return []byte("idx:" + field + ":" + valueutil.Serialize(value) + ":")
}

func (a *Adapter) Setup(ctx context.Context) error   { return nil }
func (a *Adapter) Teardown(ctx context.Context) error { return a.db.Close() }

func (a *Adapter) ReadAll(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	err := a.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("doc:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item, err := decodeItem(it.Item())
			if err != nil {
				return err
			}
			out = append(out, item)
		}
		return nil
	})
	return out, err
}

func (a *Adapter) ReadIDs(ctx context.Context, ids []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(ids))
	err := a.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			bItem, err := txn.Get(docKey(id))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			item, err := decodeItem(bItem)
			if err != nil {
				return err
			}
			out = append(out, item)
		}
		return nil
	})
	return out, err
}

func (a *Adapter) ReadIndex(ctx context.Context, field string, value any) ([]string, error) {
	var ids []string
	err := a.db.View(func(txn *badger.Txn) error {
		prefix := idxPrefix(field, value)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	return ids, err
}

func (a *Adapter) CreateIndex(ctx context.Context, spec storage.IndexSpec) error {
	a.indexed[spec.Field] = struct{}{}
	return nil
}

func (a *Adapter) DropIndex(ctx context.Context, field string) error {
	delete(a.indexed, field)
	return nil
}

func (a *Adapter) Insert(ctx context.Context, item map[string]any) error {
	id, _ := item["id"].(string)
	return a.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(docKey(id)); err == nil {
			return sderrors.NewDuplicateIDError(id)
		}
		return a.writeItemLocked(txn, id, nil, item)
	})
}

func (a *Adapter) Replace(ctx context.Context, id string, item map[string]any) error {
	return a.db.Update(func(txn *badger.Txn) error {
		var old map[string]any
		if bItem, err := txn.Get(docKey(id)); err == nil {
			old, _ = decodeItem(bItem)
		}
		return a.writeItemLocked(txn, id, old, item)
	})
}

func (a *Adapter) writeItemLocked(txn *badger.Txn, id string, old, item map[string]any) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := txn.Set(docKey(id), data); err != nil {
		return err
	}
	for field := range a.indexed {
		if old != nil {
			if v, ok := valueutil.Get(old, field); ok {
				txn.Delete(idxKey(field, v, id))
			}
		}
		if v, ok := valueutil.Get(item, field); ok {
			if err := txn.Set(idxKey(field, v, id), []byte{}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Adapter) Remove(ctx context.Context, id string) error {
	return a.db.Update(func(txn *badger.Txn) error {
		var old map[string]any
		if bItem, err := txn.Get(docKey(id)); err == nil {
			old, _ = decodeItem(bItem)
		}
		if err := txn.Delete(docKey(id)); err != nil {
			return err
		}
		for field := range a.indexed {
			if old != nil {
				if v, ok := valueutil.Get(old, field); ok {
					txn.Delete(idxKey(field, v, id))
				}
			}
		}
		return nil
	})
}

func (a *Adapter) RemoveAll(ctx context.Context, selectorDescription string, ids []string) error {
	for _, id := range ids {
		if err := a.Remove(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func decodeItem(bItem *badger.Item) (map[string]any, error) {
	var out map[string]any
	err := bItem.Value(func(val []byte) error {
		return json.Unmarshal(val, &out)
	})
	return out, err
}
