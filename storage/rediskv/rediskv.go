// Package rediskv is a storage.Adapter keyed-record implementation over
// Redis, generalizing the teacher's RedisCache[T] (a typed document cache
// with TTL) into a durable keyed store: every document is a JSON blob at
// "signaldb:<collection>:<id>", plus one Redis Set per indexed field value
// ("signaldb:<collection>:idx:<field>:<value>") so ReadIndex can be
// answered with SMEMBERS instead of a full table scan.
package rediskv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/signaldb-go/signaldb/sderrors"
	"github.com/signaldb-go/signaldb/storage"
	"github.com/signaldb-go/signaldb/valueutil"
)

// Adapter is a storage.Adapter over a *redis.Client.
type Adapter struct {
	client     *redis.Client
	collection string
	indexed    map[string]struct{}
}

// New wraps client, namespacing all keys under collection.
func New(client *redis.Client, collection string) *Adapter {
	return &Adapter{client: client, collection: collection, indexed: map[string]struct{}{}}
}

func (a *Adapter) docKey(id string) string   { return fmt.Sprintf("signaldb:%s:%s", a.collection, id) }
func (a *Adapter) setKey(id string) string   { return fmt.Sprintf("signaldb:%s:ids", a.collection) }
func (a *Adapter) idxKey(field string, value any) string {
	return fmt.Sprintf("signaldb:%s:idx:%s:%s", a.collection, field, valueutil.Serialize(value))
}

func (a *Adapter) Setup(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *Adapter) Teardown(ctx context.Context) error {
	return nil
}

func (a *Adapter) ReadAll(ctx context.Context) ([]map[string]any, error) {
	ids, err := a.client.SMembers(ctx, a.setKey("")).Result()
	if err != nil {
		return nil, err
	}
	return a.ReadIDs(ctx, ids)
}

func (a *Adapter) ReadIDs(ctx context.Context, ids []string) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		data, err := a.client.Get(ctx, a.docKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var item map[string]any
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (a *Adapter) ReadIndex(ctx context.Context, field string, value any) ([]string, error) {
	return a.client.SMembers(ctx, a.idxKey(field, value)).Result()
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
	exists, err := a.client.SIsMember(ctx, a.setKey(""), id).Result()
	if err != nil {
		return err
	}
	if exists {
		return sderrors.NewDuplicateIDError(id)
	}
	return a.writeItem(ctx, id, item)
}

func (a *Adapter) Replace(ctx context.Context, id string, item map[string]any) error {
	return a.writeItem(ctx, id, item)
}

func (a *Adapter) writeItem(ctx context.Context, id string, item map[string]any) error {
	var old map[string]any
	if data, err := a.client.Get(ctx, a.docKey(id)).Bytes(); err == nil {
		json.Unmarshal(data, &old)
	}

	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	pipe := a.client.TxPipeline()
	pipe.Set(ctx, a.docKey(id), data, 0)
	pipe.SAdd(ctx, a.setKey(""), id)
	for field := range a.indexed {
		if old != nil {
			if v, ok := valueutil.Get(old, field); ok {
				pipe.SRem(ctx, a.idxKey(field, v), id)
			}
		}
		if v, ok := valueutil.Get(item, field); ok {
			pipe.SAdd(ctx, a.idxKey(field, v), id)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (a *Adapter) Remove(ctx context.Context, id string) error {
	data, err := a.client.Get(ctx, a.docKey(id)).Bytes()
	var item map[string]any
	if err == nil {
		json.Unmarshal(data, &item)
	}
	pipe := a.client.TxPipeline()
	pipe.Del(ctx, a.docKey(id))
	pipe.SRem(ctx, a.setKey(""), id)
	for field := range a.indexed {
		if item != nil {
			if v, ok := valueutil.Get(item, field); ok {
				pipe.SRem(ctx, a.idxKey(field, v), id)
			}
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (a *Adapter) RemoveAll(ctx context.Context, selectorDescription string, ids []string) error {
	for _, id := range ids {
		if err := a.Remove(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
