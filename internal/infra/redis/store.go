package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/inventory/internal/core/domain"
	"github.com/vietddude/inventory/internal/infra/storage"
)

const (
	fieldQuantity     = "quantity"
	fieldAcquiredDate = "acquired_date"
)

// KEYS[1] record hash, KEYS[2] user set.
// ARGV[1] delta, ARGV[2] acquired date for a new record, ARGV[3] catalog item id.
var upsertIncrementScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'acquired_date', ARGV[2])
local qty = redis.call('HINCRBY', KEYS[1], 'quantity', ARGV[1])
redis.call('SADD', KEYS[2], ARGV[3])
return {qty, redis.call('HGET', KEYS[1], 'acquired_date')}
`)

var _ storage.Store = (*Client)(nil)

// Get retrieves the record for a key.
func (c *Client) Get(ctx context.Context, key domain.InventoryKey) (*domain.InventoryRecord, error) {
	fields, err := c.rdb.HGetAll(ctx, c.recordKey(key.UserID.String(), key.CatalogItemID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrNotFound
	}
	return decodeRecord(key, fields)
}

// UpsertIncrement creates or increments a record atomically inside a Lua script.
func (c *Client) UpsertIncrement(
	ctx context.Context,
	key domain.InventoryKey,
	delta int64,
	onCreate storage.CreateDefaults,
) (*domain.InventoryRecord, error) {
	user, item := key.UserID.String(), key.CatalogItemID.String()
	keys := []string{c.recordKey(user, item), c.userKey(user)}
	acquired := onCreate.AcquiredDate.UTC().Format(time.RFC3339Nano)

	res, err := upsertIncrementScript.Run(ctx, c.rdb, keys, delta, acquired, item).Slice()
	if err != nil {
		return nil, fmt.Errorf("upsert script failed: %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("upsert script returned %d values", len(res))
	}

	qty, ok := res[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected quantity type %T", res[0])
	}
	rawDate, ok := res[1].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected acquired date type %T", res[1])
	}
	at, err := time.Parse(time.RFC3339Nano, rawDate)
	if err != nil {
		return nil, fmt.Errorf("invalid acquired date %q: %w", rawDate, err)
	}

	return &domain.InventoryRecord{
		UserID:        key.UserID,
		CatalogItemID: key.CatalogItemID,
		Quantity:      qty,
		AcquiredDate:  at,
	}, nil
}

// QueryByUserID returns all records for a user, oldest first.
func (c *Client) QueryByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.InventoryRecord, error) {
	user := userID.String()
	members, err := c.rdb.SMembers(ctx, c.userKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(members))
	for i, member := range members {
		cmds[i] = pipe.HGetAll(ctx, c.recordKey(user, member))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pipeline failed: %w", err)
	}

	recs := make([]*domain.InventoryRecord, 0, len(members))
	for i, member := range members {
		itemID, err := uuid.Parse(member)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog item id %q in user set: %w", member, err)
		}
		fields := cmds[i].Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(domain.InventoryKey{UserID: userID, CatalogItemID: itemID}, fields)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].AcquiredDate.Equal(recs[j].AcquiredDate) {
			return recs[i].AcquiredDate.Before(recs[j].AcquiredDate)
		}
		return recs[i].CatalogItemID.String() < recs[j].CatalogItemID.String()
	})
	return recs, nil
}

func decodeRecord(key domain.InventoryKey, fields map[string]string) (*domain.InventoryRecord, error) {
	qty, err := strconv.ParseInt(fields[fieldQuantity], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid quantity for %s: %w", key, err)
	}
	at, err := time.Parse(time.RFC3339Nano, fields[fieldAcquiredDate])
	if err != nil {
		return nil, fmt.Errorf("invalid acquired date for %s: %w", key, err)
	}
	return &domain.InventoryRecord{
		UserID:        key.UserID,
		CatalogItemID: key.CatalogItemID,
		Quantity:      qty,
		AcquiredDate:  at,
	}, nil
}
