package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func testClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromRedis(rdb, time.Minute), mr
}

func TestKeyIsStableAndScoped(t *testing.T) {
	a := Key("leads", 1, "status=NEW&page=1")
	b := Key("leads", 1, "status=NEW&page=1")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Key("leads", 2, "status=NEW&page=1"))
	assert.NotEqual(t, a, Key("leads", 1, "status=CLOSED&page=1"))
	assert.NotEqual(t, a, Key("clients", 1, "status=NEW&page=1"))
	assert.Contains(t, a, "cache:leads:org:1:")
}

func TestSetAndGet(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	key := Key("leads", 1, "page=1")
	c.Set(ctx, key, payload{Name: "hot leads", Count: 3})

	var got payload
	require.True(t, c.Get(ctx, key, &got))
	assert.Equal(t, "hot leads", got.Name)
	assert.Equal(t, 3, got.Count)

	var miss payload
	assert.False(t, c.Get(ctx, Key("leads", 1, "page=2"), &miss))
}

func TestInvalidateClearsOnlyMatchingEntity(t *testing.T) {
	c, _ := testClient(t)
	ctx := context.Background()

	leadKey := Key("leads", 1, "page=1")
	otherOrgKey := Key("leads", 2, "page=1")
	clientKey := Key("clients", 1, "page=1")
	c.Set(ctx, leadKey, payload{Name: "a"})
	c.Set(ctx, otherOrgKey, payload{Name: "b"})
	c.Set(ctx, clientKey, payload{Name: "c"})

	c.Invalidate(ctx, "leads", 1)

	var got payload
	assert.False(t, c.Get(ctx, leadKey, &got))
	assert.True(t, c.Get(ctx, otherOrgKey, &got))
	assert.True(t, c.Get(ctx, clientKey, &got))
}

func TestCorruptEntryIsDropped(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()

	key := Key("leads", 1, "page=1")
	require.NoError(t, mr.Set(key, "{not json"))

	var got payload
	assert.False(t, c.Get(ctx, key, &got))
	assert.False(t, mr.Exists(key))
}

func TestNilClientIsDisabled(t *testing.T) {
	var c *Client
	ctx := context.Background()

	var got payload
	assert.False(t, c.Get(ctx, "any", &got))
	c.Set(ctx, "any", payload{})
	c.Invalidate(ctx, "leads", 1)
	assert.True(t, c.Ping(ctx))
	assert.NoError(t, c.Close())
}

func TestEntriesExpire(t *testing.T) {
	c, mr := testClient(t)
	ctx := context.Background()

	key := Key("leads", 1, "page=1")
	c.Set(ctx, key, payload{Name: "stale soon"})

	mr.FastForward(2 * time.Minute)

	var got payload
	assert.False(t, c.Get(ctx, key, &got))
}
