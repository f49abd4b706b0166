package notifier

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealwatch/scout/internal/pipeline"
)

func newTestNotifier(t *testing.T, dailyLimit int) (*Notifier, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client, nil, dailyLimit, nil), client
}

func TestSendBatchRespectsUserCooldown(t *testing.T) {
	n, client := newTestNotifier(t, 20)
	ctx := context.Background()
	client.Set(ctx, "cooldown:user:42", 1, 0)

	err := n.SendBatch(ctx, 42, []pipeline.Result{{Title: "Phone", URL: "https://x/1", Price: 100}})
	require.NoError(t, err)
}

func TestSendBatchSuppressesAlreadySeenProduct(t *testing.T) {
	n, client := newTestNotifier(t, 20)
	ctx := context.Background()

	items := []pipeline.Result{{Title: "Phone", URL: "https://x/1", Price: 100}}
	require.NoError(t, n.SendBatch(ctx, 7, items))

	count, err := client.Get(ctx, "msgcount:7").Int()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, n.SendBatch(ctx, 7, items))
	count2, err := client.Get(ctx, "msgcount:7").Int()
	require.NoError(t, err)
	assert.Equal(t, 1, count2, "second send of the same product must not increment the count again")
}

func TestSendBatchSetsUserCooldownWhenLimitReached(t *testing.T) {
	n, client := newTestNotifier(t, 1)
	ctx := context.Background()

	items := []pipeline.Result{{Title: "Phone", URL: "https://x/1", Price: 100}}
	require.NoError(t, n.SendBatch(ctx, 9, items))

	exists, err := client.Exists(ctx, "cooldown:user:9").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
