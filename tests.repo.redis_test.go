package main

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// newDockerPool connects to the local docker daemon. Integration tests are
// skipped in short mode or when docker is not reachable.
func newDockerPool(t *testing.T) *dockertest.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping docker based test in short mode")
	}
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err = pool.Client.Ping(); err != nil {
		t.Skipf("could not connect to docker: %v", err)
	}
	return pool
}

func startRedisDockerContainer(t *testing.T) string {
	t.Helper()
	pool := newDockerPool(t)

	resource, err := pool.Run("redis", "7.0.10-alpine", nil)
	require.NoError(t, err, "failed to start redis")
	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Logf("failed to purge resource: %+v", err)
		}
	})

	addr := net.JoinHostPort("localhost", resource.GetPort("6379/tcp"))
	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		return client.Ping(context.Background()).Err()
	})
	require.NoError(t, err, "failed to ping redis")
	return addr
}

func TestRedisStore(t *testing.T) {
	addr := startRedisDockerContainer(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	runBookStorageContract(t, NewRedisBookStorage(zap.NewNop(), client))
}

// TestRedisStore_ConcurrentUpdates ensures an update is not affected by
// writes made on other books at the same time.
func TestRedisStore_ConcurrentUpdates(t *testing.T) {
	addr := startRedisDockerContainer(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	store := NewRedisBookStorage(zap.NewNop(), client)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "b:target", testBook("b:target", "Target")))

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < 50; i++ {
		i := i
		g.Go(func() error {
			_, err := store.Update(gCtx, "b:target", testBook("b:target", fmt.Sprintf("Target %d", i)))
			return err
		})
		g.Go(func() error {
			id := fmt.Sprintf("b:other-%d", i)
			if err := store.Add(gCtx, id, testBook(id, "Other")); err != nil {
				return err
			}
			return store.Delete(gCtx, id)
		})
	}
	require.NoError(t, g.Wait())

	books, err := store.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, books, 1)

	_, err = store.Update(ctx, "b:missing", testBook("b:missing", "Missing"))
	assert.ErrorIs(t, err, ErrBookNotFound)
}

// TestRedisQueue ensures books pushed on the mirror queues are popped in order
// with the id of their queue.
func TestRedisQueue(t *testing.T) {
	addr := startRedisDockerContainer(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	q := NewRedisQueue(client)

	t.Run("idle queue", func(t *testing.T) {
		_, _, err := q.Pop(ctx, MirrorQueues...)
		assert.ErrorIs(t, err, ErrQueueIdle)
	})

	t.Run("push then pop", func(t *testing.T) {
		created, deleted := testBook("b:0", "Queued book"), Book{ID: "b:1"}
		require.NoError(t, q.Push(ctx, CreateQueue, created))
		require.NoError(t, q.Push(ctx, DeleteQueue, deleted))

		qid, book, err := q.Pop(ctx, MirrorQueues...)
		require.NoError(t, err)
		assert.Equal(t, CreateQueue, qid)
		assert.Equal(t, created, book)

		qid, book, err = q.Pop(ctx, MirrorQueues...)
		require.NoError(t, err)
		assert.Equal(t, DeleteQueue, qid)
		assert.Equal(t, "b:1", book.ID)
	})
}

// TestRedisMirror ensures changes made through the service on redis reach
// the boltdb replica through the consumer.
func TestRedisMirror(t *testing.T) {
	addr := startRedisDockerContainer(t)
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	replica := newTestBoltStore(t)
	queue := NewRedisQueue(client)
	bs := NewBookService(zap.NewNop(), &Config{}, NewClock(true), NewIDsHandler(), NewRedisBookStorage(zap.NewNop(), client), queue)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewBoltDBConsumer(zap.NewNop(), NewClock(true), queue, replica).Consume(ctx, MirrorQueues...) }()

	book, err := bs.Add(context.Background(), Book{Title: "Mirrored", Author: "Jerome Amon", Pages: 10})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		replicated, err := replica.GetOne(context.Background(), book.ID)
		return err == nil && replicated.Title == book.Title && replicated.CreatedAt.Equal(book.CreatedAt)
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
