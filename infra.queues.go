package main

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Mirror queue ids. Each one carries the books affected by a given change.
const (
	CreateQueue = "books:creation"
	UpdateQueue = "books:updating"
	DeleteQueue = "books:deletion"
)

// MirrorQueues lists the queues the replica consumer listens on.
var MirrorQueues = []string{CreateQueue, UpdateQueue, DeleteQueue}

// popTimeout bounds each blocking pop so that a cancelled consumer exits.
const popTimeout = time.Second

var (
	ErrEmptyQueuePayload = errors.New("queue: empty payload received")
	ErrQueueIdle         = errors.New("queue: nothing to pop")
)

var _ Queuer = (*redisQueue)(nil)

// Queuer pushes and pops book changes.
type Queuer interface {
	Push(ctx context.Context, qid string, book Book) error
	Pop(ctx context.Context, qids ...string) (string, Book, error)
}

type redisQueue struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisQueue provides a redis list-based queue. Pop blocks for at most
// popTimeout and returns ErrQueueIdle when nothing showed up.
func NewRedisQueue(client *redis.Client) Queuer {
	return &redisQueue{client: client, timeout: popTimeout}
}

// Push appends the book to the tail of the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, book Book) error {
	payload, err := encodeBook(book)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, qid, payload).Err()
}

// Pop returns the first book available on any of the queues, along with the id
// of the queue it came from. Queues are checked in the order they are given.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, Book, error) {
	infos, err := q.client.BLPop(ctx, q.timeout, qids...).Result()
	if errors.Is(err, redis.Nil) {
		return "", Book{}, ErrQueueIdle
	}
	if err != nil {
		return "", Book{}, err
	}
	if len(infos) < 2 || infos[1] == "" {
		return "", Book{}, ErrEmptyQueuePayload
	}
	book, err := decodeBook([]byte(infos[1]))
	if err != nil {
		return infos[0], Book{}, err
	}
	return infos[0], book, nil
}
