package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	// pause before popping again after a queue failure.
	consumerRetryDelay = time.Second
	// how long a deleted id keeps late creations and updates away.
	tombstoneTTL = 10 * time.Minute
)

// Consumer applies queued book changes somewhere else.
type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

type replicaConsumer struct {
	logger     *zap.Logger
	queue      Queuer
	replica    BookStorage
	clock      Clocker
	retryDelay time.Duration
	deleted    map[string]time.Time
}

// NewBoltDBConsumer provides a consumer which keeps the boltdb replica
// in line with the changes pushed on the mirror queues.
func NewBoltDBConsumer(logger *zap.Logger, clock Clocker, q Queuer, replica BookStorage) Consumer {
	return &replicaConsumer{
		logger:     logger.With(zap.String("component", "mirror")),
		queue:      q,
		replica:    replica,
		clock:      clock,
		retryDelay: consumerRetryDelay,
		deleted:    make(map[string]time.Time),
	}
}

// Consume pops changes until the context is done.
func (rc *replicaConsumer) Consume(ctx context.Context, qids ...string) error {
	for {
		qid, book, err := rc.queue.Pop(ctx, qids...)
		if ctx.Err() != nil {
			rc.logger.Info("consumer: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}
		if errors.Is(err, ErrQueueIdle) {
			continue
		}
		if err != nil {
			rc.logger.Error("consumer: failed to pop from queue", zap.Error(err), zap.Duration("retry.in", rc.retryDelay))
			select {
			case <-ctx.Done():
			case <-time.After(rc.retryDelay):
			}
			continue
		}
		if err = rc.apply(ctx, qid, book); err != nil {
			rc.logger.Error("consumer: failed to apply change",
				zap.String("qid", qid),
				zap.String("book.id", book.ID),
				zap.Error(err),
			)
		}
	}
}

// apply replays one change on the replica. Updates of unknown books are
// inserted and deletions of unknown books are ignored so that a replica
// started late converges. Changes of an id already deleted are dropped
// since they may reach the queue after its deletion.
func (rc *replicaConsumer) apply(ctx context.Context, qid string, book Book) error {
	switch qid {
	case CreateQueue, UpdateQueue:
		if rc.isDeleted(book.ID) {
			rc.logger.Info("consumer: dropped change of deleted book", zap.String("qid", qid), zap.String("book.id", book.ID))
			return nil
		}
	}

	switch qid {
	case CreateQueue:
		err := rc.replica.Add(ctx, book.ID, book)
		if errors.Is(err, ErrBookAlreadyExists) {
			_, err = rc.replica.Update(ctx, book.ID, book)
		}
		return err
	case UpdateQueue:
		_, err := rc.replica.Update(ctx, book.ID, book)
		if errors.Is(err, ErrBookNotFound) {
			return rc.replica.Add(ctx, book.ID, book)
		}
		return err
	case DeleteQueue:
		rc.markDeleted(book.ID)
		err := rc.replica.Delete(ctx, book.ID)
		if errors.Is(err, ErrBookNotFound) {
			return nil
		}
		return err
	default:
		rc.logger.Warn("consumer: received book on unknown queue", zap.String("qid", qid), zap.String("book.id", book.ID))
		return nil
	}
}

func (rc *replicaConsumer) isDeleted(id string) bool {
	at, ok := rc.deleted[id]
	return ok && rc.clock.Now().Sub(at) <= tombstoneTTL
}

// markDeleted records the id and forgets expired ones.
func (rc *replicaConsumer) markDeleted(id string) {
	now := rc.clock.Now()
	for key, at := range rc.deleted {
		if now.Sub(at) > tombstoneTTL {
			delete(rc.deleted, key)
		}
	}
	rc.deleted[id] = now
}
