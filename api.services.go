package main

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
)

type BookServiceProvider interface {
	Add(ctx context.Context, book Book) (Book, error)
	GetOne(ctx context.Context, id string) (Book, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, book Book) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
}

type BookService struct {
	logger     *zap.Logger
	config     *Config
	clock      Clocker
	idsHandler UIDHandler
	storage    BookStorage
	queue      Queuer
}

// NewBookService provides a book service. The queue is optional and
// receives a copy of every successful change when set.
func NewBookService(logger *zap.Logger, config *Config, clock Clocker, ids UIDHandler, storage BookStorage, queue Queuer) BookServiceProvider {
	return &BookService{
		logger:     logger,
		config:     config,
		clock:      clock,
		idsHandler: ids,
		storage:    storage,
		queue:      queue,
	}
}

// now returns the current UTC time with the precision every driver can store.
func (bs *BookService) now() time.Time {
	return bs.clock.Now().UTC().Truncate(time.Microsecond)
}

// Add assigns a fresh identifier and timestamps then inserts the book.
func (bs *BookService) Add(ctx context.Context, book Book) (Book, error) {
	book.ID = bs.idsHandler.Generate(BookIDPrefix)
	book.CreatedAt = bs.now()
	book.UpdatedAt = book.CreatedAt
	if err := bs.storage.Add(ctx, book.ID, book); err != nil {
		return book, err
	}
	bs.mirror(ctx, CreateQueue, book)
	return book, nil
}

func (bs *BookService) GetOne(ctx context.Context, id string) (Book, error) {
	book, err := bs.storage.GetOne(ctx, id)
	return book, err
}

func (bs *BookService) Delete(ctx context.Context, id string) error {
	if err := bs.storage.Delete(ctx, id); err != nil {
		return err
	}
	bs.mirror(ctx, DeleteQueue, Book{ID: id})
	return nil
}

// Update overwrites the editable fields of the stored book. The identifier
// and the creation time of the existing record are preserved.
func (bs *BookService) Update(ctx context.Context, id string, book Book) (Book, error) {
	current, err := bs.storage.GetOne(ctx, id)
	if err != nil {
		return book, err
	}
	book.ID = id
	book.CreatedAt = current.CreatedAt
	book.UpdatedAt = bs.now()
	book, err = bs.storage.Update(ctx, id, book)
	if err != nil {
		return book, err
	}
	bs.mirror(ctx, UpdateQueue, book)
	return book, nil
}

// GetAll returns all books ordered by creation time.
func (bs *BookService) GetAll(ctx context.Context) ([]Book, error) {
	books, err := bs.storage.GetAll(ctx)
	if err != nil {
		return books, err
	}
	sort.SliceStable(books, func(i, j int) bool {
		if books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].ID < books[j].ID
		}
		return books[i].CreatedAt.Before(books[j].CreatedAt)
	})
	return books, nil
}

func (bs *BookService) mirror(ctx context.Context, qid string, book Book) {
	if bs.queue == nil {
		return
	}
	if err := bs.queue.Push(ctx, qid, book); err != nil {
		bs.logger.Error("service: failed to push book to queue", zap.String("qid", qid), zap.String("book.id", book.ID), zap.Error(err))
	}
}
