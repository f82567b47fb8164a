package main

import (
	"context"
	"time"
)

// DateLayout is the canonical format of a book publication date.
const DateLayout = "2006-01-02"

// Book represents a book entity.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	PublicationDate time.Time `json:"publicationDate"`
	Pages           int       `json:"pages"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// String returns the label used wherever a book is displayed as text.
func (b Book) String() string {
	return b.Title
}

// PublishedOn returns the publication date in its canonical format.
func (b Book) PublishedOn() string {
	if b.PublicationDate.IsZero() {
		return ""
	}
	return b.PublicationDate.Format(DateLayout)
}

// BookStorage defines possible operations on book entity.
// Each method runs as a single atomic operation on the underlying store.
type BookStorage interface {
	Add(ctx context.Context, id string, book Book) error
	GetOne(ctx context.Context, id string) (Book, error)
	Delete(ctx context.Context, id string) error
	Update(ctx context.Context, id string, book Book) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
}
