package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	dialectPostgres    = "postgres"
	colID              = "id"
	colTitle           = "title"
	colAuthor          = "author"
	colPublicationDate = "publication_date"
	colPages           = "pages"
	colCreatedAt       = "created_at"
	colUpdatedAt       = "updated_at"

	// pgUniqueViolation is the postgres error code raised on duplicate primary key.
	pgUniqueViolation = "23505"
)

var bookColumns = []interface{}{colID, colTitle, colAuthor, colPublicationDate, colPages, colCreatedAt, colUpdatedAt}

type postgresBookStorage struct {
	logger  *zap.Logger
	pool    *pgxpool.Pool
	config  *PostgresConfig
	builder goqu.DialectWrapper
}

// GetPostgresPool connects to the postgres server, checks the connection
// and makes sure the books table exists.
func GetPostgresPool(config *Config) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(config.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse the dsn: %w", err)
	}
	if config.Postgres.MaxConns > 0 {
		dbConfig.MaxConns = config.Postgres.MaxConns
	}
	if config.Postgres.MinConns > 0 {
		dbConfig.MinConns = config.Postgres.MinConns
	}
	if config.Postgres.ConnTimeout > 0 {
		dbConfig.ConnConfig.ConnectTimeout = config.Postgres.ConnTimeout
	}

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create the pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("test connection failed: %w", err)
	}
	if err = CreatePostgresBooksTable(ctx, pool, config.Postgres.TableName); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// CreatePostgresBooksTable creates the books table if it does not exist yet.
func CreatePostgresBooksTable(ctx context.Context, pool *pgxpool.Pool, table string) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s TEXT PRIMARY KEY,
		%s VARCHAR(%d) NOT NULL,
		%s VARCHAR(%d) NOT NULL,
		%s DATE NOT NULL,
		%s INTEGER NOT NULL CHECK (%s >= 0),
		%s TIMESTAMPTZ NOT NULL,
		%s TIMESTAMPTZ NOT NULL
	)`, pgx.Identifier{table}.Sanitize(),
		colID, colTitle, MaxTextLength, colAuthor, MaxTextLength,
		colPublicationDate, colPages, colPages, colCreatedAt, colUpdatedAt)
	if _, err := pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create %s table: %w", table, err)
	}
	return nil
}

// NewPostgresBookStorage provides an instance of postgres-based book storage.
func NewPostgresBookStorage(logger *zap.Logger, config *PostgresConfig, pool *pgxpool.Pool) BookStorage {
	return &postgresBookStorage{
		logger:  logger,
		pool:    pool,
		config:  config,
		builder: goqu.Dialect(dialectPostgres),
	}
}

func bookRecord(book Book) goqu.Record {
	return goqu.Record{
		colTitle:           book.Title,
		colAuthor:          book.Author,
		colPublicationDate: book.PublicationDate,
		colPages:           book.Pages,
		colCreatedAt:       book.CreatedAt,
		colUpdatedAt:       book.UpdatedAt,
	}
}

func scanBook(row pgx.Row) (Book, error) {
	var book Book
	err := row.Scan(&book.ID, &book.Title, &book.Author, &book.PublicationDate, &book.Pages, &book.CreatedAt, &book.UpdatedAt)
	if err != nil {
		return book, err
	}
	book.PublicationDate = book.PublicationDate.UTC()
	book.CreatedAt = book.CreatedAt.UTC()
	book.UpdatedAt = book.UpdatedAt.UTC()
	return book, nil
}

// Add inserts a new book record.
func (ps *postgresBookStorage) Add(ctx context.Context, id string, book Book) error {
	record := bookRecord(book)
	record[colID] = id
	query, args, err := ps.builder.Insert(ps.config.TableName).Rows(record).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}
	_, err = ps.pool.Exec(ctx, query, args...)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrBookAlreadyExists
	}
	return err
}

// GetOne retrieves a book record based on its ID.
func (ps *postgresBookStorage) GetOne(ctx context.Context, id string) (Book, error) {
	query, args, err := ps.builder.From(ps.config.TableName).
		Select(bookColumns...).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return Book{}, fmt.Errorf("failed to build select query: %w", err)
	}
	book, err := scanBook(ps.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	return book, err
}

// Delete removes a book record based on its ID.
func (ps *postgresBookStorage) Delete(ctx context.Context, id string) error {
	query, args, err := ps.builder.Delete(ps.config.TableName).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build delete query: %w", err)
	}
	tag, err := ps.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Update replaces an existing book record data.
func (ps *postgresBookStorage) Update(ctx context.Context, id string, book Book) (Book, error) {
	query, args, err := ps.builder.Update(ps.config.TableName).
		Set(bookRecord(book)).
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return book, fmt.Errorf("failed to build update query: %w", err)
	}
	tag, err := ps.pool.Exec(ctx, query, args...)
	if err != nil {
		return book, err
	}
	if tag.RowsAffected() == 0 {
		return book, ErrBookNotFound
	}
	return book, nil
}

// GetAll retrieves a list of all books ordered by creation time.
func (ps *postgresBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	query, args, err := ps.builder.From(ps.config.TableName).
		Select(bookColumns...).
		Order(goqu.I(colCreatedAt).Asc(), goqu.I(colID).Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}
	rows, err := ps.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}
