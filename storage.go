package main

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Supported storage drivers.
const (
	RedisDriver    = "redis"
	BoltDriver     = "bolt"
	PostgresDriver = "postgres"
)

// codec encodes book records and queue payloads for the key-value stores.
var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// encodeBook serializes a book record for storage.
func encodeBook(book Book) ([]byte, error) {
	return codec.Marshal(book)
}

// decodeBook deserializes a stored book record.
func decodeBook(data []byte) (Book, error) {
	var book Book
	err := codec.Unmarshal(data, &book)
	return book, err
}

// StorageSet groups the primary book storage with the resources
// that must be released once the application stops.
type StorageSet struct {
	Books    BookStorage
	Queue    Queuer
	Replica  BookStorage
	closers  []func() error
	consumer Consumer
}

// Close releases all storage resources in reverse order of creation.
func (s *StorageSet) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewStorageSet connects to the configured storage driver and, if mirroring
// is enabled with the redis driver, sets up the queue and its boltdb replica.
func NewStorageSet(logger *zap.Logger, config *Config, clock Clocker) (*StorageSet, error) {
	set := &StorageSet{}
	switch config.Storage.Driver {
	case RedisDriver, "":
		client, err := GetRedisClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis server: %w", err)
		}
		set.closers = append(set.closers, client.Close)
		set.Books = NewRedisBookStorage(logger, client)

		if config.Mirror.Enable {
			boltClient, err := GetBoltDBClient(config)
			if err != nil {
				_ = set.Close()
				return nil, fmt.Errorf("failed to open boltdb replica: %w", err)
			}
			set.closers = append(set.closers, boltClient.Close)
			set.Queue = NewRedisQueue(client)
			set.Replica = NewBoltBookStorage(logger, &config.BoltDB, boltClient)
			set.consumer = NewBoltDBConsumer(logger, clock, set.Queue, set.Replica)
		}

	case BoltDriver:
		boltClient, err := GetBoltDBClient(config)
		if err != nil {
			return nil, fmt.Errorf("failed to open boltdb database: %w", err)
		}
		set.closers = append(set.closers, boltClient.Close)
		set.Books = NewBoltBookStorage(logger, &config.BoltDB, boltClient)

	case PostgresDriver:
		pool, err := GetPostgresPool(config)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres server: %w", err)
		}
		set.closers = append(set.closers, func() error { pool.Close(); return nil })
		set.Books = NewPostgresBookStorage(logger, &config.Postgres, pool)

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", config.Storage.Driver)
	}
	return set, nil
}
