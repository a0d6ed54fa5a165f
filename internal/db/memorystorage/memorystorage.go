package memorystorage

import (
	"context"

	"github.com/patric-chuzhbe/sanasto/internal/db/jsondb"
)

// MemoryStorage is the JSON store without a backing file: slots live only
// for the lifetime of the process.
type MemoryStorage struct {
	*jsondb.JSONDB
}

func New() (*MemoryStorage, error) {
	db, err := jsondb.New("")
	if err != nil {
		return nil, err
	}

	return &MemoryStorage{JSONDB: db}, nil
}

func (theStorage *MemoryStorage) Close() error {
	return nil
}

func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
