// Package jsondb keeps the session slots in a single JSON file.
// Every mutation is written through to disk so a cold start sees the last state.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/patric-chuzhbe/sanasto/internal/db/storage"
)

type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

type CacheStruct struct {
	Slots map[string]string
}

func initDBFile(fileName string) error {
	dbFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(dbFile, `{
	"Slots": {}
}`)
	if err != nil {
		return err
	}
	return dbFile.Close()
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	tmpName := fileName + ".tmp"
	if err := os.WriteFile(tmpName, jsonData, 0600); err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	if err := os.Rename(tmpName, fileName); err != nil {
		return fmt.Errorf("error replacing file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, cacheMap *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(cacheMap)
	if err != nil {
		return err
	}

	return nil
}

// New opens (creating if needed) the JSON file. An empty fileName yields a
// store that never touches the disk.
func New(fileName string) (*JSONDB, error) {
	simpleJSONDB := JSONDB{
		fileName: fileName,
		Cache:    CacheStruct{Slots: map[string]string{}},
	}
	if fileName == "" {
		return &simpleJSONDB, nil
	}

	err := parseJSONFile(simpleJSONDB.fileName, &simpleJSONDB.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		err := initDBFile(fileName)
		if err != nil {
			return nil, err
		}
		err = parseJSONFile(simpleJSONDB.fileName, &simpleJSONDB.Cache)
		if err != nil {
			return nil, err
		}
	}
	if simpleJSONDB.Cache.Slots == nil {
		simpleJSONDB.Cache.Slots = map[string]string{}
	}

	return &simpleJSONDB, nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

func (db *JSONDB) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, storage.ErrEmptyKey
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	value, found := db.Cache.Slots[key]

	return value, found, nil
}

func (db *JSONDB) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	previous, existed := db.Cache.Slots[key]
	db.Cache.Slots[key] = value
	if err := db.flush(); err != nil {
		if existed {
			db.Cache.Slots[key] = previous
		} else {
			delete(db.Cache.Slots, key)
		}
		return err
	}

	return nil
}

func (db *JSONDB) Remove(ctx context.Context, key string) error {
	if key == "" {
		return storage.ErrEmptyKey
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	previous, existed := db.Cache.Slots[key]
	if !existed {
		return nil
	}
	delete(db.Cache.Slots, key)
	if err := db.flush(); err != nil {
		db.Cache.Slots[key] = previous
		return err
	}

	return nil
}

func (db *JSONDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.flush()
}

func (db *JSONDB) flush() error {
	if db.fileName == "" {
		return nil
	}

	return writeToJSONFile(db.fileName, db.Cache)
}
