// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package history keeps a ledger of orchestrated operations in a bbolt
// database. Records are JSON values keyed by start time and ID.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucket = []byte("operations")

// Operation outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Record is one orchestrated operation.
type Record struct {
	ID        uuid.UUID     `json:"id"`
	Operation string        `json:"operation"`
	Project   string        `json:"project"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Runs      int           `json:"runs"`
	OutputDir string        `json:"output_dir,omitempty"`
}

// Store is an open ledger.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening history %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialising history %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func key(r *Record) []byte {
	k := make([]byte, 8, 8+16)
	binary.BigEndian.PutUint64(k, uint64(r.StartedAt.UnixNano()))
	return append(k, r.ID[:]...)
}

// Record stores r, assigning an ID and start time when unset.
func (s *Store) Record(r *Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	js, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return errors.New("history bucket missing")
		}
		return b.Put(key(r), js)
	})
}

// List returns up to limit records, newest first. A limit of 0 returns
// all of them.
func (s *Store) List(limit int) ([]Record, error) {
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("decoding record %x: %w", k, err)
			}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}
