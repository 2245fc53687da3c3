package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var sessionBucket = []byte("session")

// BoltPersister stores session state in a local bbolt file
type BoltPersister struct {
	db *bbolt.DB
}

// NewBoltPersister opens (or creates) the database at path
func NewBoltPersister(path string) (*BoltPersister, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session bucket: %w", err)
	}

	return &BoltPersister{db: db}, nil
}

func (p *BoltPersister) Load(ctx context.Context) (string, bool, error) {
	var token string
	var loggedIn bool
	err := p.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			return fmt.Errorf("session bucket not found")
		}
		token = string(b.Get([]byte(TokenKey)))
		loggedIn = string(b.Get([]byte(LoggedInKey))) == "true"
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to load session: %w", err)
	}
	return token, loggedIn, nil
}

func (p *BoltPersister) Save(ctx context.Context, token string) error {
	err := p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			return fmt.Errorf("session bucket not found")
		}
		if err := b.Put([]byte(TokenKey), []byte(token)); err != nil {
			return err
		}
		return b.Put([]byte(LoggedInKey), []byte("true"))
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (p *BoltPersister) Clear(ctx context.Context) error {
	err := p.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			return nil
		}
		if err := b.Delete([]byte(TokenKey)); err != nil {
			return err
		}
		return b.Delete([]byte(LoggedInKey))
	})
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close closes the database file
func (p *BoltPersister) Close() error {
	return p.db.Close()
}
