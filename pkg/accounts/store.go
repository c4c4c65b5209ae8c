package accounts

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"slices"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var (
	ErrExists      = errors.New("accounts: account already exists")
	ErrNotFound    = errors.New("accounts: no such account")
	ErrInvalidName = errors.New("accounts: invalid account name")
	ErrCharExists  = errors.New("accounts: character name in use")
	ErrCharLimit   = errors.New("accounts: character limit reached")
)

var (
	bucketAccounts   = []byte("accounts")
	bucketCharacters = []byte("characters")
)

// Now stamps Created on new accounts.
var Now = time.Now

// Store persists accounts in a bbolt database keyed by normalized name.
type Store struct {
	bolt *bbolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("accounts: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketCharacters} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("accounts: create buckets: %w", err)
	}
	return &Store{bolt: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.bolt != nil {
		return s.bolt.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.bolt.Path()
}

// Create stores a new account. The passphrase is hashed before storing.
func (s *Store) Create(id, name, email, pass string) (*Account, error) {
	if !ValidName(id) {
		return nil, ErrInvalidName
	}
	acct := &Account{
		ID:      id,
		Name:    name,
		Email:   email,
		Created: Now(),
	}
	if err := acct.SetPassphrase(pass); err != nil {
		return nil, fmt.Errorf("accounts: hash passphrase: %w", err)
	}
	data, err := encodeAccount(acct)
	if err != nil {
		return nil, fmt.Errorf("accounts: encode %s: %w", id, err)
	}
	err = s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		key := []byte(Normalize(id))
		if b.Get(key) != nil {
			return ErrExists
		}
		return b.Put(key, data)
	})
	if err != nil {
		return nil, err
	}
	return acct, nil
}

// Get loads the account named id.
func (s *Store) Get(id string) (*Account, error) {
	var acct *Account
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAccounts).Get([]byte(Normalize(id)))
		if data == nil {
			return ErrNotFound
		}
		var err error
		acct, err = decodeAccount(data)
		if err != nil {
			return fmt.Errorf("accounts: decode %s: %w", id, err)
		}
		return nil
	})
	return acct, err
}

// Exists reports whether an account named id is stored.
func (s *Store) Exists(id string) bool {
	var found bool
	s.bolt.View(func(tx *bbolt.Tx) error {
		found = tx.Bucket(bucketAccounts).Get([]byte(Normalize(id))) != nil
		return nil
	})
	return found
}

// Put writes acct back, replacing the stored copy.
func (s *Store) Put(acct *Account) error {
	data, err := encodeAccount(acct)
	if err != nil {
		return fmt.Errorf("accounts: encode %s: %w", acct.ID, err)
	}
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put([]byte(Normalize(acct.ID)), data)
	})
}

// Delete removes the account named id and releases its character names.
func (s *Store) Delete(id string) error {
	return s.bolt.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		key := []byte(Normalize(id))
		data := b.Get(key)
		if data == nil {
			return ErrNotFound
		}
		acct, err := decodeAccount(data)
		if err != nil {
			return fmt.Errorf("accounts: decode %s: %w", id, err)
		}
		chars := tx.Bucket(bucketCharacters)
		for _, name := range acct.Characters {
			if err := chars.Delete([]byte(Normalize(name))); err != nil {
				return err
			}
		}
		return b.Delete(key)
	})
}

// AddCharacter claims name for acct and saves the account. Character
// names are unique across all accounts; limit caps the account's list
// when the account sets no limit of its own. acct is only changed once
// the transaction commits.
func (s *Store) AddCharacter(acct *Account, name string, limit int) error {
	updated := *acct
	updated.Characters = slices.Clone(acct.Characters)
	updated.AddCharacter(name)

	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		chars := tx.Bucket(bucketCharacters)
		key := []byte(Normalize(name))
		if chars.Get(key) != nil {
			return ErrCharExists
		}
		if n := acct.CharLimit(limit); n > 0 && len(acct.Characters) >= n {
			return ErrCharLimit
		}
		if err := chars.Put(key, []byte(acct.ID)); err != nil {
			return err
		}
		return putAccount(tx, &updated)
	})
	if err != nil {
		return err
	}
	acct.Characters = updated.Characters
	return nil
}

// RemoveCharacter releases name from acct and saves the account.
func (s *Store) RemoveCharacter(acct *Account, name string) error {
	updated := *acct
	updated.Characters = slices.Clone(acct.Characters)
	if !updated.RemoveCharacter(name) {
		return ErrNotFound
	}
	err := s.bolt.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketCharacters).Delete([]byte(Normalize(name))); err != nil {
			return err
		}
		return putAccount(tx, &updated)
	})
	if err != nil {
		return err
	}
	acct.Characters = updated.Characters
	return nil
}

func putAccount(tx *bbolt.Tx, acct *Account) error {
	data, err := encodeAccount(acct)
	if err != nil {
		return fmt.Errorf("accounts: encode %s: %w", acct.ID, err)
	}
	return tx.Bucket(bucketAccounts).Put([]byte(Normalize(acct.ID)), data)
}

// CharacterOwner returns the account ID that owns character name.
func (s *Store) CharacterOwner(name string) (string, bool) {
	var owner string
	s.bolt.View(func(tx *bbolt.Tx) error {
		owner = string(tx.Bucket(bucketCharacters).Get([]byte(Normalize(name))))
		return nil
	})
	return owner, owner != ""
}

// List returns every account ID in key order.
func (s *Store) List() ([]string, error) {
	var ids []string
	err := s.bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			acct, err := decodeAccount(v)
			if err != nil {
				return fmt.Errorf("accounts: decode %s: %w", k, err)
			}
			ids = append(ids, acct.ID)
			return nil
		})
	})
	return ids, err
}

// Count returns the number of stored accounts.
func (s *Store) Count() int {
	var n int
	s.bolt.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketAccounts).Stats().KeyN
		return nil
	})
	return n
}

// Snapshot writes a consistent copy of the database to path while the
// store stays open.
func (s *Store) Snapshot(path string) error {
	return s.bolt.View(func(tx *bbolt.Tx) error {
		if err := tx.CopyFile(path, 0o600); err != nil {
			return fmt.Errorf("accounts: snapshot %s: %w", path, err)
		}
		return nil
	})
}

func encodeAccount(acct *Account) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(acct); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAccount(data []byte) (*Account, error) {
	var acct Account
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&acct); err != nil {
		return nil, err
	}
	return &acct, nil
}
