package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/findosh/coinwatch/internal/models"
	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	userPrefix  = "user/"
	emailPrefix = "email/"
	resetPrefix = "reset/"
)

var _ CredentialStore = (*LevelStore)(nil)

// LevelStore keeps user documents in a local LevelDB. Secondary keys map
// emails and reset hashes to user ids; every write lands as one batch.
type LevelStore struct {
	sync.RWMutex

	shutdown bool
	db       *leveldb.DB
}

// OpenLevelStore opens or creates the database at path
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func userKey(id uuid.UUID) []byte { return []byte(userPrefix + id.String()) }
func emailKey(email string) []byte { return []byte(emailPrefix + email) }
func resetKey(hash string) []byte { return []byte(resetPrefix + hash) }

// Create inserts a new user
func (l *LevelStore) Create(ctx context.Context, u *models.User) error {
	l.Lock()
	defer l.Unlock()

	if l.shutdown {
		return ErrClosed
	}

	email := models.NormalizeEmail(u.Email)
	ok, err := l.db.Has(emailKey(email), nil)
	if err != nil {
		return err
	} else if ok {
		return ErrEmailTaken
	}

	u.Email = email
	u.Version = 1
	payload, err := json.Marshal(newUserRecord(u))
	if err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	batch.Put(userKey(u.ID), payload)
	batch.Put(emailKey(email), []byte(u.ID.String()))
	if u.Reset != nil && u.Reset.Hash != "" {
		batch.Put(resetKey(u.Reset.Hash), []byte(u.ID.String()))
	}
	return l.db.Write(batch, nil)
}

// FindByID retrieves a user by ID
func (l *LevelStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	l.RLock()
	defer l.RUnlock()

	if l.shutdown {
		return nil, ErrClosed
	}
	return l.get(id)
}

// FindByEmail retrieves a user by normalized email
func (l *LevelStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	l.RLock()
	defer l.RUnlock()

	if l.shutdown {
		return nil, ErrClosed
	}
	return l.getIndirect(emailKey(models.NormalizeEmail(email)))
}

// FindByResetTokenHash retrieves the user holding the given reset hash
func (l *LevelStore) FindByResetTokenHash(ctx context.Context, hash string) (*models.User, error) {
	l.RLock()
	defer l.RUnlock()

	if l.shutdown {
		return nil, ErrClosed
	}
	if hash == "" {
		return nil, ErrNotFound
	}
	u, err := l.getIndirect(resetKey(hash))
	if err != nil {
		return nil, err
	}
	if u.Reset == nil || u.Reset.Hash != hash {
		return nil, ErrNotFound
	}
	return u, nil
}

// Update replaces the stored user if its version is unchanged
func (l *LevelStore) Update(ctx context.Context, u *models.User) error {
	l.Lock()
	defer l.Unlock()

	if l.shutdown {
		return ErrClosed
	}

	current, err := l.get(u.ID)
	if err != nil {
		return err
	}
	if current.Version != u.Version {
		return ErrVersionConflict
	}

	batch := new(leveldb.Batch)

	email := models.NormalizeEmail(u.Email)
	if email != current.Email {
		ok, err := l.db.Has(emailKey(email), nil)
		if err != nil {
			return err
		} else if ok {
			return ErrEmailTaken
		}
		batch.Delete(emailKey(current.Email))
		batch.Put(emailKey(email), []byte(u.ID.String()))
	}

	var oldHash, newHash string
	if current.Reset != nil {
		oldHash = current.Reset.Hash
	}
	if u.Reset != nil {
		newHash = u.Reset.Hash
	}
	if oldHash != newHash {
		if oldHash != "" {
			batch.Delete(resetKey(oldHash))
		}
		if newHash != "" {
			batch.Put(resetKey(newHash), []byte(u.ID.String()))
		}
	}

	next := u.Clone()
	next.Email = email
	next.Version++
	payload, err := json.Marshal(newUserRecord(next))
	if err != nil {
		return err
	}
	batch.Put(userKey(u.ID), payload)

	if err := l.db.Write(batch, nil); err != nil {
		return err
	}
	u.Email = email
	u.Version = next.Version
	return nil
}

// ExpiredResets lists users whose reset token expired before now
func (l *LevelStore) ExpiredResets(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	l.RLock()
	defer l.RUnlock()

	if l.shutdown {
		return nil, ErrClosed
	}

	var ids []uuid.UUID
	iter := l.db.NewIterator(util.BytesPrefix([]byte(userPrefix)), nil)
	for iter.Next() {
		var rec userRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			iter.Release()
			return nil, err
		}
		if rec.ResetHash == "" || rec.ResetExpiresAt.After(now) {
			continue
		}
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			iter.Release()
			return nil, err
		}
		ids = append(ids, id)
	}
	iter.Release()

	return ids, iter.Error()
}

// Close shuts the database down
func (l *LevelStore) Close() error {
	l.Lock()
	defer l.Unlock()

	if l.shutdown {
		return nil
	}
	l.shutdown = true
	return l.db.Close()
}

func (l *LevelStore) get(id uuid.UUID) (*models.User, error) {
	payload, err := l.db.Get(userKey(id), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	var rec userRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, err
	}
	return rec.user()
}

func (l *LevelStore) getIndirect(key []byte) (*models.User, error) {
	raw, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}

	id, err := uuid.ParseBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt index %q: %w", key, err)
	}
	return l.get(id)
}
