package flowscribe

import (
	"context"

	"github.com/luno/jettison/errors"
)

// Logical keys in the key-value collaborator. The layout mirrors the small,
// fixed keyspace the system needs rather than one key per entity.
const (
	KeyFlows   = "flows"
	KeySession = "recording_session"
)

// KVStore is the external key-value collaborator. Implementations provide
// per-key atomic put/get/delete only; there are no cross-key transactions, so
// multi-key operations must tolerate a later key failing after an earlier one
// succeeded.
type KVStore interface {
	// Get returns ErrKeyNotFound when the key has never been set or was deleted.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// BlobStore is the external unlimited-capacity store for large binary data,
// primarily full resolution screenshots keyed by BlobKey(flowID, stepID).
type BlobStore interface {
	// Get returns ErrBlobNotFound when no blob exists under the key.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every blob whose key starts with the prefix. Used to
	// cascade a flow deletion onto its relocated screenshots.
	DeletePrefix(ctx context.Context, prefix string) error
}

// SessionStore persists the recording session so a restarted process can
// reconstruct it. It is a thin, validated layer over the KV collaborator.
type SessionStore struct {
	kv KVStore
}

func NewSessionStore(kv KVStore) *SessionStore {
	return &SessionStore{kv: kv}
}

// Save persists the session. Called after every session mutation so that the
// most recently completed write is always recoverable.
func (s *SessionStore) Save(ctx context.Context, session *Session) error {
	b, err := Marshal(session)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, KeySession, b)
}

// Load returns ErrSessionNotFound when no session is persisted.
func (s *SessionStore) Load(ctx context.Context) (*Session, error) {
	b, err := s.kv.Get(ctx, KeySession)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, errors.Wrap(ErrSessionNotFound, "")
	} else if err != nil {
		return nil, err
	}

	var session Session
	err = Unmarshal(b, &session)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Clear removes the persisted session. Clearing an absent session is not an
// error so that stop and cancel stay idempotent.
func (s *SessionStore) Clear(ctx context.Context) error {
	err := s.kv.Delete(ctx, KeySession)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}
