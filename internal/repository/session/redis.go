package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nexa-labs/ragd/internal/db"
	"github.com/nexa-labs/ragd/internal/domain"
)

const keyPrefix = "ragd:session:"

// store is the consumer interface for sessions (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

var _ Store = (*Repo)(nil)

// Repo stores each session as a JSON blob with an optional TTL.
type Repo struct {
	store store
	ttl   time.Duration // zero means no expiry
	now   func() time.Time
}

// New creates a session repository. A zero ttl disables expiry.
func New(s store, ttl time.Duration) *Repo {
	return &Repo{store: s, ttl: ttl, now: time.Now}
}

func key(sessionID string) string { return keyPrefix + sessionID }

// AppendTurns loads the record, appends, and writes it back. Callers serialize
// access per session; concurrent appends to one session may lose turns.
func (r *Repo) AppendTurns(ctx context.Context, sessionID string, turns ...Turn) error {
	if len(turns) == 0 {
		return nil
	}

	rec, err := r.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		rec = Record{ID: sessionID, CreatedAt: r.now().UTC()}
	} else if err != nil {
		return err
	}

	rec.Turns = append(rec.Turns, turns...)
	rec.UpdatedAt = r.now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sessionID, err)
	}
	if r.ttl > 0 {
		err = r.store.SetWithTTL(ctx, key(sessionID), data, r.ttl)
	} else {
		err = r.store.Set(ctx, key(sessionID), data)
	}
	if err != nil {
		return fmt.Errorf("write session %s: %w", sessionID, err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, sessionID string) (Record, error) {
	raw, err := r.store.Get(ctx, key(sessionID))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Record{}, domain.ErrSessionNotFound
		}
		return Record{}, fmt.Errorf("read session %s: %w", sessionID, err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal session %s: %w", sessionID, err)
	}
	return rec, nil
}

func (r *Repo) List(ctx context.Context) ([]string, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, strings.TrimPrefix(k, keyPrefix))
	}
	return ids, nil
}

// Records loads every session in two round trips (SCAN then MGET). Keys
// expired between the two are skipped.
func (r *Repo) Records(ctx context.Context) ([]Record, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan sessions: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	blobs, err := r.store.GetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	recs := make([]Record, 0, len(blobs))
	for i, raw := range blobs {
		if raw == nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal session %s: %w", keys[i], err)
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(a, b int) bool { return recs[a].ID < recs[b].ID })
	return recs, nil
}

func (r *Repo) Delete(ctx context.Context, sessionID string) error {
	if err := r.store.Del(ctx, key(sessionID)); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (r *Repo) DeleteAll(ctx context.Context) error {
	keys, err := r.store.Scan(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("scan sessions: %w", err)
	}
	for _, k := range keys {
		if err := r.store.Del(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}
