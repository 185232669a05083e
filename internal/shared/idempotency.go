package shared

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultClaimTTL is how long an unfinished claim blocks retries of the same key.
const DefaultClaimTTL = 2 * time.Minute

// IdempotencyStore remembers client supplied request keys together with the id
// of the record the first request produced.
type IdempotencyStore struct {
	pool     *pgxpool.Pool
	claimTTL time.Duration
	now      func() time.Time
}

// NewIdempotencyStore constructs the store. claimTTL <= 0 uses DefaultClaimTTL.
func NewIdempotencyStore(pool *pgxpool.Pool, claimTTL time.Duration) *IdempotencyStore {
	if claimTTL <= 0 {
		claimTTL = DefaultClaimTTL
	}
	return &IdempotencyStore{pool: pool, claimTTL: claimTTL, now: time.Now}
}

// ErrIdempotencyInFlight indicates the key is claimed by a request that has not finished.
var ErrIdempotencyInFlight = errors.New("idempotent request still in progress")

// claimState classifies an existing key row.
type claimState int

const (
	claimInFlight claimState = iota
	claimReplay
	claimStale
)

// classifyClaim decides what a second request with an already stored key gets.
// Claims without a result older than ttl belong to a request that died before
// completing and may be taken over.
func classifyClaim(resultID *int64, claimedAt, now time.Time, ttl time.Duration) claimState {
	if resultID != nil {
		return claimReplay
	}
	if now.Sub(claimedAt) >= ttl {
		return claimStale
	}
	return claimInFlight
}

// Claim reserves key for module. When the key was already completed it returns
// the stored result id and replay=true.
func (s *IdempotencyStore) Claim(ctx context.Context, key, module string) (resultID int64, replay bool, err error) {
	if s == nil {
		return 0, false, errors.New("idempotency store not initialised")
	}
	if key == "" || module == "" {
		return 0, false, errors.New("idempotency key and module required")
	}
	now := s.now()
	var claimed string
	err = s.pool.QueryRow(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)
ON CONFLICT (key) DO NOTHING RETURNING key`, key, module, now).Scan(&claimed)
	if err == nil {
		return 0, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, err
	}
	var (
		stored    *int64
		claimedAt time.Time
	)
	if err := s.pool.QueryRow(ctx, `SELECT result_id, created_at FROM idempotency_keys WHERE key=$1 AND module=$2`, key, module).
		Scan(&stored, &claimedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, ErrIdempotencyInFlight
		}
		return 0, false, err
	}
	switch classifyClaim(stored, claimedAt, now, s.claimTTL) {
	case claimReplay:
		return *stored, true, nil
	case claimStale:
		// Matching on the old timestamp lets only one retry take the key over.
		tag, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET created_at=$3
WHERE key=$1 AND result_id IS NULL AND created_at=$2`, key, claimedAt, now)
		if err != nil {
			return 0, false, err
		}
		if tag.RowsAffected() == 1 {
			return 0, false, nil
		}
	}
	return 0, false, ErrIdempotencyInFlight
}

// Complete attaches the produced record id to a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resultID int64) error {
	if s == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE idempotency_keys SET result_id=$2 WHERE key=$1`, key, resultID)
	return err
}

// Release removes a claimed key, used to roll back failed processing.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}

// Cleanup removes entries older than retention and reports how many went.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s == nil {
		return 0, nil
	}
	cutoff := s.now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
