package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrOTPNotFound means no live code exists (never issued, consumed or expired).
	ErrOTPNotFound = errors.New("otp not found or expired")
	// ErrOTPMismatch means the submitted code did not match.
	ErrOTPMismatch = errors.New("otp mismatch")
	// ErrOTPLocked means too many wrong attempts burned the code.
	ErrOTPLocked = errors.New("otp locked after too many attempts")
)

// OTPStore keeps one-time codes in Redis under otp:<purpose>:<email>.
// Each key is a hash {code_hash, purpose, expires_at, attempts} whose
// Redis TTL equals the code lifetime, so expiry needs no sweeper.
type OTPStore struct {
	rdb    *redis.Client
	prefix string
}

func NewOTPStore(rdb *redis.Client, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &OTPStore{rdb: rdb, prefix: prefix}
}

func (s *OTPStore) key(purpose, email string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, purpose, strings.ToLower(strings.TrimSpace(email)))
}

// Put stores codeHash for (purpose, email), replacing any previous code,
// and returns the expiry.
func (s *OTPStore) Put(ctx context.Context, purpose, email, codeHash string, ttl time.Duration) (time.Time, error) {
	exp := time.Now().UTC().Add(ttl)
	key := s.key(purpose, email)
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"code_hash", codeHash,
			"purpose", purpose,
			"expires_at", strconv.FormatInt(exp.Unix(), 10),
			"attempts", 0)
		p.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return exp, nil
}

// consumeScript compares and deletes in one round trip so a code can
// be redeemed at most once.  Returns 1 ok, 0 mismatch, -1 missing,
// -2 locked.
var consumeScript = redis.NewScript(`
    local key = KEYS[1]
    local want = ARGV[1]
    local max_attempts = tonumber(ARGV[2])
    local stored = redis.call('HGET', key, 'code_hash')
    if not stored then
        return -1
    end
    if stored == want then
        redis.call('DEL', key)
        return 1
    end
    local attempts = redis.call('HINCRBY', key, 'attempts', 1)
    if attempts >= max_attempts then
        redis.call('DEL', key)
        return -2
    end
    return 0
`)

// Consume redeems the code for (purpose, email) if codeHash matches.
func (s *OTPStore) Consume(ctx context.Context, purpose, email, codeHash string, maxAttempts int) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	res, err := consumeScript.Run(ctx, s.rdb, []string{s.key(purpose, email)}, codeHash, maxAttempts).Int()
	if err != nil {
		return err
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrOTPMismatch
	case -2:
		return ErrOTPLocked
	default:
		return ErrOTPNotFound
	}
}
