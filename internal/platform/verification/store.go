// Package verification issues and checks short-lived email verification codes.
//
// Codes are six decimal digits stored in Redis under the requesting email
// address. Each email keeps an attempt counter alongside the code so brute
// force guessing burns the code before the keyspace can be walked.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCodeTTL     = 5 * time.Minute
	defaultMaxAttempts = 5

	codeKeyPrefix    = "verification:code:"
	attemptKeyPrefix = "verification:attempts:"
)

var (
	// ErrCodeExpired is returned when no code is stored for the email, either
	// because it was never issued or because the TTL elapsed.
	ErrCodeExpired = errors.New("verification: code expired")
	// ErrCodeMismatch is returned when the supplied code does not match.
	ErrCodeMismatch = errors.New("verification: code mismatch")
	// ErrTooManyAttempts is returned once the attempt budget is exhausted.
	// The stored code is invalidated and a fresh one must be requested.
	ErrTooManyAttempts = errors.New("verification: too many attempts")
)

// Config controls code lifetime and the guess budget per issued code.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
}

// Store keeps verification codes in Redis.
type Store struct {
	client      *redis.Client
	ttl         time.Duration
	maxAttempts int
}

// NewStore constructs a Store backed by the supplied Redis client.
func NewStore(client *redis.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("verification: redis client is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Store{client: client, ttl: ttl, maxAttempts: maxAttempts}, nil
}

// TTL reports how long an issued code stays valid.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Issue generates a fresh code for the email and stores it with the
// configured TTL. Re-issuing replaces any previous code and resets the
// attempt counter.
func (s *Store) Issue(ctx context.Context, email string) (string, error) {
	key := normalizeEmailKey(email)
	if key == "" {
		return "", errors.New("verification: email is required")
	}

	code, err := generateCode()
	if err != nil {
		return "", err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, codeKeyPrefix+key, code, s.ttl)
	pipe.Del(ctx, attemptKeyPrefix+key)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("verification: store code: %w", err)
	}
	return code, nil
}

// Verify checks the supplied code against the stored one. On success both the
// code and its attempt counter are removed so a code can only be used once.
func (s *Store) Verify(ctx context.Context, email, code string) error {
	key := normalizeEmailKey(email)
	code = strings.TrimSpace(code)
	if key == "" || code == "" {
		return ErrCodeMismatch
	}

	stored, err := s.client.Get(ctx, codeKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("verification: load code: %w", err)
	}

	attempts, err := s.client.Incr(ctx, attemptKeyPrefix+key).Result()
	if err != nil {
		return fmt.Errorf("verification: count attempt: %w", err)
	}
	if attempts == 1 {
		// The counter must not outlive the code it guards.
		if err := s.client.Expire(ctx, attemptKeyPrefix+key, s.ttl).Err(); err != nil {
			return fmt.Errorf("verification: expire attempts: %w", err)
		}
	}
	if attempts > int64(s.maxAttempts) {
		if err := s.client.Del(ctx, codeKeyPrefix+key, attemptKeyPrefix+key).Err(); err != nil {
			return fmt.Errorf("verification: invalidate code: %w", err)
		}
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return ErrCodeMismatch
	}

	if err := s.client.Del(ctx, codeKeyPrefix+key, attemptKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("verification: consume code: %w", err)
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("verification: generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizeEmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
