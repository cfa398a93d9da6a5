package local

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/learnexa/learnexa/internal/identity"
)

// OTPConfig tunes the one-time code challenges.
type OTPConfig struct {
	TTL            time.Duration
	MaxAttempts    int
	ResendInterval time.Duration
}

// OTPStore keeps one pending challenge per phone number in Redis. Only a
// bcrypt hash of the code is stored.
type OTPStore struct {
	client redis.Cmdable
	cfg    OTPConfig
	now    func() time.Time
}

// NewOTPStore constructs an OTPStore.
func NewOTPStore(client redis.Cmdable, cfg OTPConfig) *OTPStore {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ResendInterval <= 0 {
		cfg.ResendInterval = time.Minute
	}
	return &OTPStore{client: client, cfg: cfg, now: time.Now}
}

func otpKey(phone string) string {
	return "learnexa:otp:" + phone
}

func otpThrottleKey(phone string) string {
	return "learnexa:otp:throttle:" + phone
}

// Create starts a challenge for phone and returns the plain code. A new
// code is refused with identity.ErrRateLimited until the resend interval
// has passed.
func (s *OTPStore) Create(ctx context.Context, phone string) (string, time.Time, error) {
	ok, err := s.client.SetNX(ctx, otpThrottleKey(phone), 1, s.cfg.ResendInterval).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("local: otp throttle: %w", err)
	}
	if !ok {
		return "", time.Time{}, identity.ErrRateLimited
	}
	code, err := randomCode()
	if err != nil {
		return "", time.Time{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("local: hash otp: %w", err)
	}
	key := otpKey(phone)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", string(hash), "attempts", 0)
		pipe.Expire(ctx, key, s.cfg.TTL)
		return nil
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("local: store otp: %w", err)
	}
	return code, s.now().Add(s.cfg.TTL), nil
}

// Verify checks code against the pending challenge of phone. The
// challenge is consumed on success and discarded once MaxAttempts wrong
// codes were tried.
func (s *OTPStore) Verify(ctx context.Context, phone, code string) error {
	key := otpKey(phone)
	hash, err := s.client.HGet(ctx, key, "hash").Result()
	if errors.Is(err, redis.Nil) {
		return identity.ErrInvalidOTP
	}
	if err != nil {
		return fmt.Errorf("local: load otp: %w", err)
	}
	attempts, err := s.client.HIncrBy(ctx, key, "attempts", 1).Result()
	if err != nil {
		return fmt.Errorf("local: count otp attempt: %w", err)
	}
	if attempts > int64(s.cfg.MaxAttempts) {
		s.client.Del(ctx, key)
		return identity.ErrInvalidOTP
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		if attempts == int64(s.cfg.MaxAttempts) {
			s.client.Del(ctx, key)
		}
		return identity.ErrInvalidOTP
	}
	if err := s.client.Del(ctx, key, otpThrottleKey(phone)).Err(); err != nil {
		return fmt.Errorf("local: consume otp: %w", err)
	}
	return nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("local: otp code: %w", err)
	}
	code := strconv.FormatInt(n.Int64(), 10)
	for len(code) < 6 {
		code = "0" + code
	}
	return code, nil
}
