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

	"github.com/rs/zerolog"

	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

var (
	ErrInvalidCode     = errors.New("invalid or expired verification code")
	ErrAccountNotFound = errors.New("no account registered for that email")
)

// CodeNotifier delivers a freshly issued code to its owner.
type CodeNotifier interface {
	NotifyVerificationCode(ctx context.Context, name, email, code string, ttl time.Duration)
}

// AccountStore marks an account's email as verified.
type AccountStore interface {
	MarkEmailVerified(ctx context.Context, email string) error
}

type Service struct {
	cache    redisclient.Cache
	notifier CodeNotifier
	accounts AccountStore
	ttl      time.Duration
	logger   zerolog.Logger
}

func NewService(cache redisclient.Cache, notifier CodeNotifier, accounts AccountStore, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		cache:    cache,
		notifier: notifier,
		accounts: accounts,
		ttl:      ttl,
		logger:   logger.With().Str("component", "verification").Logger(),
	}
}

// Issue stores a new six-digit code for email, replacing any previous one,
// and sends it. The code is returned for callers that need it in tests or
// tooling; it is never written to the API response.
func (s *Service) Issue(ctx context.Context, email, name string) (string, error) {
	email = normalize(email)
	if email == "" {
		return "", errors.New("email is required")
	}

	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	if err := s.cache.Set(ctx, email, code, s.ttl); err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}

	s.notifier.NotifyVerificationCode(ctx, name, email, code, s.ttl)
	s.logger.Info().Str("email", email).Msg("verification code issued")

	return code, nil
}

// Verify checks code against the stored one. On a match the account is
// marked verified and the code is consumed.
func (s *Service) Verify(ctx context.Context, email, code string) error {
	email = normalize(email)

	stored, ok, err := s.cache.Get(ctx, email)
	if err != nil {
		return fmt.Errorf("load verification code: %w", err)
	}
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		return ErrInvalidCode
	}

	if err := s.accounts.MarkEmailVerified(ctx, email); err != nil {
		return err
	}

	if err := s.cache.Delete(ctx, email); err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("failed to delete used verification code")
	}
	s.logger.Info().Str("email", email).Msg("email verified")

	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateCode returns a uniformly random code in [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
