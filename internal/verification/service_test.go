package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/clinic-booking/internal/redis"
)

type sentCode struct {
	name, email, code string
	ttl               time.Duration
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentCode
}

func (n *recordingNotifier) NotifyVerificationCode(_ context.Context, name, email, code string, ttl time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentCode{name, email, code, ttl})
}

type memAccounts struct {
	verified map[string]bool
	err      error
}

func (a *memAccounts) MarkEmailVerified(_ context.Context, email string) error {
	if a.err != nil {
		return a.err
	}
	a.verified[email] = true
	return nil
}

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis, *recordingNotifier, *memAccounts) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	notifier := &recordingNotifier{}
	accounts := &memAccounts{verified: map[string]bool{}}
	svc := NewService(redisclient.NewRedisCache(client, "verify:"), notifier, accounts, 15*time.Minute, zerolog.Nop())

	return svc, mr, notifier, accounts
}

func TestIssueStoresAndSendsCode(t *testing.T) {
	svc, mr, notifier, _ := newTestService(t)

	code, err := svc.Issue(context.Background(), " Ada@Example.com ", "Ada")
	require.NoError(t, err)

	assert.Len(t, code, 6)
	stored, err := mr.Get("verify:ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, code, stored)
	assert.Equal(t, 15*time.Minute, mr.TTL("verify:ada@example.com"))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, sentCode{"Ada", "ada@example.com", code, 15 * time.Minute}, notifier.sent[0])
}

func TestVerifyConsumesCode(t *testing.T) {
	svc, mr, _, accounts := newTestService(t)

	code, err := svc.Issue(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)

	require.NoError(t, svc.Verify(context.Background(), "ADA@example.com", code))
	assert.True(t, accounts.verified["ada@example.com"])
	assert.False(t, mr.Exists("verify:ada@example.com"))

	assert.ErrorIs(t, svc.Verify(context.Background(), "ada@example.com", code), ErrInvalidCode)
}

func TestVerifyRejectsWrongCode(t *testing.T) {
	svc, mr, _, accounts := newTestService(t)

	code, err := svc.Issue(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	assert.ErrorIs(t, svc.Verify(context.Background(), "ada@example.com", wrong), ErrInvalidCode)
	assert.Empty(t, accounts.verified)
	assert.True(t, mr.Exists("verify:ada@example.com"), "a wrong guess keeps the code")
}

func TestVerifyExpiredCode(t *testing.T) {
	svc, mr, _, _ := newTestService(t)

	code, err := svc.Issue(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)

	mr.FastForward(16 * time.Minute)

	assert.ErrorIs(t, svc.Verify(context.Background(), "ada@example.com", code), ErrInvalidCode)
}

func TestReissueReplacesCode(t *testing.T) {
	svc, mr, _, _ := newTestService(t)

	_, err := svc.Issue(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)
	second, err := svc.Issue(context.Background(), "ada@example.com", "Ada")
	require.NoError(t, err)

	stored, err := mr.Get("verify:ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, second, stored)
}

func TestVerifyKeepsCodeWhenAccountUpdateFails(t *testing.T) {
	svc, mr, _, accounts := newTestService(t)
	accounts.err = ErrAccountNotFound

	code, err := svc.Issue(context.Background(), "ghost@example.com", "")
	require.NoError(t, err)

	err = svc.Verify(context.Background(), "ghost@example.com", code)
	assert.True(t, errors.Is(err, ErrAccountNotFound))
	assert.True(t, mr.Exists("verify:ghost@example.com"))
}

func TestGenerateCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.NotEqual(t, byte('0'), code[0])
	}
}

func TestPgAccountStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPgAccountStore(mock)

	mock.ExpectExec("UPDATE users").WithArgs("ada@example.com").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkEmailVerified(context.Background(), "ada@example.com"))

	mock.ExpectExec("UPDATE users").WithArgs("ghost@example.com").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, store.MarkEmailVerified(context.Background(), "ghost@example.com"), ErrAccountNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
