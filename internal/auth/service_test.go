package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/redmonkez12/go-auth-service/internal/database"
	"github.com/redmonkez12/go-auth-service/internal/user"
)

func countResetTickets(t *testing.T, env *testEnv) int {
	t.Helper()
	n, err := env.db.NewSelect().Model((*database.PasswordReset)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestRegisterCreatesUnverifiedUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, err := env.service.Register(ctx, RegisterInput{Name: " Ann ", LastName: "Lee ", Email: " ann@x.com", Password: "secret1"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, "Ann", u.Name)
	assert.Equal(t, "Lee", u.LastName)
	assert.Equal(t, "ann@x.com", u.Email)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.Empty(t, u.PasswordHash)
	assert.Nil(t, u.Verified)

	stored, err := env.users.GetByID(ctx, u.ID, user.WithCredentials())
	require.NoError(t, err)
	assert.False(t, stored.IsVerified())
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	assert.True(t, env.hasher.Verify("secret1", stored.PasswordHash))

	mail := receive(t, env.mailer.registrations)
	assert.Equal(t, "ann@x.com", mail.Email)
	assert.Equal(t, "Ann", mail.Name)

	claims, err := env.tokens.VerifyToken(mail.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), claims.UserID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	first, err := env.service.Register(ctx, annInput)
	require.NoError(t, err)

	_, err = env.service.Register(ctx, RegisterInput{Name: "Other", LastName: "One", Email: "ann@x.com", Password: "another"})
	require.ErrorIs(t, err, ErrDuplicateEmail)

	stored, err := env.users.GetByEmail(ctx, "ann@x.com", user.WithCredentials())
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, "Ann", stored.Name)
	assert.True(t, env.hasher.Verify("secret1", stored.PasswordHash))
}

func TestRegisterRejectsBlankFields(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, in := range []RegisterInput{
		{Name: "  ", LastName: "Lee", Email: "ann@x.com", Password: "secret1"},
		{Name: "Ann", LastName: "", Email: "ann@x.com", Password: "secret1"},
		{Name: "Ann", LastName: "Lee", Email: " ", Password: "secret1"},
		{Name: "Ann", LastName: "Lee", Email: "ann@x.com", Password: ""},
	} {
		_, err := env.service.Register(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidInput)
	}

	assertNoEmail(t, env.mailer.registrations)
}

func TestRegisterSucceedsWhenMailFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.mailer.err = errors.New("smtp down")

	u, err := env.service.Register(context.Background(), annInput)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, u.ID)

	receive(t, env.mailer.registrations)
}

func TestLoginRequiresVerification(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.service.Register(ctx, annInput)
	require.NoError(t, err)
	mail := receive(t, env.mailer.registrations)

	_, err = env.service.Login(ctx, "ann@x.com", "secret1")
	require.ErrorIs(t, err, ErrEmailNotVerified)

	// the verified check comes first, whatever the password
	_, err = env.service.Login(ctx, "ann@x.com", "wrong")
	require.ErrorIs(t, err, ErrEmailNotVerified)

	_, err = env.service.VerifyEmail(ctx, mail.Token)
	require.NoError(t, err)

	result, err := env.service.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)
	assert.NotEmpty(t, result.Message)

	userID, err := env.service.ParseSessionToken(result.Token)
	require.NoError(t, err)
	stored, err := env.users.GetByEmail(ctx, "ann@x.com", user.Default)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, userID)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.registerVerified(t, annInput)

	for _, tc := range []struct{ email, password string }{
		{"ann@x.com", "wrong"},
		{"nobody@x.com", "secret1"},
		{"ANN@X.COM", "secret1"},
		{"", ""},
	} {
		_, err := env.service.Login(ctx, tc.email, tc.password)
		require.ErrorIs(t, err, ErrInvalidCredentials, tc.email)
	}
}

func TestLoginUpgradesLegacyHash(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	require.NoError(t, err)

	verified := true
	u := user.New("Ann", "Lee", "ann@x.com", string(legacy))
	u.Verified = &verified
	_, err = env.users.Insert(ctx, u)
	require.NoError(t, err)

	_, err = env.service.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)

	stored, err := env.users.GetByID(ctx, u.ID, user.WithCredentials())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	_, err = env.service.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
}

func TestVerifyEmailIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, err := env.service.Register(ctx, annInput)
	require.NoError(t, err)
	mail := receive(t, env.mailer.registrations)

	first, err := env.service.VerifyEmail(ctx, mail.Token)
	require.NoError(t, err)
	assert.Equal(t, msgEmailVerified, first.Message)

	before, err := env.users.GetByID(ctx, u.ID, user.WithVerified())
	require.NoError(t, err)
	require.True(t, before.IsVerified())

	second, err := env.service.VerifyEmail(ctx, mail.Token)
	require.NoError(t, err)
	assert.Equal(t, msgEmailAlreadyVerified, second.Message)
	assert.Equal(t, 200, second.StatusCode)

	after, err := env.users.GetByID(ctx, u.ID, user.WithVerified())
	require.NoError(t, err)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestVerifyEmailRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.service.VerifyEmail(ctx, "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)

	resetToken, err := env.tokens.CreateToken(TokenPayload{ResetID: 1}, time.Hour)
	require.NoError(t, err)
	_, err = env.service.VerifyEmail(ctx, resetToken)
	require.ErrorIs(t, err, ErrInvalidToken)

	unknown, err := env.tokens.CreateToken(TokenPayload{UserID: uuid.NewString()}, time.Hour)
	require.NoError(t, err)
	_, err = env.service.VerifyEmail(ctx, unknown)
	require.ErrorIs(t, err, ErrInvalidToken)

	notUUID, err := env.tokens.CreateToken(TokenPayload{UserID: "42"}, time.Hour)
	require.NoError(t, err)
	_, err = env.service.VerifyEmail(ctx, notUUID)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, err := env.service.Register(ctx, annInput)
	require.NoError(t, err)
	receive(t, env.mailer.registrations)

	env.tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := env.tokens.CreateToken(TokenPayload{UserID: u.ID.String()}, time.Hour)
	require.NoError(t, err)
	env.tokens.now = time.Now

	_, err = env.service.VerifyEmail(ctx, stale)
	require.ErrorIs(t, err, ErrExpiredToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequestPasswordResetUniformResponse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.registerVerified(t, annInput)
	_, err := env.service.Register(ctx, RegisterInput{Name: "Bob", LastName: "Ray", Email: "bob@x.com", Password: "secret2"})
	require.NoError(t, err)
	receive(t, env.mailer.registrations)

	unknown := env.service.RequestPasswordReset(ctx, "nobody@x.com")
	unverified := env.service.RequestPasswordReset(ctx, "bob@x.com")
	assertNoEmail(t, env.mailer.resets)
	assert.Equal(t, 0, countResetTickets(t, env))

	eligible := env.service.RequestPasswordReset(ctx, "ann@x.com")
	mail := receive(t, env.mailer.resets)
	assert.Equal(t, "ann@x.com", mail.Email)
	assert.Equal(t, "Ann", mail.Name)
	assert.Equal(t, 1, countResetTickets(t, env))

	assert.Equal(t, eligible, unknown)
	assert.Equal(t, eligible, unverified)
	assert.Equal(t, 200, eligible.StatusCode)

	claims, err := env.tokens.VerifyToken(mail.Token)
	require.NoError(t, err)
	assert.NotZero(t, claims.ResetID)
	assert.Empty(t, claims.UserID)
	assert.WithinDuration(t, time.Now().Add(testDurations.Reset), claims.ExpiresAt, 5*time.Second)
}

func TestResetPasswordSucceedsOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.registerVerified(t, annInput)
	token := env.requestReset(t, "ann@x.com")

	result, err := env.service.ResetPassword(ctx, token, "new1")
	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)

	_, err = env.service.Login(ctx, "ann@x.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.service.Login(ctx, "ann@x.com", "new1")
	require.NoError(t, err)

	_, err = env.service.ResetPassword(ctx, token, "new2")
	require.ErrorIs(t, err, ErrTokenAlreadyUsed)

	// the password from the first reset stays in effect
	_, err = env.service.Login(ctx, "ann@x.com", "new1")
	require.NoError(t, err)
	_, err = env.service.Login(ctx, "ann@x.com", "new2")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResetPasswordConcurrentUse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	env.registerVerified(t, annInput)
	token := env.requestReset(t, "ann@x.com")

	const attempts = 5
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes []string
		used      int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(pw string) {
			defer wg.Done()
			_, err := env.service.ResetPassword(ctx, token, pw)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes = append(successes, pw)
			case errors.Is(err, ErrTokenAlreadyUsed):
				used++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(strings.Repeat("p", 4+i))
	}
	wg.Wait()

	require.Len(t, successes, 1)
	assert.Equal(t, attempts-1, used)

	_, err := env.service.Login(ctx, "ann@x.com", successes[0])
	require.NoError(t, err)
}

func TestResetPasswordRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, _ := env.registerVerified(t, annInput)

	_, err := env.service.ResetPassword(ctx, "garbage", "new1")
	require.ErrorIs(t, err, ErrInvalidToken)

	// a session token carries no reset ticket
	session, err := env.tokens.CreateToken(TokenPayload{UserID: u.ID.String()}, time.Hour)
	require.NoError(t, err)
	_, err = env.service.ResetPassword(ctx, session, "new1")
	require.ErrorIs(t, err, ErrInvalidToken)

	missing, err := env.tokens.CreateToken(TokenPayload{ResetID: 9999}, time.Hour)
	require.NoError(t, err)
	_, err = env.service.ResetPassword(ctx, missing, "new1")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = env.service.ResetPassword(ctx, missing, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, _ := env.registerVerified(t, annInput)
	ticket, err := env.resets.Create(ctx, u.ID)
	require.NoError(t, err)

	env.tokens.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := env.tokens.CreateToken(TokenPayload{ResetID: ticket.ID}, time.Hour)
	require.NoError(t, err)
	env.tokens.now = time.Now

	_, err = env.service.ResetPassword(ctx, stale, "new1")
	require.ErrorIs(t, err, ErrInvalidToken)

	// the ticket was not consumed
	stored, err := env.resets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.False(t, stored.Used)
}

func TestResetPasswordForDeletedUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, _ := env.registerVerified(t, annInput)
	token := env.requestReset(t, "ann@x.com")

	_, err := env.service.DeleteUser(ctx, u.ID)
	require.NoError(t, err)

	_, err = env.service.ResetPassword(ctx, token, "new1")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDeleteUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, _ := env.registerVerified(t, annInput)

	result, err := env.service.DeleteUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, result.StatusCode)

	_, err = env.service.FindUser(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.service.DeleteUser(ctx, u.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.service.Login(ctx, "ann@x.com", "secret1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	// the address can be registered again
	_, err = env.service.Register(ctx, annInput)
	require.NoError(t, err)
}

func TestAllowAccessAndGetAccessLogs(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	ann, _ := env.registerVerified(t, annInput)
	bob, _ := env.registerVerified(t, RegisterInput{Name: "Bob", LastName: "Ray", Email: "bob@x.com", Password: "secret2"})

	_, err := env.service.AllowAccess(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)

	for _, id := range []uuid.UUID{ann.ID, bob.ID, ann.ID} {
		result, err := env.service.AllowAccess(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 200, result.StatusCode)
	}

	entries, err := env.service.GetAccessLogs(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, []uuid.UUID{ann.ID, bob.ID, ann.ID}, []uuid.UUID{entries[0].UserID, entries[1].UserID, entries[2].UserID})
	assert.Less(t, entries[0].ID, entries[1].ID)
	assert.Less(t, entries[1].ID, entries[2].ID)
	require.NotNil(t, entries[0].User)
	assert.Equal(t, "ann@x.com", entries[0].User.Email)
	assert.Empty(t, entries[0].User.PasswordHash)
	assert.Nil(t, entries[0].User.Verified)

	_, err = env.service.DeleteUser(ctx, bob.ID)
	require.NoError(t, err)

	entries, err = env.service.GetAccessLogs(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, bob.ID, entries[1].UserID)
	assert.Nil(t, entries[1].User)
	assert.NotNil(t, entries[0].User)
}

func TestCreateAdminAndSetRole(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	admin, err := env.service.CreateAdmin(ctx, RegisterInput{Name: "Root", LastName: "Admin", Email: "root@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, admin.Role)
	assertNoEmail(t, env.mailer.registrations)

	// created verified, so login works right away
	_, err = env.service.Login(ctx, "root@x.com", "secret1")
	require.NoError(t, err)

	_, err = env.service.CreateAdmin(ctx, RegisterInput{Name: "Root", LastName: "Admin", Email: "root@x.com", Password: "secret1"})
	require.ErrorIs(t, err, ErrDuplicateEmail)

	ann, _ := env.registerVerified(t, annInput)
	promoted, err := env.service.SetRole(ctx, "ann@x.com", user.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, promoted.Role)

	p, err := env.service.Principal(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, p.Role)

	_, err = env.service.SetRole(ctx, "nobody@x.com", user.RoleAdmin)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = env.service.SetRole(ctx, "ann@x.com", user.Role("ROOT"))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.db.Close())

	_, err := env.service.Register(ctx, annInput)
	require.ErrorIs(t, err, ErrInternal)
	assert.False(t, errors.Is(err, ErrDuplicateEmail))

	// the reset request still looks successful
	result := env.service.RequestPasswordReset(ctx, "ann@x.com")
	assert.Equal(t, msgResetRequested, result.Message)
}
