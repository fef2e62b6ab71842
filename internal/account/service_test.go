package account

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/storefront/internal/db/dbtest"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/tokens"
	"github.com/Skotchmaster/storefront/internal/validate"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(dbtest.Open(t), tokens.NewIssuer([]byte("test-jwt-secret"), []byte("test-refresh-secret")))
}

func validRegister() RegisterInput {
	return RegisterInput{
		Username:        "alice",
		Email:           "Alice@Example.com ",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
}

func TestService_Register_LogsIn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)
	assert.NotZero(t, sess.Account.ID)
	assert.Equal(t, "alice@example.com", sess.Account.Email)
	assert.NotEqual(t, "secret1", sess.Account.PasswordHash)

	claims, err := svc.Issuer.ParseAccess(sess.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	var rows int64
	require.NoError(t, svc.Repo.DB.Model(&models.RefreshToken{}).Where("account_id = ?", sess.Account.ID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestService_Register_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		mut   func(*RegisterInput)
		field string
	}{
		{name: "empty username", mut: func(in *RegisterInput) { in.Username = "  " }, field: "username"},
		{name: "bad email", mut: func(in *RegisterInput) { in.Email = "nope" }, field: "email"},
		{name: "empty password", mut: func(in *RegisterInput) { in.Password = "" }, field: "password"},
		{name: "empty confirmation", mut: func(in *RegisterInput) { in.ConfirmPassword = "" }, field: "confirm_password"},
		{name: "password over 72 bytes", mut: func(in *RegisterInput) {
			in.Password = strings.Repeat("é", 40)
			in.ConfirmPassword = in.Password
		}, field: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegister()
			tt.mut(&in)

			_, err := svc.Register(ctx, in)
			require.ErrorIs(t, err, ErrValidation)

			var valErr *validate.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Contains(t, valErr.Fields(), tt.field)
		})
	}
}

func TestService_Register_MultibytePasswordWithinLimit(t *testing.T) {
	svc := newTestService(t)
	in := validRegister()
	in.Password = strings.Repeat("é", 36)
	in.ConfirmPassword = in.Password

	sess, err := svc.Register(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: in.Password})
	assert.NoError(t, err)
	assert.NotZero(t, sess.Account.ID)
}

func TestService_Register_PasswordMismatch(t *testing.T) {
	svc := newTestService(t)
	in := validRegister()
	in.ConfirmPassword = "secret2"

	_, err := svc.Register(context.Background(), in)
	assert.ErrorIs(t, err, ErrPasswordMismatch)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	in := validRegister()
	in.Username = "alice2"
	in.Email = "alice@example.com"
	_, err = svc.Register(ctx, in)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_Login(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	sess, err := svc.Login(ctx, LoginInput{Email: "ALICE@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, sess.Account.ID)

	_, err = svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Email: "bob@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, LoginInput{Email: "", Password: ""})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_RefreshRotates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	next, err := svc.Refresh(ctx, reg.Refresh.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, next.Account.ID)
	assert.NotEqual(t, reg.Refresh.JTI, next.Refresh.JTI)

	_, err = svc.Refresh(ctx, reg.Refresh.Token)
	assert.ErrorIs(t, err, ErrInvalidRefresh, "a rotated token cannot be replayed")

	_, err = svc.Refresh(ctx, next.Refresh.Token)
	assert.NoError(t, err)
}

func TestService_RefreshRejectsGarbage(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Refresh(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidRefresh)
}

func TestService_LogoutRevokes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, validRegister())
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, reg.Refresh.Token))
	_, err = svc.Refresh(ctx, reg.Refresh.Token)
	assert.ErrorIs(t, err, ErrInvalidRefresh)

	assert.NoError(t, svc.Logout(ctx, ""))
}
