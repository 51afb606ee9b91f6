package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/proserveapp/proserve/internal/models"
	"github.com/proserveapp/proserve/pkg/crypto"
)

func TestPasswordResetRoundTrip(t *testing.T) {
	db := openServicesTestDB(t)
	user, _, _ := seedUnpaidSignup(t, db, "Reset Co")

	mailer := &recordingMailer{}
	svc, err := NewPasswordResetService(db,
		WithResetMailer(mailer),
		WithResetFrontendURL("https://app.example.com"),
	)
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), user.Email))
	require.Len(t, mailer.sent, 1)

	var record models.PasswordResetToken
	require.NoError(t, db.First(&record, "user_id = ?", user.ID).Error)

	require.NoError(t, svc.ResetPassword(context.Background(), record.Token, "new-password-1"))

	var gotUser models.User
	require.NoError(t, db.First(&gotUser, "id = ?", user.ID).Error)
	require.True(t, crypto.VerifyPassword(gotUser.Password, "new-password-1"))

	// Single use: a second redemption fails.
	err = svc.ResetPassword(context.Background(), record.Token, "another-password")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	db := openServicesTestDB(t)

	mailer := &recordingMailer{}
	svc, err := NewPasswordResetService(db, WithResetMailer(mailer))
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(context.Background(), "nobody@example.com"))
	require.Empty(t, mailer.sent)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	db := openServicesTestDB(t)
	user, _, _ := seedUnpaidSignup(t, db, "Reset Co")

	current := time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, err := NewPasswordResetService(db,
		WithResetClock(func() time.Time { return current }),
	)
	require.NoError(t, err)

	token, err := svc.CreateToken(context.Background(), user.ID)
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)
	err = svc.ResetPassword(context.Background(), token, "new-password-1")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestResetPasswordRejectsWeakPassword(t *testing.T) {
	db := openServicesTestDB(t)
	user, _, _ := seedUnpaidSignup(t, db, "Reset Co")

	svc, err := NewPasswordResetService(db)
	require.NoError(t, err)

	token, err := svc.CreateToken(context.Background(), user.ID)
	require.NoError(t, err)

	require.Error(t, svc.ResetPassword(context.Background(), token, "short"))
}

func TestPasswordResetPurgeExpired(t *testing.T) {
	db := openServicesTestDB(t)
	user, _, _ := seedUnpaidSignup(t, db, "Reset Co")

	current := time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)
	svc, err := NewPasswordResetService(db,
		WithResetClock(func() time.Time { return current }),
	)
	require.NoError(t, err)

	_, err = svc.CreateToken(context.Background(), user.ID)
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)
	fresh, err := svc.CreateToken(context.Background(), user.ID)
	require.NoError(t, err)

	purged, err := svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, purged)

	var remaining models.PasswordResetToken
	require.NoError(t, db.First(&remaining, "user_id = ?", user.ID).Error)
	require.Equal(t, fresh, remaining.Token)
}
