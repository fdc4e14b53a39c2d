package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinicore/internal/audit"
	"clinicore/pkg/domain"
)

func (f *fixture) user(t *testing.T, active bool) domain.User {
	t.Helper()
	u, _, err := f.svc.CreateUser(context.Background(), pharmacist, domain.User{
		OrganizationID: "org-1", FacilityID: "fac-1", Name: "Yaw Boateng",
		Email: "yaw@clinic.test", Role: domain.RoleCashier, Active: active,
	}, "correct horse")
	require.NoError(t, err)
	return u
}

func TestCreateUserHashesPassword(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, true)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, true)

	sess, err := f.svc.Login(context.Background(), "yaw@clinic.test", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.ActorID)
	assert.Equal(t, domain.RoleCashier, sess.Role)
	assert.Equal(t, "fac-1", sess.FacilityID)

	got, ok := f.svc.GetUser(context.Background(), u.ID)
	require.True(t, ok)
	require.NotNil(t, got.LastLoginAt)
	assert.Equal(t, f.now, *got.LastLoginAt)
	assert.Len(t, f.entries(t, audit.Filter{Action: domain.AuditLogin}), 1)

	f.svc.Logout(context.Background(), sess)
	logouts := f.entries(t, audit.Filter{Action: domain.AuditLogout})
	require.Len(t, logouts, 1)
	assert.Equal(t, u.ID, logouts[0].ActorID)
}

func TestLoginUnknownAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), "nobody@clinic.test", "x")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	failed := f.entries(t, audit.Filter{Action: domain.AuditLoginFailed})
	require.Len(t, failed, 1)
	assert.Equal(t, "nobody@clinic.test", failed[0].ActorID)
}

func TestLoginInactiveUser(t *testing.T) {
	f := newFixture(t)
	f.user(t, false)
	_, err := f.svc.Login(context.Background(), "yaw@clinic.test", "correct horse")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLoginLockout(t *testing.T) {
	f := newFixture(t, WithLockout(audit.Lockout{Threshold: 3, Duration: 15 * time.Minute}))
	ctx := context.Background()
	u := f.user(t, true)

	for range 3 {
		_, err := f.svc.Login(ctx, "yaw@clinic.test", "wrong")
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	got, _ := f.svc.GetUser(ctx, u.ID)
	assert.Equal(t, 3, got.FailedLoginAttempts)
	require.NotNil(t, got.LockoutUntil)

	_, err := f.svc.Login(ctx, "yaw@clinic.test", "correct horse")
	require.ErrorIs(t, err, domain.ErrAccountLocked)
	assert.Len(t, f.entries(t, audit.Filter{Action: domain.AuditLoginFailed}), 4)

	f.now = f.now.Add(16 * time.Minute)
	_, err = f.svc.Login(ctx, "yaw@clinic.test", "correct horse")
	require.NoError(t, err)
	got, _ = f.svc.GetUser(ctx, u.ID)
	assert.Zero(t, got.FailedLoginAttempts)
	assert.Nil(t, got.LockoutUntil)

	report, err := f.svc.Audit().Report(ctx, time.Time{}, f.now)
	require.NoError(t, err)
	assert.Equal(t, 4, report.FailedLogins)
}

func TestSetPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.user(t, true)

	ok, err := f.svc.SetPassword(ctx, pharmacist, u.ID, "battery staple")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Login(ctx, "yaw@clinic.test", "correct horse")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "yaw@clinic.test", "battery staple")
	require.NoError(t, err)
}
