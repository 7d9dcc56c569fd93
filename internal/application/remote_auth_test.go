package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
)

type stubBackend struct {
	principal *domain.Principal
	err       error
}

func (b stubBackend) AuthWithPassword(ctx context.Context, identity, password string) (string, *domain.Principal, error) {
	return "remote-token", b.principal, b.err
}

func (b stubBackend) AuthRefresh(ctx context.Context, token string) (string, *domain.Principal, error) {
	return "remote-token", b.principal, b.err
}

func TestRemotePrincipalCanRecord(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	admin, _, _ := seedUsers(t, svc)

	remote := &domain.Principal{ID: "rmt000000000001", Email: "remote@aid.test", Name: "Rami", Role: domain.RoleVolunteer}
	auth := NewRemoteAuth(stubBackend{principal: remote}, svc)

	_, p, err := auth.AuthWithPassword(ctx, "remote@aid.test", "whatever")
	require.NoError(t, err)
	assert.Equal(t, remote, p)

	rec, err := svc.CreateRecord(ctx, p, domain.DonationsCollection, map[string]any{"donor_name": "Noor", "amount": 12})
	require.NoError(t, err)
	assert.Equal(t, remote.ID, rec.String(domain.FieldRecordedBy))

	_, err = svc.UpdateRecord(ctx, admin, domain.DonationsCollection, rec.ID, map[string]any{"notes": "seen"})
	require.NoError(t, err, "recorded_by still resolves when someone else edits")

	again, err := auth.Authenticate(ctx, "remote-token")
	require.NoError(t, err)
	assert.Equal(t, remote.ID, again.ID)

	users, err := svc.ListUsers(ctx, admin, "remote@", 10)
	require.NoError(t, err)
	require.Len(t, users, 1, "repeat logins reuse the shadow user")

	_, _, err = svc.AuthWithPassword(ctx, "remote@aid.test", "")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, _, err = svc.AuthWithPassword(ctx, "remote@aid.test", "whatever")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials, "shadow users have no local password")
}

func TestRemoteAuthRejectsBackendFailures(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	seedUsers(t, svc)

	_, _, err := NewRemoteAuth(stubBackend{err: domain.ErrInvalidCredentials}, svc).AuthWithPassword(ctx, "x@aid.test", "pw")
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, err = NewRemoteAuth(stubBackend{principal: &domain.Principal{Email: "noid@aid.test"}}, svc).Authenticate(ctx, "tok")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	clash := &domain.Principal{ID: "rmt000000000002", Email: "volunteer@aid.test", Role: domain.RoleVolunteer}
	_, _, err = NewRemoteAuth(stubBackend{principal: clash}, svc).AuthWithPassword(ctx, "volunteer@aid.test", "pw")
	require.Error(t, err, "a remote id cannot take over a local email")
}
