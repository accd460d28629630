package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memolanes/memolanes-server/internal/auth"
	"github.com/memolanes/memolanes-server/internal/sqlitestore"
)

func mustAuthService(t *testing.T, noAuthMode bool) *auth.Service {
	t.Helper()

	db, err := sqlitestore.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return auth.NewService([]byte("test-secret"), db.Repositories(), noAuthMode)
}

func TestIssueAndAuthenticateRoundTrips(t *testing.T) {
	svc := mustAuthService(t, false)
	ctx := context.Background()

	user, err := svc.ResolveOrCreateExternalUser(ctx, "github", "4242", "octocat@example.com")
	require.NoError(t, err)

	token, err := svc.IssueToken(user.ID)
	require.NoError(t, err)

	resolved, err := svc.Authenticate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	svc := mustAuthService(t, false)

	_, err := svc.Authenticate(context.Background(), "not-a-jwt")
	require.Error(t, err)
}

func TestSingleUserNoAuthModeRequiresFlag(t *testing.T) {
	svc := mustAuthService(t, false)

	_, err := svc.Authenticate(context.Background(), auth.SingleUserToken)
	require.Error(t, err)
}

func TestSingleUserNoAuthModeLazilyCreatesUser(t *testing.T) {
	svc := mustAuthService(t, true)
	ctx := context.Background()

	user, err := svc.Authenticate(ctx, auth.SingleUserToken)
	require.NoError(t, err)
	require.Equal(t, auth.SingleUserID, user.ID)

	// Second call must not fail on a duplicate-id insert.
	user2, err := svc.Authenticate(ctx, auth.SingleUserToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, user2.ID)
}

func TestResolveOrCreateExternalUserIsIdempotent(t *testing.T) {
	svc := mustAuthService(t, false)
	ctx := context.Background()

	first, err := svc.ResolveOrCreateExternalUser(ctx, "github", "99", "a@example.com")
	require.NoError(t, err)

	second, err := svc.ResolveOrCreateExternalUser(ctx, "github", "99", "a@example.com")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
}
