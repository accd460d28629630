// Package auth issues and verifies the bearer tokens spec §6's endpoints
// require, and implements the SINGLE_USER_NO_AUTH_MODE convenience flag
// (spec §7). Tokens are JWTs signed with a single HMAC secret — the
// teacher has no HTTP auth layer of its own, so this is grounded on the
// pack's other JWT user (go-ethereum's node/rpc HS256 bearer auth) rather
// than on anything in tonimelisma-onedrive-go.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/memolanes/memolanes-server/internal/apierr"
	"github.com/memolanes/memolanes-server/internal/store"
)

// tokenTTL is how long an issued bearer token remains valid before the
// client must re-authenticate via SSO.
const tokenTTL = 30 * 24 * time.Hour

// SingleUserToken is the fixed bearer value SINGLE_USER_NO_AUTH_MODE
// accepts in place of a real JWT (spec §7).
const SingleUserToken = "SINGLE-USER-NO-AUTH-MODE-TOKEN"

// SingleUserID is the fixed uid SingleUserToken authenticates as.
const SingleUserID int64 = -1

// claims is the JWT payload: just the subject (user id) plus the
// standard registered claims for expiry.
type claims struct {
	jwt.RegisteredClaims
}

// Service issues and verifies bearer tokens for the HTTP API.
type Service struct {
	secret     []byte
	repos      store.Repositories
	noAuthMode bool
}

// NewService constructs a Service. noAuthMode mirrors the
// SINGLE_USER_NO_AUTH_MODE env var and must default to false — it is a
// deploy-time convenience flag, not something a client can opt into.
func NewService(secret []byte, repos store.Repositories, noAuthMode bool) *Service {
	return &Service{secret: secret, repos: repos, noAuthMode: noAuthMode}
}

// IssueToken mints a bearer token for userID, valid for tokenTTL.
func (s *Service) IssueToken(userID int64) (string, error) {
	now := time.Now()

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})

	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Authenticate resolves a bearer token to a user, creating the
// single-user-no-auth row lazily on first use (spec §7). Returns
// apierr.Unauthorized for any token that fails verification.
func (s *Service) Authenticate(ctx context.Context, token string) (*store.User, error) {
	if s.noAuthMode && token == SingleUserToken {
		return s.ensureSingleUser(ctx)
	}

	userID, err := s.verify(token)
	if err != nil {
		return nil, apierr.New(apierr.Unauthorized, err.Error())
	}

	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("auth: beginning transaction: %w", err))
	}
	defer tx.Rollback()

	user, err := s.repos.Users.GetByID(ctx, tx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierr.New(apierr.Unauthorized, "unknown user")
	}

	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("auth: loading user %d: %w", userID, err))
	}

	return user, tx.Commit()
}

func (s *Service) verify(token string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}

		return s.secret, nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return 0, errors.New("invalid token claims")
	}

	var userID int64
	if _, err := fmt.Sscanf(c.Subject, "%d", &userID); err != nil {
		return 0, fmt.Errorf("invalid token subject: %w", err)
	}

	return userID, nil
}

func (s *Service) ensureSingleUser(ctx context.Context) (*store.User, error) {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("auth: beginning transaction: %w", err))
	}
	defer tx.Rollback()

	user, err := s.repos.Users.EnsureByID(ctx, tx, &store.User{
		ID:            SingleUserID,
		ContactEmail:  "single-user@localhost",
		OAuthProvider: "none",
		Language:      "en",
	})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("auth: ensuring single user: %w", err))
	}

	return user, tx.Commit()
}

// ResolveOrCreateExternalUser looks up a user by (provider, external uid)
// from an idp.Identity, creating one on first login (spec §1's "User
// created at SSO completion").
func (s *Service) ResolveOrCreateExternalUser(ctx context.Context, provider, externalUID, email string) (*store.User, error) {
	tx, err := s.repos.UnitOfWork.BeginImmediate(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.repos.Users.GetByExternalUID(ctx, tx, provider, externalUID)
	if err == nil {
		return existing, tx.Commit()
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("auth: looking up external user: %w", err)
	}

	uid := externalUID

	created, err := s.repos.Users.Create(ctx, tx, &store.User{
		ContactEmail:  email,
		ExternalUID:   &uid,
		OAuthProvider: provider,
		Language:      "en",
	})
	if err != nil {
		return nil, fmt.Errorf("auth: creating external user: %w", err)
	}

	return created, tx.Commit()
}
