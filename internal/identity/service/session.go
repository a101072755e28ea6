package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/pkg/credutil"
	"github.com/edgecoder/identity/pkg/idx"
	"github.com/edgecoder/identity/pkg/slogx"
)

const defaultSessionTTL = 30 * 24 * time.Hour

var ErrSessionNotFound = errors.New("session not found or expired")

// SessionService issues and resolves opaque login sessions. Raw session
// tokens exist only in flight; storage sees fingerprints.
type SessionService struct {
	Store store.Store

	// TTL bounds issued sessions. Zero falls back to 30 days.
	TTL time.Duration
}

// Issue mints a session for the user and returns it with the raw token the
// client will present on later requests.
func (s *SessionService) Issue(ctx context.Context, userID string) (domain.Session, string, error) {
	log := slogx.FromContext(ctx)

	token, err := credutil.GenerateToken(credutil.TokenSize256)
	if err != nil {
		log.Error("failed to generate session token", slog.Any("error", err))
		return domain.Session{}, "", err
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	now := time.Now().UTC()
	sess := domain.Session{
		ID:        idx.New().String(),
		UserID:    userID,
		TokenHash: credutil.FingerprintToken(token),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		log.Error("failed to create session",
			slog.String("user_id", userID), slog.Any("error", err))
		return domain.Session{}, "", err
	}

	log.Debug("session issued",
		slog.String("session_id", sess.ID), slog.String("user_id", userID))
	return sess, token, nil
}

// Resolve maps a raw token back to its live session. Expired sessions are
// invisible; they surface as not-found like unknown tokens.
func (s *SessionService) Resolve(ctx context.Context, rawToken string) (domain.Session, error) {
	sess, err := s.Store.Sessions().GetSessionByTokenHash(ctx,
		credutil.FingerprintToken(rawToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, ErrSessionNotFound
		}
		return domain.Session{}, err
	}
	return sess, nil
}

// ResolveUser resolves a raw token straight to its account.
func (s *SessionService) ResolveUser(ctx context.Context, rawToken string) (domain.User, error) {
	sess, err := s.Resolve(ctx, rawToken)
	if err != nil {
		return domain.User{}, err
	}
	return s.Store.Users().GetUserByID(ctx, sess.UserID)
}

// Revoke deletes one session. Revoking an unknown session is a no-op.
func (s *SessionService) Revoke(ctx context.Context, sessionID string) error {
	return s.Store.Sessions().DeleteSession(ctx, sessionID)
}

// RevokeAllForUser logs the user out everywhere.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID string) error {
	log := slogx.FromContext(ctx)
	if err := s.Store.Sessions().DeleteUserSessions(ctx, userID); err != nil {
		log.Error("failed to revoke user sessions",
			slog.String("user_id", userID), slog.Any("error", err))
		return err
	}
	log.Info("all sessions revoked", slog.String("user_id", userID))
	return nil
}
