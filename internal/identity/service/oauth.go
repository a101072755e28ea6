package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/pkg/idx"
	"github.com/edgecoder/identity/pkg/slogx"
)

const defaultStateTTL = 10 * time.Minute

var (
	ErrStateNotFound          = errors.New("oauth state not found or expired")
	ErrLinkNotFound           = errors.New("oauth link not found")
	ErrStateProviderMismatch  = errors.New("oauth state was issued for a different provider")
	ErrUnverifiedProviderMail = errors.New("provider did not verify the email address")
)

// OAuthService manages redirect-flow anti-forgery states and the durable
// provider-identity links. The code exchange with the provider happens
// outside this service; CompleteFlow receives the already-exchanged
// identity claims.
type OAuthService struct {
	Store store.Store

	// StateTTL bounds redirect states. Zero falls back to 10 minutes.
	StateTTL time.Duration
}

// ProviderIdentity is what the external code exchange learned about the
// authenticated subject.
type ProviderIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

// BeginFlow mints the one-time state a redirect flow carries to the
// provider and back.
func (s *OAuthService) BeginFlow(ctx context.Context, provider, redirectURI string) (domain.OAuthState, error) {
	log := slogx.FromContext(ctx)

	now := time.Now().UTC()
	ttl := s.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	state := domain.OAuthState{
		ID:          idx.New().String(),
		Provider:    provider,
		RedirectURI: redirectURI,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
	if err := s.Store.OAuthStates().CreateState(ctx, state); err != nil {
		log.Error("failed to create oauth state",
			slog.String("provider", provider), slog.Any("error", err))
		return domain.OAuthState{}, err
	}
	return state, nil
}

// CompleteFlow consumes the state and resolves the provider identity to a
// local account: an existing link wins, otherwise the account is found by
// the provider-verified email, otherwise a fresh account is created (already
// email-verified, since the provider vouched for the address). The link
// upsert is idempotent, so replays of a completed exchange repoint nothing.
func (s *OAuthService) CompleteFlow(ctx context.Context, stateID string, ident ProviderIdentity) (domain.User, error) {
	log := slogx.FromContext(ctx)
	now := time.Now().UTC()

	// 1. Consume the state. Strictly one-time; a second completion of the
	// same flow finds nothing.
	state, err := s.Store.OAuthStates().ConsumeState(ctx, stateID, now)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrStateNotFound
		}
		log.Error("failed to consume oauth state", slog.Any("error", err))
		return domain.User{}, err
	}
	if state.Provider != ident.Provider {
		log.Warn("oauth state provider mismatch",
			slog.String("state_provider", state.Provider),
			slog.String("identity_provider", ident.Provider),
		)
		return domain.User{}, ErrStateProviderMismatch
	}

	// 2. An existing link decides the account outright.
	link, err := s.Store.OAuthLinks().GetLink(ctx, ident.Provider, ident.Subject)
	switch {
	case err == nil:
		return s.Store.Users().GetUserByID(ctx, link.UserID)
	case !errors.Is(err, store.ErrNotFound):
		log.Error("failed to fetch oauth link", slog.Any("error", err))
		return domain.User{}, err
	}

	// 3. No link yet: match or create by email. Only provider-verified
	// addresses may bind to an account, otherwise anyone could claim an
	// email at a sloppy provider and take over the local account.
	if !ident.EmailVerified || ident.Email == "" {
		return domain.User{}, ErrUnverifiedProviderMail
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, ident.Email)
	if errors.Is(err, store.ErrNotFound) {
		user = domain.User{
			ID:            idx.New().String(),
			Email:         ident.Email,
			EmailVerified: true,
			DisplayName:   displayNameFromEmail(ident.Email),
			CreatedAt:     now,
			VerifiedAt:    &now,
		}
		if err := s.Store.Users().CreateUser(ctx, user); err != nil {
			// A concurrent signup can win the insert; fall back to the
			// row that got there first.
			if errors.Is(err, store.ErrAlreadyExists) {
				user, err = s.Store.Users().GetUserByEmail(ctx, ident.Email)
				if err != nil {
					return domain.User{}, err
				}
			} else {
				log.Error("failed to create oauth user", slog.Any("error", err))
				return domain.User{}, err
			}
		} else {
			log.Info("user created from oauth identity",
				slog.String("user_id", user.ID), slog.String("provider", ident.Provider))
		}
	} else if err != nil {
		log.Error("failed to fetch user by email", slog.Any("error", err))
		return domain.User{}, err
	}

	// 4. The provider vouched for this address, so an existing unverified
	// account becomes verified, with the usual enrollment fan-out.
	if !user.EmailVerified {
		if _, err := s.Store.Users().MarkEmailVerified(ctx, user.ID, now); err != nil {
			return domain.User{}, err
		}
		if _, err := s.Store.NodeEnrollments().MarkOwnerEmailVerified(ctx, user.ID, now); err != nil {
			return domain.User{}, err
		}
		user.EmailVerified = true
	}

	// 5. Bind the provider identity.
	err = s.Store.OAuthLinks().UpsertLink(ctx, domain.OAuthLink{
		Provider:      ident.Provider,
		Subject:       ident.Subject,
		UserID:        user.ID,
		EmailSnapshot: ident.Email,
		CreatedAt:     now,
	})
	if err != nil {
		log.Error("failed to upsert oauth link", slog.Any("error", err))
		return domain.User{}, err
	}

	return user, nil
}

// FindLink looks up the account bound to a provider identity.
func (s *OAuthService) FindLink(ctx context.Context, provider, subject string) (domain.OAuthLink, error) {
	link, err := s.Store.OAuthLinks().GetLink(ctx, provider, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OAuthLink{}, ErrLinkNotFound
		}
		return domain.OAuthLink{}, err
	}
	return link, nil
}

func displayNameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
