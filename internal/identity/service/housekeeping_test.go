package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/pkg/idx"
)

func TestHousekeepingSweep(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	ctx := context.Background()
	user := verifiedTestUser(t, st, "hk@example.com")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Seed one expired and one live row in a swept table.
	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)
	require.NoError(t, st.OAuthStates().CreateState(ctx, domain.OAuthState{
		ID: "stale-state", Provider: "github", RedirectURI: "https://x",
		ExpiresAt: past, CreatedAt: past,
	}))
	require.NoError(t, st.OAuthStates().CreateState(ctx, domain.OAuthState{
		ID: "live-state", Provider: "github", RedirectURI: "https://x",
		ExpiresAt: future, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, st.Sessions().CreateSession(ctx, domain.Session{
		ID: idx.New().String(), UserID: user.ID, TokenHash: "hk-hash",
		ExpiresAt: past, CreatedAt: past,
	}))

	svc := NewHousekeepingService(st, logger, time.Hour)
	svc.Sweep(ctx)

	// The live state survives the sweep.
	_, err := st.OAuthStates().ConsumeState(ctx, "live-state", time.Now().UTC())
	require.NoError(t, err)
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()

	st := newTestStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewHousekeepingService(st, logger, 10*time.Millisecond)
	svc.Start()
	time.Sleep(30 * time.Millisecond)
	svc.Stop() // blocks until the worker exits
}
