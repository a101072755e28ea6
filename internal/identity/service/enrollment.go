package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/edgecoder/identity/pkg/credutil"
	"github.com/edgecoder/identity/pkg/nodetoken"
	"github.com/edgecoder/identity/pkg/slogx"
)

var (
	ErrNodeNotFound      = errors.New("node enrollment not found")
	ErrNodeInactive      = errors.New("node is not active")
	ErrUnknownNodeOwner  = errors.New("node owner account not found")
	ErrInvalidNodeID     = errors.New("invalid node id")
	ErrBadNodeCredential = errors.New("registration token does not match")
)

// EnrollmentService drives the node enrollment state machine: registration,
// admin approval, liveness telemetry and identity token minting for nodes
// that have earned active status.
type EnrollmentService struct {
	Store store.Store

	// Minter signs node identity tokens. Optional; nil disables minting.
	Minter *nodetoken.Minter
}

// RegisterNode enrolls (or re-enrolls) a node under its owner and returns
// the enrollment together with the raw registration token the node keeps.
// Re-registration rotates the token and refreshes owner data but never
// resets an approval an admin already granted.
func (s *EnrollmentService) RegisterNode(ctx context.Context, nodeID string, kind domain.NodeKind, ownerUserID string) (domain.NodeEnrollment, string, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate inputs.
	if nodeID == "" {
		return domain.NodeEnrollment{}, "", ErrInvalidNodeID
	}
	if _, err := domain.ParseNodeKind(string(kind)); err != nil {
		return domain.NodeEnrollment{}, "", err
	}

	// 2. The owner account supplies the email snapshot and the current
	// verification state.
	owner, err := s.Store.Users().GetUserByID(ctx, ownerUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NodeEnrollment{}, "", ErrUnknownNodeOwner
		}
		log.Error("failed to fetch node owner", slog.Any("error", err))
		return domain.NodeEnrollment{}, "", err
	}

	// 3. Mint the registration token; only its fingerprint is stored.
	token, err := credutil.GenerateToken(credutil.TokenSize256)
	if err != nil {
		log.Error("failed to generate registration token", slog.Any("error", err))
		return domain.NodeEnrollment{}, "", err
	}

	// 4. Upsert. The store preserves a stored approval and recomputes
	// active in the same statement.
	now := time.Now().UTC()
	enrollment, err := s.Store.NodeEnrollments().UpsertEnrollment(ctx, domain.NodeEnrollment{
		NodeID:                nodeID,
		Kind:                  kind,
		OwnerUserID:           owner.ID,
		OwnerEmail:            owner.Email,
		RegistrationTokenHash: credutil.FingerprintToken(token),
		EmailVerified:         owner.EmailVerified,
		CreatedAt:             now,
		UpdatedAt:             now,
	})
	if err != nil {
		log.Error("failed to upsert enrollment",
			slog.String("node_id", nodeID), slog.Any("error", err))
		return domain.NodeEnrollment{}, "", err
	}

	log.Info("node registered",
		slog.String("node_id", nodeID),
		slog.String("node_kind", string(kind)),
		slog.String("owner_user_id", owner.ID),
		slog.Bool("active", enrollment.Active),
	)
	return enrollment, token, nil
}

// SetApproval grants or revokes admin approval. Active is recomputed
// atomically against the enrollment's stored email verification.
func (s *EnrollmentService) SetApproval(ctx context.Context, nodeID string, approved bool) (domain.NodeEnrollment, error) {
	log := slogx.FromContext(ctx)

	enrollment, err := s.Store.NodeEnrollments().SetApproval(ctx, nodeID, approved, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NodeEnrollment{}, ErrNodeNotFound
		}
		log.Error("failed to set node approval",
			slog.String("node_id", nodeID), slog.Any("error", err))
		return domain.NodeEnrollment{}, err
	}

	log.Info("node approval updated",
		slog.String("node_id", nodeID),
		slog.Bool("approved", approved),
		slog.Bool("active", enrollment.Active),
	)
	return enrollment, nil
}

// TouchValidation records a liveness ping from the node, authenticated by
// its registration token. Nil patch fields keep their stored values.
func (s *EnrollmentService) TouchValidation(ctx context.Context, nodeID, rawToken string, patch domain.ValidationPatch) error {
	log := slogx.FromContext(ctx)

	enrollment, err := s.Store.NodeEnrollments().GetEnrollment(ctx, nodeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNodeNotFound
		}
		return err
	}
	if !credutil.SecureCompare(credutil.FingerprintToken(rawToken), enrollment.RegistrationTokenHash) {
		log.Warn("validation ping with bad registration token",
			slog.String("node_id", nodeID))
		return ErrBadNodeCredential
	}

	if err := s.Store.NodeEnrollments().TouchValidation(ctx, nodeID, patch, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNodeNotFound
		}
		return err
	}
	return nil
}

// GetNode returns one enrollment.
func (s *EnrollmentService) GetNode(ctx context.Context, nodeID string) (domain.NodeEnrollment, error) {
	enrollment, err := s.Store.NodeEnrollments().GetEnrollment(ctx, nodeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.NodeEnrollment{}, ErrNodeNotFound
		}
		return domain.NodeEnrollment{}, err
	}
	return enrollment, nil
}

// ListOwnerNodes returns every enrollment owned by the user, newest first.
func (s *EnrollmentService) ListOwnerNodes(ctx context.Context, ownerUserID string) ([]domain.NodeEnrollment, error) {
	return s.Store.NodeEnrollments().ListOwnerEnrollments(ctx, ownerUserID)
}

// MintNodeToken signs a short-lived identity token for an active node. A
// node that is unapproved, or whose owner has not verified their email, is
// refused regardless of the credential it presents.
func (s *EnrollmentService) MintNodeToken(ctx context.Context, nodeID, rawToken string) (string, error) {
	log := slogx.FromContext(ctx)

	if s.Minter == nil {
		return "", nodetoken.ErrNoSigningKey
	}

	enrollment, err := s.Store.NodeEnrollments().GetEnrollment(ctx, nodeID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNodeNotFound
		}
		return "", err
	}
	if !credutil.SecureCompare(credutil.FingerprintToken(rawToken), enrollment.RegistrationTokenHash) {
		log.Warn("token mint with bad registration token",
			slog.String("node_id", nodeID))
		return "", ErrBadNodeCredential
	}
	if !enrollment.Active {
		return "", ErrNodeInactive
	}

	signed, err := s.Minter.Mint(enrollment.NodeID, string(enrollment.Kind), enrollment.OwnerUserID)
	if err != nil {
		log.Error("failed to mint node token",
			slog.String("node_id", nodeID), slog.Any("error", err))
		return "", err
	}
	return signed, nil
}
