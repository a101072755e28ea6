package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/edgecoder/identity/internal/identity/domain"
	"github.com/edgecoder/identity/internal/identity/store"
	"github.com/go-webauthn/webauthn/protocol"
	sqlite3 "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

// NewStore opens the identity database. SQLite has a single writer, so the
// pool is pinned to one connection; statements from concurrent callers
// serialize there instead of surfacing SQLITE_BUSY.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Users() store.Users                  { return &usersRepo{db: s.db} }
func (s *Store) Sessions() store.Sessions            { return &sessionsRepo{db: s.db} }
func (s *Store) EmailVerificationTokens() store.EmailVerificationTokens {
	return &emailTokensRepo{db: s.db}
}
func (s *Store) OAuthLinks() store.OAuthLinks               { return &oauthLinksRepo{db: s.db} }
func (s *Store) OAuthStates() store.OAuthStates             { return &oauthStatesRepo{db: s.db} }
func (s *Store) NodeEnrollments() store.NodeEnrollments     { return &nodeEnrollmentsRepo{db: s.db} }
func (s *Store) WalletOnboardings() store.WalletOnboardings { return &walletsRepo{db: s.db} }
func (s *Store) PasskeyChallenges() store.PasskeyChallenges {
	return &passkeyChallengesRepo{db: s.db}
}
func (s *Store) PasskeyCredentials() store.PasskeyCredentials {
	return &passkeyCredentialsRepo{db: s.db}
}

var _ store.Store = (*Store)(nil)

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// SQLite extended result codes for unique/primary-key violations.
const (
	sqliteConstraintUnique     = 2067
	sqliteConstraintPrimaryKey = 1555
)

func mapConflict(err error) error {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqliteConstraintUnique, sqliteConstraintPrimaryKey:
			return store.ErrAlreadyExists
		}
	}
	return err
}

// Timestamps persist as epoch milliseconds; domain structs use time.Time.

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toMillisNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromMillisNull(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	v := fromMillis(ms.Int64)
	return &v
}

func mapStringNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func mapNullString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func mapNullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func mapOptionalBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func mapNullBoolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	v := nb.Bool
	return &v
}

// Transports persist as a space-joined list in canonical order.

func joinTransports(ts []protocol.AuthenticatorTransport) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, " ")
}

func splitTransports(s string) []protocol.AuthenticatorTransport {
	return domain.NormalizeTransports(strings.Fields(s))
}
