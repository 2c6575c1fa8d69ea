package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const maxGuestTokenLength = 128

// Identity is exactly one of an account id or a guest id.
type Identity struct {
	AccountID string
	GuestID   string
}

func AccountIdentity(id string) Identity { return Identity{AccountID: id} }
func GuestIdentity(id string) Identity   { return Identity{GuestID: id} }

func (i Identity) IsGuest() bool { return i.GuestID != "" }

func (i Identity) OwnerID() string {
	if i.IsGuest() {
		return i.GuestID
	}
	return i.AccountID
}

func (i Identity) Kind() string {
	if i.IsGuest() {
		return "guest"
	}
	return "account"
}

// Evidence is what a request carries to identify its caller.
type Evidence struct {
	SessionToken string
	GuestToken   string
}

type IdentityResolver struct {
	sessions SessionVerifier
	accounts AccountLookup
	log      *zap.Logger
}

func NewIdentityResolver(sessions SessionVerifier, accounts AccountLookup, log *zap.Logger) *IdentityResolver {
	return &IdentityResolver{sessions: sessions, accounts: accounts, log: log.Named("identity")}
}

// Resolve never writes. A session credential that fails verification or maps to no
// account is Unauthorized even when a guest token is also present.
func (r *IdentityResolver) Resolve(ctx context.Context, ev Evidence) (Identity, error) {
	session := strings.TrimSpace(ev.SessionToken)
	guest := strings.TrimSpace(ev.GuestToken)

	if session != "" {
		email, err := r.sessions.Verify(ctx, session)
		if err != nil {
			r.log.Debug("session rejected", zap.Error(err))
			return Identity{}, fmt.Errorf("%w: invalid session", ErrUnauthorized)
		}
		email = strings.ToLower(email)
		id, err := r.accounts.FindIDByEmail(ctx, email)
		if err != nil {
			return Identity{}, fmt.Errorf("resolve account: %w", err)
		}
		if id == "" {
			r.log.Info("session for unknown account", zap.String("email_hash", emailHash(email)))
			return Identity{}, fmt.Errorf("%w: no account for session", ErrUnauthorized)
		}
		return AccountIdentity(id), nil
	}

	if guest != "" {
		if len(guest) > maxGuestTokenLength {
			return Identity{}, fmt.Errorf("%w: malformed guest token", ErrUnauthorized)
		}
		return GuestIdentity(guest), nil
	}

	return Identity{}, fmt.Errorf("%w: no credentials", ErrUnauthorized)
}

// emailHash identifies an address in logs without writing it out.
func emailHash(email string) string {
	sum := sha256.Sum256([]byte(email))
	return hex.EncodeToString(sum[:6])
}
