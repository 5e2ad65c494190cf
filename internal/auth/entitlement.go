package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/qianniu/llmbot/internal/models"
	"github.com/qianniu/llmbot/internal/registry"
	"github.com/qianniu/llmbot/internal/user"
	log "github.com/sirupsen/logrus"
)

// Denial reasons surfaced to clients.
const (
	ReasonStaleCredential  = "credential is stale, log in again"
	ReasonInsufficientRole = "insufficient role for this model"
)

type DecisionKind int

const (
	DecisionAllowed DecisionKind = iota
	DecisionDenied
	DecisionDemoted
)

// Decision is the outcome of an entitlement check. Demoted carries a
// fresh credential minted at the lower tier; the original request must
// not proceed.
type Decision struct {
	Kind   DecisionKind
	Reason string // set when Denied
	Token  string // set when Demoted
}

// Entitlements decides model access for a verified identity, and owns
// the one authorization side effect in the system: demoting a lapsed
// paid membership in place.
type Entitlements struct {
	users  *user.Repo
	issuer *TokenIssuer
}

func NewEntitlements(users *user.Repo, issuer *TokenIssuer) *Entitlements {
	return &Entitlements{users: users, issuer: issuer}
}

// Authorize runs, in order: the version fence, the allow-list check,
// and the membership-expiry check. The expiry check is skipped for
// NORMAL and ADMIN callers and for models whose allow-list already
// admits ROLE_NORMAL (free-for-everyone models don't check expiry).
func (e *Entitlements) Authorize(ctx context.Context, ident Identity, model *registry.Model) (Decision, error) {
	current, err := e.users.TokenVersion(ctx, ident.Email)
	if err != nil {
		return Decision{}, fmt.Errorf("token version lookup for %s: %w", ident.Email, err)
	}
	if ident.TokenVersion != current {
		return Decision{Kind: DecisionDenied, Reason: ReasonStaleCredential}, nil
	}

	if !model.Allows(ident.Role) {
		return Decision{Kind: DecisionDenied, Reason: ReasonInsufficientRole}, nil
	}

	paidTier := ident.Role == "ROLE_MEMBER" || ident.Role == "ROLE_SUPER_MEMBER"
	if !paidTier || model.Allows("ROLE_NORMAL") {
		return Decision{Kind: DecisionAllowed}, nil
	}

	u, err := e.users.GetByEmail(ctx, ident.Email)
	if err != nil {
		return Decision{}, fmt.Errorf("user lookup for %s: %w", ident.Email, err)
	}
	if !u.MembershipLapsed(time.Now()) {
		return Decision{Kind: DecisionAllowed}, nil
	}

	token, err := e.demote(ctx, u)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Kind: DecisionDemoted, Token: token}, nil
}

// demote resets the lapsed user to NORMAL and mints a credential from
// the post-demotion row. Losing the version-fenced write to a
// concurrent request is fine: the row is already demoted, and the
// token minted from the re-read still carries the bumped version.
func (e *Entitlements) demote(ctx context.Context, u *models.User) (string, error) {
	won, err := e.users.DemoteExpired(ctx, u.Email, u.TokenVersion)
	if err != nil {
		return "", fmt.Errorf("demote %s: %w", u.Email, err)
	}
	if !won {
		log.WithField("email", u.Email).Info("membership demotion lost race, reusing current row")
	}

	fresh, err := e.users.GetByEmail(ctx, u.Email)
	if err != nil {
		return "", fmt.Errorf("reload %s after demotion: %w", u.Email, err)
	}

	log.WithFields(log.Fields{
		"email":         u.Email,
		"token_version": fresh.TokenVersion,
	}).Info("membership expired, role reset to NORMAL")

	return e.issuer.Sign(fresh.Email, models.RoleName(fresh.Role), fresh.Name, fresh.TokenVersion)
}
