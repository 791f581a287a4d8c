package engine

import (
	"fmt"
	"strings"

	"github.com/predictbase/marketd/internal/domain"
)

// Resolver decides whether caller may resolve market m.
type Resolver interface {
	CanResolve(m domain.Market, caller domain.Identity) bool
}

// CreatorResolver lets only the market's creator resolve it.
type CreatorResolver struct{}

func (CreatorResolver) CanResolve(m domain.Market, caller domain.Identity) bool {
	return !caller.IsZero() && m.Creator == caller
}

// AdminResolver lets a fixed set of identities resolve any market.
type AdminResolver struct {
	admins map[domain.Identity]struct{}
}

// NewAdminResolver builds an AdminResolver. Empty identities are ignored.
func NewAdminResolver(admins ...domain.Identity) AdminResolver {
	set := make(map[domain.Identity]struct{}, len(admins))
	for _, a := range admins {
		if !a.IsZero() {
			set[a] = struct{}{}
		}
	}
	return AdminResolver{admins: set}
}

func (r AdminResolver) CanResolve(_ domain.Market, caller domain.Identity) bool {
	_, ok := r.admins[caller]
	return ok
}

// AnyResolver allows the caller when any of its policies does.
type AnyResolver []Resolver

func (rs AnyResolver) CanResolve(m domain.Market, caller domain.Identity) bool {
	for _, r := range rs {
		if r.CanResolve(m, caller) {
			return true
		}
	}
	return false
}

// ResolverFor maps a policy name to a Resolver.
// Valid names are "creator", "admin" and "creator_or_admin".
func ResolverFor(policy string, admins []domain.Identity) (Resolver, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", "creator":
		return CreatorResolver{}, nil
	case "admin":
		return NewAdminResolver(admins...), nil
	case "creator_or_admin":
		return AnyResolver{CreatorResolver{}, NewAdminResolver(admins...)}, nil
	default:
		return nil, fmt.Errorf("engine: unknown resolver policy %q", policy)
	}
}
