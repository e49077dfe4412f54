package domain

import (
	"time"

	"github.com/samber/lo"
)

// Identity is the verified principal extracted from a token.
// Built once by the gatekeeper and never mutated afterwards.
type Identity struct {
	Subject     UserID
	Authorities []string
	Claims      map[string]any
	ExpiresAt   time.Time
}

func (i Identity) HasAuthority(authority string) bool {
	return lo.Contains(i.Authorities, authority)
}

func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}
