// ABOUTME: Maps user identities to priority levels from the configured creator and admin set
// ABOUTME: Stateless and total: unknown identities are always standard

package priority

import "strings"

// Level is a user's priority. Higher values outrank lower ones.
type Level int

const (
	// Standard is the level of every identity not otherwise configured.
	Standard Level = iota
	// Admin is granted to members of the configured admin set.
	Admin
	// Creator is granted to the single configured creator identity.
	Creator
)

// String returns the lowercase name of the level.
func (l Level) String() string {
	switch l {
	case Creator:
		return "creator"
	case Admin:
		return "admin"
	default:
		return "standard"
	}
}

// Privileged reports whether the level may force-stop other users' work.
func (l Level) Privileged() bool {
	return l > Standard
}

// Policy resolves user IDs to levels.
type Policy struct {
	creator string
	admins  map[string]struct{}
}

// NewPolicy creates a Policy. Blank IDs are ignored.
func NewPolicy(creatorID string, adminIDs []string) *Policy {
	p := &Policy{
		creator: strings.TrimSpace(creatorID),
		admins:  make(map[string]struct{}, len(adminIDs)),
	}
	for _, id := range adminIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			p.admins[id] = struct{}{}
		}
	}
	return p
}

// Rank returns the level for userID. The creator wins over admin membership.
func (p *Policy) Rank(userID string) Level {
	if userID == "" {
		return Standard
	}
	if p.creator != "" && userID == p.creator {
		return Creator
	}
	if _, ok := p.admins[userID]; ok {
		return Admin
	}
	return Standard
}

// Outranks reports whether caller has a strictly higher level than target.
func (p *Policy) Outranks(caller, target string) bool {
	return p.Rank(caller) > p.Rank(target)
}
