package domain

import (
	"strings"
)

// Role identifies which credential slot served or should serve a request.
type Role string

const (
	// RolePrimary is the first credential tried for every request.
	RolePrimary Role = "primary"
	// RoleSecondary is the fallback credential.
	RoleSecondary Role = "secondary"
)

// Roles lists the credential roles in failover order.
var Roles = []Role{RolePrimary, RoleSecondary}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePrimary || r == RoleSecondary
}

// CredentialSlot is a user-supplied API secret and its optional daily request ceiling.
// A DailyCeiling of zero or less means the slot is unbounded.
type CredentialSlot struct {
	Role         Role   `json:"role"`
	Secret       string `json:"secret"`
	DailyCeiling int    `json:"dailyCeiling,omitempty"`
}

// Usable returns true if the slot carries a non-blank secret.
func (s CredentialSlot) Usable() bool {
	return strings.TrimSpace(s.Secret) != ""
}

// Bounded returns true if the slot has a daily request ceiling.
func (s CredentialSlot) Bounded() bool {
	return s.DailyCeiling > 0
}

// CredentialSettings is the persisted credential configuration.
// It is replaced wholesale whenever the learner saves settings.
type CredentialSettings struct {
	Primary   CredentialSlot `json:"primary"`
	Secondary CredentialSlot `json:"secondary"`
}

// Slot returns the slot for the given role.
func (c CredentialSettings) Slot(role Role) CredentialSlot {
	if role == RoleSecondary {
		return c.Secondary
	}
	return c.Primary
}

// Normalize stamps roles onto both slots and trims secrets.
func (c CredentialSettings) Normalize() CredentialSettings {
	c.Primary.Role = RolePrimary
	c.Primary.Secret = strings.TrimSpace(c.Primary.Secret)
	c.Secondary.Role = RoleSecondary
	c.Secondary.Secret = strings.TrimSpace(c.Secondary.Secret)
	return c
}

// Masked returns a copy safe to show back to the learner.
func (c CredentialSettings) Masked() CredentialSettings {
	c.Primary.Secret = maskSecret(c.Primary.Secret)
	c.Secondary.Secret = maskSecret(c.Secondary.Secret)
	return c
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

// DateLayout is the calendar-day format used by usage counters.
const DateLayout = "2006-01-02"

// UsageCounter is one role's request count for a calendar day.
type UsageCounter struct {
	Role  Role   `json:"role"`
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// On returns the count observed on day, which is zero for any other day.
func (u UsageCounter) On(day string) int {
	if u.Date != day {
		return 0
	}
	return u.Count
}

// Increment records one request on day, restarting the count on a new day.
func (u UsageCounter) Increment(day string) UsageCounter {
	if u.Date != day {
		return UsageCounter{Role: u.Role, Date: day, Count: 1}
	}
	u.Count++
	return u
}

// Merge returns the later of u and o: the newer day wins, and on the same day the
// higher count wins. A counter merged this way never goes back within a day.
func (u UsageCounter) Merge(o UsageCounter) UsageCounter {
	if o.Date > u.Date || (o.Date == u.Date && o.Count > u.Count) {
		return o
	}
	return u
}

// UsageCounters holds one counter per role.
type UsageCounters map[Role]UsageCounter
