package credential

import (
	"fmt"

	"github.com/ashureev/dsa-quest/internal/domain"
)

// WarnRatio is the share of a ceiling at which an approaching-limit notice is raised.
const WarnRatio = 0.9

// NoticeKind classifies a governor notice.
type NoticeKind string

const (
	// NoticeApproaching means the credential has used at least WarnRatio of its ceiling.
	NoticeApproaching NoticeKind = "approaching_limit"
	// NoticeExhausted means the credential reached its ceiling and will be skipped.
	NoticeExhausted NoticeKind = "limit_reached"
)

// Notice is a non-fatal usage warning surfaced to the learner.
type Notice struct {
	Role    domain.Role `json:"role"`
	Kind    NoticeKind  `json:"kind"`
	Used    int         `json:"used"`
	Ceiling int         `json:"ceiling"`
	Message string      `json:"message"`
}

// CheckAndWarn compares today's usage with each usable credential's ceiling.
// It never mutates the ledger.
func CheckAndWarn(v View) []Notice {
	candidates := v.Candidates()
	var notices []Notice
	for i, slot := range candidates {
		ceiling, bounded := v.Ceiling(slot.Role)
		if !bounded {
			continue
		}
		used := v.UsageToday(slot.Role)
		hasFallback := i < len(candidates)-1

		switch {
		case used >= ceiling:
			msg := fmt.Sprintf("The %s key reached its daily limit of %d requests.", slot.Role, ceiling)
			if hasFallback {
				msg += fmt.Sprintf(" Falling back to the %s key.", candidates[i+1].Role)
			} else {
				msg += " No fallback key is available."
			}
			notices = append(notices, Notice{Role: slot.Role, Kind: NoticeExhausted, Used: used, Ceiling: ceiling, Message: msg})
		case used > 0 && float64(used) >= float64(ceiling)*WarnRatio:
			notices = append(notices, Notice{
				Role:    slot.Role,
				Kind:    NoticeApproaching,
				Used:    used,
				Ceiling: ceiling,
				Message: fmt.Sprintf("You have used %d of your %d daily requests for the %s key.", used, ceiling, slot.Role),
			})
		}
	}
	return notices
}

// Exhausted reports whether role is at or past its daily ceiling.
func Exhausted(v View, role domain.Role) bool {
	ceiling, bounded := v.Ceiling(role)
	if !bounded {
		return false
	}
	return v.UsageToday(role) >= ceiling
}
