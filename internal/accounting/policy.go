package accounting

import (
	"fmt"
	"strings"
)

// Policy decides which time sources record. Heartbeats and focus transitions
// can both report the same interval; additive keeps both.
type Policy string

const (
	PolicyAdditive      Policy = "additive"
	PolicyHeartbeatOnly Policy = "heartbeat_only"
	PolicyFocusOnly     Policy = "focus_only"
)

// ParsePolicy accepts a policy name case-insensitively. Empty means additive.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyAdditive, nil
	case PolicyAdditive, PolicyHeartbeatOnly, PolicyFocusOnly:
		return p, nil
	default:
		return "", fmt.Errorf("unknown heartbeat policy %q", s)
	}
}

func (p Policy) recordsFocus() bool {
	return p != PolicyHeartbeatOnly
}

func (p Policy) recordsHeartbeats() bool {
	return p != PolicyFocusOnly
}
