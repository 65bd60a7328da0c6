package security

import (
	"net/url"
	"strings"
)

// OriginPolicy decides which browser origins may call the API or open the
// realtime socket. Origins compare on lower-cased scheme and host.
type OriginPolicy struct {
	any     bool
	allowed map[string]bool
}

// ParseOriginPolicy reads a comma separated origin list. An empty list or a
// "*" entry allows every origin.
func ParseOriginPolicy(csv string) *OriginPolicy {
	p := &OriginPolicy{allowed: map[string]bool{}}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case part == "*":
			p.any = true
		default:
			if n, ok := normalizeOrigin(part); ok {
				p.allowed[n] = true
			}
		}
	}
	if len(p.allowed) == 0 {
		p.any = true
	}
	return p
}

// AllowsAny reports whether the policy is a wildcard.
func (p *OriginPolicy) AllowsAny() bool { return p.any }

// Allows reports whether origin is permitted. The empty origin is never
// matched here; callers decide how to treat non-browser requests.
func (p *OriginPolicy) Allows(origin string) bool {
	n, ok := normalizeOrigin(strings.TrimSpace(origin))
	if !ok {
		return false
	}
	return p.any || p.allowed[n]
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}
