// Package urlcheck validates ticket URLs against the approved domain list.
package urlcheck

import (
	"fmt"
	"net/url"
	"strings"
)

// Findings groups URL problems by severity. Any Reject entry is terminal
// for a banner request.
type Findings struct {
	Reject    []string
	NeedsInfo []string
}

// Rejected reports whether any URL failed the domain check.
func (f Findings) Rejected() bool { return len(f.Reject) > 0 }

// All returns reject findings followed by needs-info findings.
func (f Findings) All() []string {
	out := make([]string, 0, len(f.Reject)+len(f.NeedsInfo))
	out = append(out, f.Reject...)
	return append(out, f.NeedsInfo...)
}

// Validator matches URL hosts against approved domains and redirect hints.
type Validator struct {
	approved      []string
	redirectHints []string
}

// New builds a Validator. Domains and hints are compared case-insensitively.
func New(approvedDomains, redirectHints []string) *Validator {
	return &Validator{
		approved:      normalize(approvedDomains),
		redirectHints: normalize(redirectHints),
	}
}

// Check validates each non-blank URL.
func (v *Validator) Check(urls []string) Findings {
	var f Findings
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		host, status := hostOf(raw)
		switch {
		case status == hostForeign, host != "" && !v.isApproved(host):
			f.Reject = append(f.Reject, fmt.Sprintf("Non-approved URL domain: %s", raw))
		case status == hostUnparseable:
			f.NeedsInfo = append(f.NeedsInfo, fmt.Sprintf("URL needs verification: %s", raw))
		case v.looksLikeRedirect(host):
			f.NeedsInfo = append(f.NeedsInfo, fmt.Sprintf("URL might be an external redirect: %s", raw))
		}
	}
	return f
}

type hostStatus int

const (
	hostOK hostStatus = iota
	// hostUnparseable marks an authority net/url cannot read, such as an
	// unclosed IPv6 literal. A host name may still be returned with it.
	hostUnparseable
	// hostForeign marks URLs that can never name an approved host: a
	// non-web scheme (mailto:, javascript:) or an empty host.
	hostForeign
)

// authorityEnd cuts the authority from the path, query or fragment. A
// backslash is included because browsers read it as a path separator.
const authorityEnd = "/?#\\"

// hostOf extracts the lower-cased host without port. Only the authority is
// parsed, so an escape error in the path or query cannot hide the host.
// Scheme-less input such as "logicart.com/sale" is read as https, and
// "//host/path" keeps its host. A dotted scheme ("logicart.com:443/x") is a
// host with a port, not a scheme.
func hostOf(raw string) (string, hostStatus) {
	rest := raw
	if scheme, after, ok := splitScheme(raw); ok {
		if scheme != "http" && scheme != "https" {
			return "", hostForeign
		}
		if !strings.HasPrefix(after, "//") {
			return "", hostForeign
		}
		rest = after
	}
	rest = strings.TrimPrefix(rest, "//")
	if i := strings.IndexAny(rest, authorityEnd); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", hostForeign
	}
	u, err := url.Parse("https://" + rest)
	if err != nil {
		return looseHost(rest), hostUnparseable
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", hostForeign
	}
	return host, hostOK
}

// looseHost reads the host name of an authority net/url rejected, such as
// one with a bad port. It returns "" for IP literals.
func looseHost(authority string) string {
	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		authority = authority[i+1:]
	}
	if strings.HasPrefix(authority, "[") {
		return ""
	}
	if i := strings.IndexByte(authority, ':'); i >= 0 {
		authority = authority[:i]
	}
	return strings.TrimSuffix(strings.ToLower(authority), ".")
}

// splitScheme returns the lower-cased scheme and the text after its colon.
// A candidate scheme containing a dot is a host, so ok is false.
func splitScheme(raw string) (scheme, after string, ok bool) {
	i := strings.IndexByte(raw, ':')
	if i <= 0 {
		return "", "", false
	}
	for k, c := range raw[:i] {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case k > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-'):
		default:
			return "", "", false
		}
	}
	return strings.ToLower(raw[:i]), raw[i+1:], true
}

func (v *Validator) isApproved(host string) bool {
	for _, d := range v.approved {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (v *Validator) looksLikeRedirect(host string) bool {
	for _, d := range v.approved {
		if host == d {
			return false
		}
	}
	for _, hint := range v.redirectHints {
		// Dotted hints are shortener domains and match by label suffix so
		// "t.co" does not fire on every "*.com" host. Bare words match anywhere.
		if strings.Contains(hint, ".") {
			if host == hint || strings.HasSuffix(host, "."+hint) {
				return true
			}
			continue
		}
		if strings.Contains(host, hint) {
			return true
		}
	}
	return false
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
