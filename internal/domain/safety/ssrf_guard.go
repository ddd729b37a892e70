package safety

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// SSRFGuard blocks a tool call whose "url" argument points at an internal or
// cloud-metadata endpoint; Envelope.CheckToolCall applies it to each tool call
// the tool bridge dispatches. Scheduler webhook actions and MCP transport
// endpoints do not pass through it.
type SSRFGuard struct {
	extraDeniedHosts []string
}

// NewSSRFGuard builds a guard with the fixed internal-network denylist plus
// any operator-configured additional denied hosts.
func NewSSRFGuard(extraDeniedHosts []string) *SSRFGuard {
	return &SSRFGuard{extraDeniedHosts: extraDeniedHosts}
}

// deniedExactHosts blocks loopback and cloud metadata endpoints by name.
var deniedExactHosts = map[string]bool{
	"localhost":            true,
	"169.254.169.254":      true,
	"metadata.google.internal": true,
}

// IsURLBlocked returns a non-empty reason string if the URL must not be
// fetched, or an empty string if the URL is safe to request. Only http and
// https schemes are ever allowed.
func (g *SSRFGuard) IsURLBlocked(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Sprintf("unparseable url: %v", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Sprintf("scheme %q is not allowed", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "url has no host"
	}
	hostLower := strings.ToLower(host)

	if deniedExactHosts[hostLower] {
		return fmt.Sprintf("host %q is denied", host)
	}
	for _, denied := range g.extraDeniedHosts {
		if strings.EqualFold(denied, hostLower) {
			return fmt.Sprintf("host %q is denied by configuration", host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if reason := blockedIPReason(ip); reason != "" {
			return reason
		}
	}

	return ""
}

// blockedIPReason checks loopback, link-local and RFC1918 ranges, with the
// explicit 172.15.0.0/16 and 172.32.0.0/16 ranges allowed through even
// though they sit adjacent to the blocked 172.16.0.0/12 range.
func blockedIPReason(ip net.IP) string {
	if ip.IsLoopback() {
		return "loopback address is denied"
	}
	if ip.IsUnspecified() {
		return "unspecified address is denied"
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return "link-local address is denied"
	}

	v4 := ip.To4()
	if v4 == nil {
		return ""
	}

	switch {
	case v4[0] == 10:
		return "RFC1918 10.0.0.0/8 address is denied"
	case v4[0] == 192 && v4[1] == 168:
		return "RFC1918 192.168.0.0/16 address is denied"
	case v4[0] == 172 && v4[1] == 15:
		return ""
	case v4[0] == 172 && v4[1] == 32:
		return ""
	case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
		return "RFC1918 172.16.0.0/12 address is denied"
	}

	return ""
}
