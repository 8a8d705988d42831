package signature

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// CheckEndpointURL validates a delivery target before any bytes are sent.
// Hardened mode additionally requires https and rejects loopback, private,
// and link-local hosts.
func CheckEndpointURL(raw string, hardened bool) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("signature: endpoint url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("signature: invalid endpoint url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("signature: unsupported endpoint scheme %q", parsed.Scheme)
	}
	if strings.TrimSpace(parsed.Host) == "" {
		return fmt.Errorf("signature: endpoint url host is required")
	}
	if !hardened {
		return nil
	}
	if scheme != "https" {
		return fmt.Errorf("signature: https is required for endpoint %q", raw)
	}
	host := parsed.Hostname()
	if isRestrictedHost(host) {
		return fmt.Errorf("signature: restricted endpoint host %q", host)
	}
	return nil
}

func isRestrictedHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified()
	}
	return false
}
