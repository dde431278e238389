// Package netutil normalizes the network addresses benchd connects to:
// instrument endpoints from the station inventory and the one outbound
// webhook used for notifications.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ErrEmptyAddress indicates a blank instrument address.
var ErrEmptyAddress = errors.New("empty address")

// NormalizeHost validates and canonicalizes a hostname for comparison
// and dialing. Lab networks mix IP literals, mDNS names and IDN
// hostnames; everything comes out lowercase ASCII.
func NormalizeHost(raw string) (string, error) {
	host := strings.TrimSpace(raw)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if strings.Contains(host, "://") {
		return "", fmt.Errorf("host must not include scheme: %s", raw)
	}
	if strings.Contains(host, "/") {
		return "", fmt.Errorf("host must not include path: %s", raw)
	}
	if strings.Contains(host, "@") {
		return "", fmt.Errorf("host must not include userinfo: %s", raw)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return "", fmt.Errorf("host must not include port: %s", raw)
	}
	if strings.Contains(host, "%") {
		return "", fmt.Errorf("host must not include zone: %s", raw)
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", raw, err)
	}
	return strings.ToLower(ascii), nil
}

// SplitInstrumentAddress parses an instrument address of the form
// "host", "host:port" or "[ipv6]:port" into a normalized host and a
// port. A missing port falls back to defaultPort.
func SplitInstrumentAddress(raw string, defaultPort int) (string, int, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", 0, ErrEmptyAddress
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port present; treat the whole string as a host.
		host, portStr = addr, ""
	}

	normalized, err := NormalizeHost(host)
	if err != nil {
		return "", 0, fmt.Errorf("instrument address %q: %w", raw, err)
	}

	if portStr == "" {
		if defaultPort <= 0 || defaultPort > 65535 {
			return "", 0, fmt.Errorf("instrument address %q: no port and no usable default", raw)
		}
		return normalized, defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("instrument address %q: invalid port %q", raw, portStr)
	}
	if port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("instrument address %q: port %d out of range", raw, port)
	}

	return normalized, port, nil
}

// JoinHostPort formats a normalized host and port for dialing,
// bracketing IPv6 literals.
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ValidateWebhookURL checks that a notification webhook is a direct
// HTTPS URL without credentials or fragments and returns it with the
// host normalized.
func ValidateWebhookURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("webhook url empty")
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %w", err)
	}
	if !strings.EqualFold(u.Scheme, "https") {
		return "", fmt.Errorf("webhook url must use https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("webhook url missing host")
	}
	if u.User != nil {
		return "", fmt.Errorf("webhook url must not include credentials")
	}
	if u.Fragment != "" {
		return "", fmt.Errorf("webhook url must not include a fragment")
	}

	host, err := NormalizeHost(u.Hostname())
	if err != nil {
		return "", err
	}
	if p := u.Port(); p != "" {
		u.Host = net.JoinHostPort(host, p)
	} else {
		u.Host = host
	}

	return u.String(), nil
}

// SanitizeURL strips user info and query parameters for safe logging.
func SanitizeURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	parsedURL.RawQuery = ""
	return parsedURL.String()
}
