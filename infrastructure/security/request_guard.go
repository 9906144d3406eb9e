package security

import (
	"fmt"
	"net/url"
	"strings"

	"selfheal/domain/entities"
	"selfheal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// DefaultMaxCodeBytes bounds the size of a submitted script
const DefaultMaxCodeBytes = 64 * 1024

// RequestGuard rejects execute requests that must not reach the browser
type RequestGuard struct {
	logger       *logrus.Logger
	maxCodeBytes int
	allowedHosts []string
}

// NewRequestGuard - creates a guard; an empty allowedHosts list allows every host
func NewRequestGuard(logger *logrus.Logger, maxCodeBytes int, allowedHosts []string) *RequestGuard {
	if maxCodeBytes <= 0 {
		maxCodeBytes = DefaultMaxCodeBytes
	}
	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return &RequestGuard{
		logger:       logger,
		maxCodeBytes: maxCodeBytes,
		allowedHosts: hosts,
	}
}

// ValidateExecute returns an error wrapping entities.ErrInvalidRequest when
// the request is empty, oversized or targets a URL the browser must not open
func (g *RequestGuard) ValidateExecute(req entities.ExecuteRequest) error {
	if strings.TrimSpace(req.Code) == "" {
		return invalid("code is required")
	}
	if len(req.Code) > g.maxCodeBytes {
		return invalid("code exceeds %d bytes", g.maxCodeBytes)
	}

	raw := strings.TrimSpace(req.URL)
	if raw == "" {
		return invalid("url is required")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return invalid("malformed url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return invalid("url has no host")
	}

	if !g.hostAllowed(u.Hostname()) {
		g.logger.WithField("host", u.Hostname()).Warn("Blocked execution against a host outside the allow list")
		return invalid("host %q is not allowed", u.Hostname())
	}
	return nil
}

// hostAllowed matches the host itself and its subdomains
func (g *RequestGuard) hostAllowed(host string) bool {
	if len(g.allowedHosts) == 0 {
		return true
	}
	host = strings.ToLower(host)
	for _, allowed := range g.allowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", entities.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// Ensure RequestGuard implements RequestGuard interface
var _ interfaces.RequestGuard = (*RequestGuard)(nil)
