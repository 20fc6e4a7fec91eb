// Package security redacts camera credentials from anything that might be
// logged or persisted, and encrypts them at rest when config is stored.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

var rtspCredsRegex = regexp.MustCompile(`(?i)^(rtsp|rtsps)://([^@]+)@`)

// SanitizeRTSPURL strips userinfo and password-like query parameters from an
// RTSP URL so it is safe to log or embed in a JSON sidecar.
func SanitizeRTSPURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rtspCredsRegex.ReplaceAllString(rawURL, "$1://")
	}

	u.User = nil

	q := u.Query()
	for k := range q {
		kl := strings.ToLower(k)
		if strings.Contains(kl, "token") || strings.Contains(kl, "pass") || strings.Contains(kl, "auth") || strings.Contains(kl, "secret") {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// RedactMap returns a copy of m with password/token/secret-looking values
// replaced, for safe inclusion in log lines or JSON sidecars.
func RedactMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		kl := strings.ToLower(k)
		if strings.Contains(kl, "password") || strings.Contains(kl, "token") || strings.Contains(kl, "secret") {
			out[k] = "[REDACTED]"
		} else {
			out[k] = v
		}
	}
	return out
}

// HashCredential returns a short, irreversible fingerprint of a credential
// pair, useful for correlating log lines without revealing the secret.
func HashCredential(username, password string) string {
	h := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(h[:4]) + "..."
}

// InjectCredentials rebuilds a connectable RTSP URL from a sanitized URL and
// a separately-stored username/password, mirroring how config loads
// credentials out of band from the URL itself.
func InjectCredentials(sanitizedURL, username, password string) string {
	if username == "" {
		return sanitizedURL
	}
	u, err := url.Parse(sanitizedURL)
	if err != nil {
		return sanitizedURL
	}
	u.User = url.UserPassword(username, password)
	return u.String()
}
