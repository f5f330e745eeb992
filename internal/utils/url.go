package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURLs returns every http(s) URL occurrence in content, in order.
func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

// Domain extracts the normalized (lowercased, punycoded) host of a raw URL.
// IDN homoglyph hosts compare equal to their ASCII form after this.
func Domain(raw string) (string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(parsed.Hostname())
	if ascii, err := idna.ToASCII(host); err == nil {
		host = ascii
	}
	return host, nil
}

// DomainMatch checks a domain against per-guild allow and block lists,
// including parent-domain matches (sub.example.com matches example.com).
func DomainMatch(domain string, allowlist, blocklist map[string]struct{}) (allowed bool, blocked bool) {
	domain = strings.ToLower(domain)
	for candidate := domain; candidate != ""; {
		if _, ok := blocklist[candidate]; ok {
			return false, true
		}
		if _, ok := allowlist[candidate]; ok {
			return true, false
		}
		dot := strings.IndexByte(candidate, '.')
		if dot < 0 {
			break
		}
		candidate = candidate[dot+1:]
	}
	return false, false
}
