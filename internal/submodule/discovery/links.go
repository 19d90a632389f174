package discovery

import (
	"net/url"
	"strings"
)

// Link-level filters shared by the navigation and seed-expansion modules.

var skippedPathPrefixes = []string{
	"/login", "/signin", "/sign-in", "/logout", "/register", "/signup",
	"/admin", "/wp-admin", "/api/", "/cdn-cgi/",
}

var skippedExtensions = map[string]struct{}{
	".css": {}, ".js": {}, ".json": {}, ".xml": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".mp4": {}, ".mp3": {}, ".avi": {}, ".mov": {},
	".zip": {}, ".gz": {}, ".tar": {}, ".rar": {},
	".exe": {}, ".dmg": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
}

// normalizeWebsite turns a bare domain into a fetchable homepage URL.
func normalizeWebsite(website string) (*url.URL, error) {
	trimmed := strings.TrimSpace(website)
	if trimmed == "" {
		return nil, errEmptyWebsite
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, errEmptyWebsite
	}
	return u, nil
}

// sameDomain reports whether host belongs to the base domain, tolerating
// subdomains on either side (www.acme.com vs acme.com vs blog.acme.com).
func sameDomain(host, baseHost string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	baseHost = strings.ToLower(strings.TrimPrefix(baseHost, "www."))
	if host == baseHost {
		return true
	}
	return strings.HasSuffix(host, "."+baseHost) || strings.HasSuffix(baseHost, "."+host)
}

// resolveLink resolves href against base and applies the shared discard
// rules. Returns "" when the link should be skipped.
func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	if strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	if !sameDomain(resolved.Host, base.Host) {
		return ""
	}

	lowerPath := strings.ToLower(resolved.Path)
	for _, prefix := range skippedPathPrefixes {
		if strings.HasPrefix(lowerPath, prefix) {
			return ""
		}
	}
	if dot := strings.LastIndex(lowerPath, "."); dot >= 0 {
		if _, skip := skippedExtensions[lowerPath[dot:]]; skip {
			return ""
		}
	}

	resolved.Fragment = ""
	return resolved.String()
}
