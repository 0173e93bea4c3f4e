package utils

import (
	"net"
	"net/url"
	"strings"

	"leilao-insights/models"
)

// itemQueryParams lists, per host, the query parameters that identify a
// listing and therefore survive normalization.
var itemQueryParams = map[string][]string{
	"venda-imoveis.caixa.gov.br": {"hdnimovel"},
}

// ValidateURL checks that raw is an absolute http(s) URL with a host and a
// path beyond the site root.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &models.ValidationError{URL: raw, Reason: "empty url"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &models.ValidationError{URL: raw, Reason: err.Error()}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, &models.ValidationError{URL: raw, Reason: "scheme must be http or https"}
	}
	if HostOf(u) == "" {
		return nil, &models.ValidationError{URL: raw, Reason: "missing host"}
	}
	if strings.Trim(u.Path, "/") == "" {
		return nil, &models.ValidationError{URL: raw, Reason: "missing path"}
	}
	return u, nil
}

// HostOf returns the lowercase host of u without port or trailing dot.
func HostOf(u *url.URL) string {
	return CanonicalHost(u.Host)
}

// CanonicalHost lowercases host and strips a port and a trailing dot.
func CanonicalHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// NormalizeURL returns the cache key for a listing URL: lowercase scheme and
// host, default port dropped, no fragment, no trailing slash, and no query
// except item-identifying parameters (sorted). It is idempotent.
func NormalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.TrimSuffix(strings.ToLower(u.Host), ".")
	if h, port, err := net.SplitHostPort(host); err == nil {
		h = strings.TrimSuffix(h, ".")
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = h
			if strings.Contains(h, ":") {
				host = "[" + h + "]"
			}
		} else {
			host = net.JoinHostPort(h, port)
		}
	}

	path := strings.TrimRight(u.EscapedPath(), "/")

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)

	if keep := itemQueryParams[CanonicalHost(host)]; len(keep) > 0 {
		src := u.Query()
		kept := url.Values{}
		for k, vs := range src {
			lk := strings.ToLower(k)
			if strings.HasPrefix(lk, "utm_") {
				continue
			}
			for _, want := range keep {
				if lk == want {
					for _, v := range vs {
						if v != "" {
							kept.Add(want, v)
						}
					}
				}
			}
		}
		if len(kept) > 0 {
			b.WriteString("?")
			b.WriteString(kept.Encode())
		}
	}
	return b.String()
}

// NormalizeRaw validates and normalizes in one step.
func NormalizeRaw(raw string) (string, *url.URL, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return "", nil, err
	}
	key := NormalizeURL(u)
	nu, err := url.Parse(key)
	if err != nil {
		return "", nil, &models.ValidationError{URL: raw, Reason: err.Error()}
	}
	return key, nu, nil
}
