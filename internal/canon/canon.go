// Package canon normalizes article URLs and titles and derives the
// content hash used for cross-run deduplication.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// trackingParams are query parameters stripped from article URLs before
// hashing. Every other parameter is preserved.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_name":     {},
	"mc_cid":       {},
	"mc_eid":       {},
	"gclid":        {},
	"igshid":       {},
}

// CanonicalURL strips tracking parameters and the fragment from a raw
// article URL, lowercases the host, and returns the canonical URL along
// with the port-free hostname used as the item's source. Relative or
// unparseable URLs return an error and the item is dropped.
func CanonicalURL(raw string) (canonical, host string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("url %q missing scheme or host", raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		q := u.Query()
		for param := range q {
			if _, drop := trackingParams[param]; drop {
				q.Del(param)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), u.Hostname(), nil
}

// NormalizeTitle lowercases a title and collapses every run of
// whitespace or Unicode punctuation into a single space, with no
// leading or trailing separator left over.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	pending := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsSpace(r) || unicode.IsPunct(r) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DateOnly renders a published timestamp as UTC YYYY-MM-DD. A nil or
// zero timestamp yields the empty string; the full timestamp is kept
// elsewhere for ranking.
func DateOnly(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// ContentHash derives the hex SHA-256 dedupe hash from the normalized
// title, canonical URL, publish date, and source host.
func ContentHash(titleNorm, canonicalURL, dateOnly, host string) string {
	sum := sha256.Sum256([]byte(titleNorm + "|" + canonicalURL + "|" + dateOnly + "|" + host))
	return hex.EncodeToString(sum[:])
}
