package verify

import (
	"fmt"
	"net/url"
	"strings"
)

// renderSuffixSegments is the number of trailing path segments the image
// server appends to an identifier: region/size/rotation/quality.format.
const renderSuffixSegments = 4

// Rewriter turns served-image URIs into canonical storage URIs. All three
// fields come from configuration; the rewrite itself is pure string work.
type Rewriter struct {
	// LegacyPrefix is the identifier prefix the image server uses for
	// article assets, e.g. "lax" in "lax:12345/...".
	LegacyPrefix string
	// CanonicalPrefix is the path prefix originals live under, e.g. "articles".
	CanonicalPrefix string
	// StorageOrigin is the scheme+host of the canonical storage service.
	StorageOrigin string
}

// OriginalURL derives the canonical storage URL for a served image: the
// render suffix is stripped, the legacy identifier prefix is rewritten to
// the canonical article path, and the result is anchored on the storage
// origin.
func (r Rewriter) OriginalURL(served string) (string, error) {
	u, err := url.Parse(served)
	if err != nil {
		return "", fmt.Errorf("parse served url: %w", err)
	}
	segs := pathSegments(u)
	if len(segs) == 0 {
		return "", fmt.Errorf("served url %q has no path", served)
	}
	if len(segs) > renderSuffixSegments {
		segs = segs[:len(segs)-renderSuffixSegments]
	}
	if rest, ok := strings.CutPrefix(segs[0], r.LegacyPrefix+":"); ok && rest != "" {
		segs[0] = r.CanonicalPrefix + "/" + rest
	}
	origin := strings.TrimRight(r.StorageOrigin, "/")
	return origin + "/" + strings.Join(segs, "/"), nil
}

// ArticleID extracts the article identifier embedded in a served or
// canonical image URL. It returns "" when no identifier is present, which
// single-image mode tolerates.
func (r Rewriter) ArticleID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segs := pathSegments(u)
	if len(segs) == 0 {
		return ""
	}
	if rest, ok := strings.CutPrefix(segs[0], r.LegacyPrefix+":"); ok {
		return rest
	}
	if segs[0] == r.CanonicalPrefix && len(segs) > 1 {
		return segs[1]
	}
	return ""
}

// pathSegments returns the decoded, non-empty path segments of u. Encoded
// slashes in the identifier come back as real segments, which is what the
// cache mirroring wants.
func pathSegments(u *url.URL) []string {
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
