package feedscan

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// identityKey derives the in-flight dedup key for a media element: the live
// playback source mirrored by the snapshot agent, then the static src
// attribute. Elements exposing neither get a random nonce, which means a
// fresh key on every pass; the match store's own dedup still holds for such
// elements, the processing set just cannot gate them across passes.
func identityKey(sel *goquery.Selection) string {
	if v, ok := sel.Attr("data-current-src"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	if v, ok := sel.Attr("src"); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return "nonce-" + uuid.New().String()
}
