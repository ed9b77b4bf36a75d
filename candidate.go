package feedscan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/zombar/feedscan/models"
)

// candidate is a live reference to one media element inside a snapshot.
// Ephemeral; rebuilt from scratch on every scan pass.
type candidate struct {
	key        string
	captureID  string
	rect       models.Rect
	intrinsicW int
	intrinsicH int
	poster     string
	page       string
	sel        *goquery.Selection
}

// enumerateCandidates parses the snapshot HTML and collects every video
// element as a candidate. Malformed or missing layout attributes never fail
// enumeration: a candidate with no usable rect simply fails the visibility
// check later.
func enumerateCandidates(snap *models.Snapshot) ([]candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot HTML: %w", err)
	}

	var cands []candidate
	doc.Find("video").Each(func(i int, sel *goquery.Selection) {
		c := candidate{
			key:       identityKey(sel),
			captureID: sel.AttrOr("data-capture-id", ""),
			rect:      parseRect(sel.AttrOr("data-rect", "")),
			poster:    strings.TrimSpace(sel.AttrOr("poster", "")),
			page:      snap.Page,
			sel:       sel,
		}
		c.intrinsicW = parseDim(sel.AttrOr("data-video-width", ""))
		c.intrinsicH = parseDim(sel.AttrOr("data-video-height", ""))
		cands = append(cands, c)
	})

	return cands, nil
}

// parseRect parses an "x,y,w,h" attribute value. Anything malformed yields a
// zero rect, which is treated as not visible.
func parseRect(v string) models.Rect {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return models.Rect{}
	}
	nums := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.Rect{}
		}
		nums[i] = f
	}
	return models.Rect{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]}
}

func parseDim(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
