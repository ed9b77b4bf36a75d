package feedscan

import "github.com/zombar/feedscan/models"

// isVisible reports whether the bounding box overlaps the viewport on both
// axes. Boxes with zero or negative width or height are never visible,
// regardless of position. Called for every candidate on every pass, so it
// must stay allocation-free.
func isVisible(r models.Rect, vp models.Viewport) bool {
	if r.W <= 0 || r.H <= 0 {
		return false
	}
	return r.Y < vp.Height &&
		r.Y+r.H > 0 &&
		r.X < vp.Width &&
		r.X+r.W > 0
}
