package feedscan

import (
	"strings"
	"testing"

	"github.com/zombar/feedscan/models"
)

func TestEnumerateCandidates(t *testing.T) {
	snap := &models.Snapshot{
		Page:     feedPage,
		Viewport: models.Viewport{Width: 1280, Height: 720},
		HTML: `<html><body>
			<video data-capture-id="cap-1" data-current-src="https://cdn.example.com/a.mp4"
				data-rect="10,20,320,560" data-video-width="720" data-video-height="1280"
				poster="https://cdn.example.com/a.jpg"></video>
			<video src="https://cdn.example.com/b.mp4" data-rect="garbage"></video>
			<video></video>
		</body></html>`,
	}

	cands, err := enumerateCandidates(snap)
	if err != nil {
		t.Fatalf("Enumeration failed: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(cands))
	}

	first := cands[0]
	if first.key != "https://cdn.example.com/a.mp4" {
		t.Errorf("Expected live source as identity key, got %s", first.key)
	}
	if first.captureID != "cap-1" {
		t.Errorf("Unexpected capture id: %s", first.captureID)
	}
	if first.rect != (models.Rect{X: 10, Y: 20, W: 320, H: 560}) {
		t.Errorf("Unexpected rect: %+v", first.rect)
	}
	if first.intrinsicW != 720 || first.intrinsicH != 1280 {
		t.Errorf("Unexpected intrinsic dims: %dx%d", first.intrinsicW, first.intrinsicH)
	}
	if first.poster != "https://cdn.example.com/a.jpg" {
		t.Errorf("Unexpected poster: %s", first.poster)
	}
	if first.page != feedPage {
		t.Errorf("Unexpected page: %s", first.page)
	}

	// Static src fallback, malformed rect collapses to zero
	second := cands[1]
	if second.key != "https://cdn.example.com/b.mp4" {
		t.Errorf("Expected src fallback key, got %s", second.key)
	}
	if second.rect != (models.Rect{}) {
		t.Errorf("Expected zero rect for malformed attribute, got %+v", second.rect)
	}

	// No source at all gets a per-pass nonce
	third := cands[2]
	if !strings.HasPrefix(third.key, "nonce-") {
		t.Errorf("Expected nonce key, got %s", third.key)
	}
}

func TestEnumerateCandidatesEmptyDocument(t *testing.T) {
	snap := &models.Snapshot{HTML: "<html><body><img src='x.jpg'></body></html>"}

	cands, err := enumerateCandidates(snap)
	if err != nil {
		t.Fatalf("Enumeration failed: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("Expected no candidates, got %d", len(cands))
	}
}

func TestParseRect(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  models.Rect
	}{
		{"valid", "1,2,3,4", models.Rect{X: 1, Y: 2, W: 3, H: 4}},
		{"spaces", " 1 , 2 , 3 , 4 ", models.Rect{X: 1, Y: 2, W: 3, H: 4}},
		{"fractional", "0.5,1.5,2.5,3.5", models.Rect{X: 0.5, Y: 1.5, W: 2.5, H: 3.5}},
		{"negative position", "-10,-20,30,40", models.Rect{X: -10, Y: -20, W: 30, H: 40}},
		{"too few parts", "1,2,3", models.Rect{}},
		{"not numbers", "a,b,c,d", models.Rect{}},
		{"empty", "", models.Rect{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRect(tt.input); got != tt.want {
				t.Errorf("parseRect(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}
