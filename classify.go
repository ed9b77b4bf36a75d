package feedscan

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log"

	"golang.org/x/image/draw"

	"github.com/zombar/feedscan/metrics"
)

// classification is the adapter's normalized verdict for one captured frame.
type classification struct {
	positive bool
	prob     float64
	frame    []byte // the submitted frame, kept for thumbnail persistence
}

// classifyFrame captures the candidate's current visual frame and submits it
// to the external classifier. The verdict is positive iff at least one
// detection carries the target category with confidence at or above the
// configured threshold; the reported probability is the maximum such score.
// Every failure along the way (no renderable frame, capture error, classifier
// error) is absorbed as a negative verdict with probability 0; classification
// failure never propagates as a pipeline error.
func (s *Scanner) classifyFrame(ctx context.Context, c candidate) classification {
	if c.intrinsicW < s.config.MinIntrinsicEdge || c.intrinsicH < s.config.MinIntrinsicEdge {
		// nothing renderable; skip the classifier entirely
		return classification{}
	}

	frame, err := s.source.Frame(ctx, c.captureID)
	if err != nil {
		log.Printf("Frame capture failed for %s: %v", c.key, err)
		metrics.ClassifierCallsTotal.WithLabelValues("capture_error").Inc()
		return classification{}
	}

	frame = boundFrame(frame, s.config.MaxFrameEdge)

	detections, err := s.detector.Detect(ctx, frame)
	if err != nil {
		log.Printf("Classification failed for %s: %v", c.key, err)
		metrics.ClassifierCallsTotal.WithLabelValues("error").Inc()
		return classification{}
	}

	matched := false
	best := 0.0
	for _, d := range detections {
		if d.Category != s.config.TargetCategory || d.Confidence < s.config.ConfidenceThreshold {
			continue
		}
		matched = true
		if d.Confidence > best {
			best = d.Confidence
		}
	}

	if matched {
		metrics.ClassifierCallsTotal.WithLabelValues("positive").Inc()
	} else {
		metrics.ClassifierCallsTotal.WithLabelValues("negative").Inc()
	}

	return classification{positive: matched, prob: best, frame: frame}
}

// boundFrame downscales a PNG frame so its longest edge does not exceed max.
// Frames that fail to decode are passed through untouched; the classifier
// gets whatever the agent produced.
func boundFrame(frame []byte, max int) []byte {
	if max <= 0 {
		return frame
	}

	img, err := png.Decode(bytes.NewReader(frame))
	if err != nil {
		return frame
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= max && h <= max {
		return frame
	}

	scale := float64(max) / float64(w)
	if h > w {
		scale = float64(max) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return frame
	}
	return buf.Bytes()
}
