// Package feedscan continuously samples a live media feed through a snapshot
// agent, filters the visible media elements by script and by an external
// frame classifier, and records qualifying elements exactly once into a
// persistent match list.
package feedscan

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/zombar/feedscan/metrics"
	"github.com/zombar/feedscan/models"
	"github.com/zombar/feedscan/slug"
)

var tracer = otel.Tracer("github.com/zombar/feedscan")

// Config contains scanner configuration
type Config struct {
	ScanInterval        time.Duration // period between scan passes
	TargetCategory      string        // detection category that counts as a match
	ConfidenceThreshold float64       // minimum detection confidence (0.0-1.0)
	MaxFrameEdge        int           // captured frames are downscaled to this edge bound
	MinIntrinsicEdge    int           // elements smaller than this have no renderable frame
	MaxAncestorLevels   int           // ancestor walk depth for metadata extraction

	FeedItemSelectors    []string // markers of a feed-item container
	DescriptionSelectors []string // known description slots within a feed item
	PermalinkPattern     string   // regexp a video permalink path matches
	ScriptRanges         []ScriptRange
}

// DefaultConfig returns default scanner configuration
func DefaultConfig() Config {
	return Config{
		ScanInterval:        3500 * time.Millisecond,
		TargetCategory:      "female",
		ConfidenceThreshold: 0.7,
		MaxFrameEdge:        640,
		MinIntrinsicEdge:    2,
		MaxAncestorLevels:   5,
		FeedItemSelectors: []string{
			"[data-feed-item]",
			"[data-e2e='recommend-list-item-container']",
			"article",
		},
		DescriptionSelectors: []string{
			"[data-e2e='video-desc']",
			"[data-e2e='browse-video-desc']",
			"[data-description]",
			"figcaption",
		},
		PermalinkPattern: `/video/\d+`,
		ScriptRanges:     DefaultScriptRanges,
	}
}

// SnapshotSource provides serialized views of the live feed document and
// frame captures of individual media elements.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*models.Snapshot, error)
	Frame(ctx context.Context, captureID string) ([]byte, error)
}

// Detector is the external face/attribute classifier capability. Load is a
// one-time asynchronous initialization; implementations must memoize success
// and deduplicate concurrent loads.
type Detector interface {
	Load(ctx context.Context) error
	Ready() bool
	Detect(ctx context.Context, frame []byte) ([]models.Detection, error)
}

// MatchStore is the append-only, idempotent-insert persistent match list.
type MatchStore interface {
	// Append inserts rec unless it duplicates an existing record. Returns
	// true if the record was inserted.
	Append(ctx context.Context, rec models.MatchRecord) (bool, error)
	// List returns the full list in insertion order.
	List(ctx context.Context) ([]models.MatchRecord, error)
	// Clear empties the list.
	Clear(ctx context.Context) error
}

// ThumbnailStore persists captured frames for matches without a poster.
// Optional; the scanner works without one.
type ThumbnailStore interface {
	SaveFrame(frame []byte, name string) (string, error)
}

// Notifier announces newly recorded matches. Optional.
type Notifier interface {
	MatchRecorded(ctx context.Context, rec models.MatchRecord) error
}

// Scanner owns the scan loop: an Idle/Scanning state machine, the set of
// identity keys currently mid-pipeline, and the timer that drives scan
// passes. All of its control operations are safe for concurrent use.
type Scanner struct {
	config    Config
	source    SnapshotSource
	detector  Detector
	store     MatchStore
	thumbs    ThumbnailStore
	notifier  Notifier
	permalink *regexp.Regexp

	// rootCtx bounds all scanning work for the scanner's lifetime. Stopping
	// the loop does not cancel it: in-flight candidate work is abandoned,
	// not interrupted.
	rootCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	scanning bool
	done     chan struct{}
	inflight map[string]struct{}
}

// New creates a new Scanner. thumbs and notifier may be nil.
func New(config Config, source SnapshotSource, detector Detector, store MatchStore, thumbs ThumbnailStore, notifier Notifier) *Scanner {
	config = config.withDefaults()

	permalink, err := regexp.Compile(config.PermalinkPattern)
	if err != nil {
		log.Printf("Invalid permalink pattern %q, using default: %v", config.PermalinkPattern, err)
		permalink = regexp.MustCompile(DefaultConfig().PermalinkPattern)
	}

	rootCtx, cancel := context.WithCancel(context.Background())

	return &Scanner{
		config:    config,
		source:    source,
		detector:  detector,
		store:     store,
		thumbs:    thumbs,
		notifier:  notifier,
		permalink: permalink,
		rootCtx:   rootCtx,
		cancel:    cancel,
		inflight:  make(map[string]struct{}),
	}
}

// withDefaults fills zero-valued fields so a partially specified Config
// behaves like DefaultConfig for the rest.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ScanInterval <= 0 {
		c.ScanInterval = def.ScanInterval
	}
	if c.TargetCategory == "" {
		c.TargetCategory = def.TargetCategory
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if c.MaxFrameEdge <= 0 {
		c.MaxFrameEdge = def.MaxFrameEdge
	}
	if c.MinIntrinsicEdge <= 0 {
		c.MinIntrinsicEdge = def.MinIntrinsicEdge
	}
	if c.MaxAncestorLevels <= 0 {
		c.MaxAncestorLevels = def.MaxAncestorLevels
	}
	if len(c.FeedItemSelectors) == 0 {
		c.FeedItemSelectors = def.FeedItemSelectors
	}
	if len(c.DescriptionSelectors) == 0 {
		c.DescriptionSelectors = def.DescriptionSelectors
	}
	if c.PermalinkPattern == "" {
		c.PermalinkPattern = def.PermalinkPattern
	}
	if len(c.ScriptRanges) == 0 {
		c.ScriptRanges = def.ScriptRanges
	}
	return c
}

// Start transitions the scanner from Idle to Scanning. It awaits classifier
// initialization; if the load fails, the scanner stays Idle and the failure
// is surfaced in the response. Starting an already scanning scanner is a
// no-op returning success.
func (s *Scanner) Start(ctx context.Context) models.StartResponse {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return models.StartResponse{OK: true, Scanning: true, ClassifierReady: s.detector.Ready()}
	}
	s.mu.Unlock()

	if err := s.detector.Load(ctx); err != nil {
		log.Printf("Classifier load failed, scanner stays idle: %v", err)
		return models.StartResponse{
			OK:    false,
			Error: fmt.Sprintf("classifier load failed: %v", err),
		}
	}

	s.mu.Lock()
	if s.scanning {
		// a concurrent start won the race while we awaited the load
		s.mu.Unlock()
		return models.StartResponse{OK: true, Scanning: true, ClassifierReady: true}
	}
	done := make(chan struct{})
	s.done = done
	s.scanning = true
	s.mu.Unlock()

	s.scanPass(s.rootCtx)
	go s.loop(done)

	return models.StartResponse{OK: true, Scanning: true, ClassifierReady: true}
}

// Stop transitions the scanner back to Idle: the timer is disarmed and tracking of
// in-flight pipelines is abandoned. Outstanding asynchronous work is not
// cancelled and may still append to the store on completion. Stopping an idle
// scanner is a no-op returning success.
func (s *Scanner) Stop() models.StopResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scanning {
		return models.StopResponse{OK: true, Scanning: false}
	}

	close(s.done)
	s.done = nil
	s.scanning = false
	s.inflight = make(map[string]struct{})
	metrics.CandidatesInFlight.Set(0)

	return models.StopResponse{OK: true, Scanning: false}
}

// Status reports the current state without side effects.
func (s *Scanner) Status() models.StatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.StatusResponse{Scanning: s.scanning, ClassifierReady: s.detector.Ready()}
}

// Shutdown stops the loop and cancels all remaining candidate work. Used at
// process exit, not by the control interface.
func (s *Scanner) Shutdown() {
	s.Stop()
	s.cancel()
}

// loop runs scan passes on the configured period until done is closed. Each
// pass runs to the end of candidate dispatch before the next tick is
// considered, so pass issuance is strictly sequential.
func (s *Scanner) loop(done chan struct{}) {
	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-s.rootCtx.Done():
			return
		case <-ticker.C:
			s.scanPass(s.rootCtx)
		}
	}
}

// scanPass enumerates the current candidates and dispatches each one's
// pipeline without awaiting completion. A failed snapshot skips the pass;
// it never stops the loop.
func (s *Scanner) scanPass(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "feedscan.scan_pass")
	defer span.End()

	start := time.Now()

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		log.Printf("Snapshot failed, skipping pass: %v", err)
		metrics.SnapshotFailuresTotal.Inc()
		return
	}

	cands, err := enumerateCandidates(snap)
	if err != nil {
		log.Printf("Candidate enumeration failed, skipping pass: %v", err)
		metrics.SnapshotFailuresTotal.Inc()
		return
	}

	metrics.CandidatesSeenTotal.Add(float64(len(cands)))
	for _, c := range cands {
		go s.process(ctx, snap.Viewport, c)
	}

	metrics.ScanPassesTotal.Inc()
	metrics.ScanPassDuration.Observe(time.Since(start).Seconds())
}

// process drives one candidate through the filter pipeline. Any error is
// contained to this candidate: logged, the processing-set entry released, the
// enclosing pass unaffected.
func (s *Scanner) process(ctx context.Context, vp models.Viewport, c candidate) {
	if !s.admit(c.key) {
		return // already mid-pipeline for this identity key
	}
	defer s.release(c.key)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Candidate pipeline panic for %s: %v", c.key, r)
		}
	}()

	if !isVisible(c.rect, vp) {
		return
	}

	meta := s.extract(c)
	if !matchesScript(meta.Description, s.config.ScriptRanges) {
		return
	}

	verdict := s.classifyFrame(ctx, c)
	if !verdict.positive {
		return
	}

	rec := models.MatchRecord{
		URL:         meta.URL,
		Description: meta.Description,
		Prob:        verdict.prob,
		CollectedAt: time.Now().UTC().Format(time.RFC3339),
		Page:        c.page,
		Poster:      c.poster,
	}

	if rec.Poster == "" && s.thumbs != nil && len(verdict.frame) > 0 {
		name := slug.GenerateWithFallback(rec.Description, slug.FromMediaURL(rec.URL))
		if name == "" {
			name = slug.Generate(c.captureID)
		}
		if path, err := s.thumbs.SaveFrame(verdict.frame, name); err != nil {
			log.Printf("Failed to save thumbnail for %s: %v", c.key, err)
		} else {
			rec.Poster = path
		}
	}

	inserted, err := s.store.Append(ctx, rec)
	if err != nil {
		log.Printf("Failed to append match for %s: %v", c.key, err)
		return
	}
	if !inserted {
		metrics.DuplicatesSkippedTotal.Inc()
		return
	}

	metrics.MatchesRecordedTotal.Inc()
	log.Printf("Recorded match %s (prob %.2f)", rec.URL, rec.Prob)

	if s.notifier != nil {
		if err := s.notifier.MatchRecorded(ctx, rec); err != nil {
			log.Printf("Failed to publish match event for %s: %v", rec.URL, err)
		}
	}
}

// admit adds key to the processing set. Returns false if a pipeline for this
// key is already in flight.
func (s *Scanner) admit(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	metrics.CandidatesInFlight.Set(float64(len(s.inflight)))
	return true
}

func (s *Scanner) release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
	metrics.CandidatesInFlight.Set(float64(len(s.inflight)))
}
