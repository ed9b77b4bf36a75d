package feedscan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zombar/feedscan/models"
)

const feedPage = "https://feed.example.com/foryou"

// feedHTML builds a single-item feed snapshot with the given description
func feedHTML(desc string) string {
	return fmt.Sprintf(`<html><body>
		<div data-e2e="recommend-list-item-container">
			<a href="/@user/video/7234567890123">
				<video data-capture-id="cap-1"
					data-current-src="https://cdn.example.com/v1.mp4"
					data-rect="100,120,320,560"
					data-video-width="720" data-video-height="1280"></video>
			</a>
			<div data-e2e="video-desc">%s</div>
		</div>
	</body></html>`, desc)
}

type stubSource struct {
	mu       sync.Mutex
	html     string
	snapErr  error
	frameErr error
	frames   int
}

func (s *stubSource) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return &models.Snapshot{
		Page:     feedPage,
		Viewport: models.Viewport{Width: 1280, Height: 720},
		HTML:     s.html,
	}, nil
}

func (s *stubSource) Frame(ctx context.Context, captureID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frameErr != nil {
		return nil, s.frameErr
	}
	s.frames++
	return []byte("raw-frame"), nil
}

func (s *stubSource) frameCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

type stubDetector struct {
	mu         sync.Mutex
	loadErr    error
	ready      bool
	detections []models.Detection
	detectErr  error
	calls      int
	block      chan struct{} // when set, Detect blocks until closed
}

func (d *stubDetector) Load(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return d.loadErr
	}
	d.ready = true
	return nil
}

func (d *stubDetector) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ready
}

func (d *stubDetector) Detect(ctx context.Context, frame []byte) ([]models.Detection, error) {
	d.mu.Lock()
	d.calls++
	block := d.block
	d.mu.Unlock()
	if block != nil {
		<-block
	}
	if d.detectErr != nil {
		return nil, d.detectErr
	}
	return d.detections, nil
}

func (d *stubDetector) detectCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type memStore struct {
	mu      sync.Mutex
	records []models.MatchRecord
}

func (m *memStore) Append(ctx context.Context, rec models.MatchRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if models.Duplicate(m.records, rec) {
		return false, nil
	}
	m.records = append(m.records, rec)
	return true, nil
}

func (m *memStore) List(ctx context.Context) ([]models.MatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.MatchRecord{}, m.records...), nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func testConfig() Config {
	c := DefaultConfig()
	c.ScanInterval = time.Hour // immediate pass only; the ticker never fires
	return c
}

func TestScanRecordsMatch(t *testing.T) {
	source := &stubSource{html: feedHTML("وصف تجريبي #تجربة")}
	detector := &stubDetector{detections: []models.Detection{
		{Category: "female", Confidence: 0.82},
		{Category: "male", Confidence: 0.95},
	}}
	store := &memStore{}

	s := New(testConfig(), source, detector, store, nil, nil)
	defer s.Shutdown()

	resp := s.Start(context.Background())
	if !resp.OK || !resp.Scanning || !resp.ClassifierReady {
		t.Fatalf("Unexpected start response: %+v", resp)
	}

	waitFor(t, func() bool { return store.count() == 1 }, "Expected one recorded match")

	records, _ := store.List(context.Background())
	rec := records[0]
	if rec.URL != "https://feed.example.com/@user/video/7234567890123" {
		t.Errorf("Unexpected permalink: %s", rec.URL)
	}
	if rec.Description != "وصف تجريبي #تجربة" {
		t.Errorf("Unexpected description: %s", rec.Description)
	}
	if rec.Prob != 0.82 {
		t.Errorf("Expected prob 0.82, got %v", rec.Prob)
	}
	if rec.Page != feedPage {
		t.Errorf("Unexpected page: %s", rec.Page)
	}
	if _, err := time.Parse(time.RFC3339, rec.CollectedAt); err != nil {
		t.Errorf("collectedAt is not RFC3339: %s", rec.CollectedAt)
	}
}

func TestScanSkipsNonMatchingScript(t *testing.T) {
	source := &stubSource{html: feedHTML("great video, watch now")}
	detector := &stubDetector{detections: []models.Detection{
		{Category: "female", Confidence: 0.99},
	}}
	store := &memStore{}

	s := New(testConfig(), source, detector, store, nil, nil)
	defer s.Shutdown()

	s.Start(context.Background())

	// Give the pipeline a moment to run to completion
	time.Sleep(150 * time.Millisecond)
	if n := detector.detectCalls(); n != 0 {
		t.Errorf("Expected no classifier calls for non-matching text, got %d", n)
	}
	if store.count() != 0 {
		t.Errorf("Expected no matches, got %d", store.count())
	}
}

func TestScanSkipsBelowThreshold(t *testing.T) {
	source := &stubSource{html: feedHTML("وصف")}
	detector := &stubDetector{detections: []models.Detection{
		{Category: "female", Confidence: 0.69},
	}}
	store := &memStore{}

	s := New(testConfig(), source, detector, store, nil, nil)
	defer s.Shutdown()

	s.Start(context.Background())

	waitFor(t, func() bool { return detector.detectCalls() == 1 }, "Expected one classifier call")
	time.Sleep(50 * time.Millisecond)
	if store.count() != 0 {
		t.Errorf("Expected no matches below threshold, got %d", store.count())
	}
}

func TestStartClassifierLoadFailure(t *testing.T) {
	source := &stubSource{html: feedHTML("وصف")}
	detector := &stubDetector{loadErr: errors.New("download failed")}
	store := &memStore{}

	s := New(testConfig(), source, detector, store, nil, nil)
	defer s.Shutdown()

	resp := s.Start(context.Background())
	if resp.OK {
		t.Error("Expected start to fail when classifier load fails")
	}
	if resp.Error == "" {
		t.Error("Expected an error message in the response")
	}

	status := s.Status()
	if status.Scanning {
		t.Error("Expected scanner to stay idle after failed load")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	source := &stubSource{html: "<html><body></body></html>"}
	detector := &stubDetector{}
	store := &memStore{}

	s := New(testConfig(), source, detector, store, nil, nil)
	defer s.Shutdown()

	if resp := s.Stop(); !resp.OK || resp.Scanning {
		t.Errorf("Stopping an idle scanner should succeed: %+v", resp)
	}

	s.Start(context.Background())
	if resp := s.Start(context.Background()); !resp.OK || !resp.Scanning {
		t.Errorf("Starting a scanning scanner should report success: %+v", resp)
	}

	if resp := s.Stop(); !resp.OK || resp.Scanning {
		t.Errorf("Stop should report idle: %+v", resp)
	}
	if s.Status().Scanning {
		t.Error("Expected idle after stop")
	}
}

func TestProcessingSetGatesConcurrentPasses(t *testing.T) {
	block := make(chan struct{})
	source := &stubSource{html: feedHTML("وصف")}
	detector := &stubDetector{
		block:      block,
		detections: []models.Detection{{Category: "female", Confidence: 0.9}},
	}
	store := &memStore{}

	s := New(testConfig(), source, detector, store, nil, nil)
	defer s.Shutdown()

	s.Start(context.Background())
	waitFor(t, func() bool { return detector.detectCalls() == 1 }, "Expected first pipeline to reach the classifier")

	// A second pass while the first pipeline is blocked must skip the key
	s.scanPass(s.rootCtx)
	time.Sleep(100 * time.Millisecond)
	if n := detector.detectCalls(); n != 1 {
		t.Errorf("Expected in-flight key to gate reprocessing, got %d classifier calls", n)
	}

	close(block)
	waitFor(t, func() bool { return store.count() == 1 }, "Expected the blocked pipeline to complete")

	// After completion the key is admitted again; the store dedups instead
	s.scanPass(s.rootCtx)
	waitFor(t, func() bool { return detector.detectCalls() == 2 }, "Expected a released key to be admitted again")
	time.Sleep(50 * time.Millisecond)
	if store.count() != 1 {
		t.Errorf("Expected store-level dedup to keep one record, got %d", store.count())
	}
}

func TestStopClearsProcessingSet(t *testing.T) {
	block := make(chan struct{})
	source := &stubSource{html: feedHTML("وصف")}
	detector := &stubDetector{
		block:      block,
		detections: []models.Detection{{Category: "female", Confidence: 0.9}},
	}
	store := &memStore{}

	s := New(testConfig(), source, detector, store, nil, nil)
	defer s.Shutdown()

	s.Start(context.Background())
	waitFor(t, func() bool { return detector.detectCalls() == 1 }, "Expected pipeline to reach the classifier")

	s.Stop()

	s.mu.Lock()
	n := len(s.inflight)
	s.mu.Unlock()
	if n != 0 {
		t.Errorf("Expected processing set cleared on stop, found %d keys", n)
	}

	// The abandoned pipeline may still complete and append
	close(block)
	waitFor(t, func() bool { return store.count() == 1 }, "Expected abandoned pipeline to finish its append")
}

func TestSnapshotFailureSkipsPass(t *testing.T) {
	source := &stubSource{snapErr: errors.New("agent unreachable")}
	detector := &stubDetector{}
	store := &memStore{}

	s := New(testConfig(), source, detector, store, nil, nil)
	defer s.Shutdown()

	resp := s.Start(context.Background())
	if !resp.OK || !resp.Scanning {
		t.Errorf("A failed snapshot must not prevent scanning: %+v", resp)
	}
	if store.count() != 0 {
		t.Errorf("Expected no matches, got %d", store.count())
	}
}

type fakeThumbs struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (f *fakeThumbs) SaveFrame(frame []byte, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[name] = frame
	return "thumbs/2026/08/" + name + ".png", nil
}

func TestMatchThumbnailPersisted(t *testing.T) {
	source := &stubSource{html: feedHTML("وصف")}
	detector := &stubDetector{detections: []models.Detection{
		{Category: "female", Confidence: 0.9},
	}}
	store := &memStore{}
	thumbs := &fakeThumbs{}

	s := New(testConfig(), source, detector, store, thumbs, nil)
	defer s.Shutdown()

	s.Start(context.Background())
	waitFor(t, func() bool { return store.count() == 1 }, "Expected one recorded match")

	records, _ := store.List(context.Background())
	if records[0].Poster == "" {
		t.Error("Expected poster to point at the saved thumbnail")
	}

	thumbs.mu.Lock()
	defer thumbs.mu.Unlock()
	if len(thumbs.saved) != 1 {
		t.Errorf("Expected one saved frame, got %d", len(thumbs.saved))
	}
	// The permalink's video id names the thumbnail since the Arabic
	// description transliterates to nothing
	if _, ok := thumbs.saved["7234567890123"]; !ok {
		t.Errorf("Unexpected thumbnail names: %v", thumbs.saved)
	}
}
