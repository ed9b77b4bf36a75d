package models

// MatchRecord is the persisted result of a candidate that passed every
// pipeline stage. Records are immutable once created; the only destructive
// operation on the match list is a bulk clear.
type MatchRecord struct {
	URL         string  `json:"url"`
	Description string  `json:"description"`
	Prob        float64 `json:"prob"`             // classifier confidence, 0.0-1.0
	CollectedAt string  `json:"collectedAt"`      // RFC 3339 timestamp
	Page        string  `json:"page"`             // originating page URL
	Poster      string  `json:"poster,omitempty"` // thumbnail reference, if any
}

// Duplicate reports whether rec duplicates a record already in existing.
// A record is a duplicate when its URL exactly matches an existing URL, or
// when its description is non-empty and exactly matches an existing
// description. This is a soft-dedup policy over two fields, not a primary
// key.
func Duplicate(existing []MatchRecord, rec MatchRecord) bool {
	for _, e := range existing {
		if e.URL == rec.URL {
			return true
		}
		if rec.Description != "" && e.Description == rec.Description {
			return true
		}
	}
	return false
}

// Viewport holds the dimensions of the snapshot agent's visible area.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an element bounding box in viewport coordinates.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Snapshot is one serialized view of the live feed document, produced by the
// snapshot agent. Live element state (bounding boxes, playback sources,
// intrinsic dimensions) is mirrored into data attributes in the HTML.
type Snapshot struct {
	Page     string   `json:"page"`
	Viewport Viewport `json:"viewport"`
	HTML     string   `json:"html"`
}

// Detection is a single classifier result for a captured frame.
type Detection struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Control message types accepted by the control interface.
const (
	MsgStartScan  = "START_SCAN"
	MsgStopScan   = "STOP_SCAN"
	MsgGetStatus  = "GET_STATUS"
	MsgClearList  = "CLEAR_LIST"
	MsgGetMatches = "GET_MATCHES"
)

// ControlRequest is the envelope for control interface messages.
type ControlRequest struct {
	Type string `json:"type"`
}

// StartResponse answers START_SCAN.
type StartResponse struct {
	OK              bool   `json:"ok"`
	Scanning        bool   `json:"scanning"`
	ClassifierReady bool   `json:"classifierReady"`
	Error           string `json:"error,omitempty"`
}

// StopResponse answers STOP_SCAN.
type StopResponse struct {
	OK       bool `json:"ok"`
	Scanning bool `json:"scanning"`
}

// StatusResponse answers GET_STATUS.
type StatusResponse struct {
	Scanning        bool `json:"scanning"`
	ClassifierReady bool `json:"classifierReady"`
}

// ClearResponse answers CLEAR_LIST.
type ClearResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// MatchesResponse answers GET_MATCHES.
type MatchesResponse struct {
	OK      bool          `json:"ok"`
	Matches []MatchRecord `json:"matches"`
	Error   string        `json:"error,omitempty"`
}
