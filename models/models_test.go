package models

import (
	"encoding/json"
	"testing"
)

// TestMatchRecordJSONFieldNames verifies the persisted field names stay
// stable; external consumers read the exported documents by these keys.
func TestMatchRecordJSONFieldNames(t *testing.T) {
	rec := MatchRecord{
		URL:         "https://example.com/video/123",
		Description: "desc",
		Prob:        0.82,
		CollectedAt: "2025-01-02T03:04:05Z",
		Page:        "https://example.com/feed",
		Poster:      "thumbs/abc.png",
	}

	jsonBytes, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Failed to marshal record: %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &fields); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}

	for _, key := range []string{"url", "description", "prob", "collectedAt", "page", "poster"} {
		if _, exists := fields[key]; !exists {
			t.Errorf("field %q is missing from JSON", key)
		}
	}

	// poster is optional and must be omitted when absent
	rec.Poster = ""
	jsonBytes, err = json.Marshal(rec)
	if err != nil {
		t.Fatalf("Failed to marshal record without poster: %v", err)
	}
	fields = map[string]interface{}{}
	if err := json.Unmarshal(jsonBytes, &fields); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if _, exists := fields["poster"]; exists {
		t.Error("poster field should be omitted when empty")
	}
}

func TestDuplicate(t *testing.T) {
	existing := []MatchRecord{
		{URL: "https://example.com/video/1", Description: "first clip"},
		{URL: "https://example.com/video/2", Description: ""},
	}

	tests := []struct {
		name string
		rec  MatchRecord
		want bool
	}{
		{
			name: "same url",
			rec:  MatchRecord{URL: "https://example.com/video/1", Description: "other"},
			want: true,
		},
		{
			name: "same description different url",
			rec:  MatchRecord{URL: "https://example.com/video/9", Description: "first clip"},
			want: true,
		},
		{
			name: "empty description does not match empty description",
			rec:  MatchRecord{URL: "https://example.com/video/9", Description: ""},
			want: false,
		},
		{
			name: "new record",
			rec:  MatchRecord{URL: "https://example.com/video/3", Description: "third clip"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Duplicate(existing, tt.rec); got != tt.want {
				t.Errorf("Duplicate() = %v, want %v", got, tt.want)
			}
		})
	}
}
