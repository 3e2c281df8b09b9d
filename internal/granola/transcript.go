package granola

// In this file: the transcript variant.  The cache shipped transcripts in
// two shapes over time: an ordered list of speech segments, and a legacy
// object carrying the flattened text plus a speaker list.  Both are
// modeled as one tagged type with uniform emptiness and speaker queries.

import (
	"encoding/json"
	"strings"
)

// Segment is a single speech segment of a transcript.
type Segment struct {
	Start   string `json:"start_ts,omitempty"`
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// Transcript is a meeting transcript in either of the two supported
// shapes.  Exactly one of Segments or Content/Speakers is populated.
type Transcript struct {
	Segments []Segment `json:"segments,omitempty"`
	Content  string    `json:"content,omitempty"`
	Speakers []string  `json:"speakers,omitempty"`
}

// UnmarshalJSON decodes either transcript shape: a JSON array is the
// segment list, an object is the legacy content/speakers form.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	*t = Transcript{}
	switch firstByte(data) {
	case '[':
		var raw []map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		for _, seg := range raw {
			t.Segments = append(t.Segments, segmentFrom(seg))
		}
		return nil
	case 'n':
		return nil // JSON null, empty transcript
	default:
		var legacy struct {
			Content  string   `json:"content"`
			Speakers []string `json:"speakers"`
		}
		if err := json.Unmarshal(data, &legacy); err != nil {
			return err
		}
		t.Content = legacy.Content
		t.Speakers = legacy.Speakers
		return nil
	}
}

// segmentFrom builds a Segment from a raw segment object, tolerating the
// two timestamp key names observed in the wild and normalizing numeric
// timestamps.
func segmentFrom(raw map[string]any) Segment {
	start := raw["start_timestamp"]
	if start == nil {
		start = raw["timestamp"]
	}
	speaker, _ := raw["speaker"].(string)
	text, _ := raw["text"].(string)
	return Segment{
		Start:   normalizeTimestamp(start),
		Speaker: speaker,
		Text:    text,
	}
}

// Transcript returns the transcript stored for the given document id, or
// nil when the document has none.
func (s *State) Transcript(id string) (*Transcript, error) {
	m, err := objectMap(keyTranscripts, s.Collection(keyTranscripts))
	if err != nil {
		return nil, err
	}
	raw, ok := m[id]
	if !ok || isJSONNull(raw) {
		return nil, nil
	}
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, parseErr(KindUnexpectedShape, keyTranscripts, err)
	}
	return &t, nil
}

// Empty reports whether the transcript carries no usable content in
// either shape.
func (t *Transcript) Empty() bool {
	if t == nil {
		return true
	}
	return len(t.Segments) == 0 && strings.TrimSpace(t.Content) == ""
}

// SpeakerSet returns the distinct speaker names in first-seen order,
// deduplicated case-insensitively.
func (t *Transcript) SpeakerSet() []string {
	if t == nil {
		return nil
	}
	var names []string
	if len(t.Segments) > 0 {
		for _, seg := range t.Segments {
			names = append(names, seg.Speaker)
		}
	} else {
		names = t.Speakers
	}
	return dedupeFold(names)
}

// dedupeFold removes case-insensitive duplicates and empty strings from
// names, preserving first-seen order.
func dedupeFold(names []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out
}
