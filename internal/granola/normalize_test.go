package granola

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stateOf decodes a state object literal through the regular decoder, so
// the tests exercise the same path production code takes.
func stateOf(t *testing.T, stateJSON string) *State {
	t.Helper()
	st, err := Decode(strings.NewReader(`{"cache": {"state": ` + stateJSON + `}}`))
	require.NoError(t, err)
	return st
}

func TestNormalize_doubleEncodedScenario(t *testing.T) {
	// The documented legacy shape: double-encoded cache, epoch seconds,
	// case-insensitive duplicate participant.
	outer := `{"cache": "{\"state\":{\"documents\":{\"d1\":{\"id\":\"d1\",\"title\":\"Standup\",\"created_at\":1700000000,\"people\":[{\"name\":\"Alice\"},{\"name\":\"alice\"}]}}}}"}`
	st, err := Decode(strings.NewReader(outer))
	require.NoError(t, err)

	meetings, err := Normalize(st)
	require.NoError(t, err)
	require.Len(t, meetings, 1)

	m := meetings[0]
	assert.Equal(t, "d1", m.ID)
	assert.Equal(t, "Standup", m.Title)
	assert.Equal(t, "2023-11-14T22:13:20+00:00", m.StartTS)
	assert.Equal(t, []string{"Alice"}, m.Participants)
	assert.False(t, m.HasTranscript)
	assert.Empty(t, m.Platform)
}

func TestNormalize_idempotent(t *testing.T) {
	st := stateOf(t, `{"documents": {
		"a": {"title": "One", "created_at": 1700000000},
		"b": {"title": "Two"},
		"c": {"title": "Three", "created_at": "2024-01-02T03:04:05Z"},
		"d": {"title": "Four"}
	}}`)

	first, err := Normalize(st)
	require.NoError(t, err)
	second, err := Normalize(st)
	require.NoError(t, err)

	fj, err := json.Marshal(first)
	require.NoError(t, err)
	sj, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, fj, sj, "normalize must be byte-identical across calls")
}

func TestNormalize_sortOrder(t *testing.T) {
	st := stateOf(t, `{"documents": {
		"old":    {"created_at": "2023-01-01T00:00:00Z"},
		"unset1": {"title": "first encountered without ts"},
		"new":    {"created_at": "2025-06-01T00:00:00Z"},
		"unset2": {"title": "second encountered without ts"},
		"mid":    {"created_at": 1700000000}
	}}`)
	meetings, err := Normalize(st)
	require.NoError(t, err)
	require.Len(t, meetings, 5)

	var ids []string
	for _, m := range meetings {
		ids = append(ids, m.ID)
	}
	// Descending by start, absences last in encounter order.
	assert.Equal(t, []string{"new", "mid", "old", "unset1", "unset2"}, ids)
	for i := 0; i < 2; i++ {
		assert.GreaterOrEqual(t, meetings[i].StartTS, meetings[i+1].StartTS)
	}
}

func TestNormalize_identity(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		wantID string
	}{
		{"primary id field", `{"id": "primary"}`, "primary"},
		{"document_id fallback", `{"document_id": "legacy1"}`, "legacy1"},
		{"doc_id fallback", `{"doc_id": "legacy2"}`, "legacy2"},
		{"source_document_id fallback", `{"source_document_id": "legacy3"}`, "legacy3"},
		{"map key as last resort", `{"title": "no id fields"}`, "key"},
		{"empty id falls through to key", `{"id": ""}`, "key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := stateOf(t, `{"documents": {"key": `+tt.doc+`}}`)
			meetings, err := Normalize(st)
			require.NoError(t, err)
			require.Len(t, meetings, 1)
			assert.Equal(t, tt.wantID, meetings[0].ID)
		})
	}
}

func TestNormalize_droppedDocuments(t *testing.T) {
	st := stateOf(t, `{"documents": {
		"":     {"title": "no identity at all"},
		"note": {"type": "note", "title": "not a meeting"},
		"m1":   {"type": "meeting", "title": "explicit meeting"},
		"m2":   {"title": "type absent means meeting"},
		"junk": 17
	}}`)
	meetings, err := Normalize(st)
	require.NoError(t, err)
	require.Len(t, meetings, 2)
	assert.ElementsMatch(t, []string{"explicit meeting", "type absent means meeting"},
		[]string{meetings[0].Title, meetings[1].Title})
}

func TestNormalize_participants(t *testing.T) {
	tests := []struct {
		name  string
		state string
		want  []string
	}{
		{
			name:  "people list, case-insensitive dedup, order preserved",
			state: `{"documents": {"d": {"people": [{"name": "Bob"}, {"name": "Alice"}, {"name": "BOB"}]}}}`,
			want:  []string{"Bob", "Alice"},
		},
		{
			name: "attendee fallback when people empty",
			state: `{"documents": {"d": {"id": "d"}},
				"meetingsMetadata": {"d": {"attendees": [{"name": "Carol"}, {"name": "carol"}, {"name": "Dan"}]}}}`,
			want: []string{"Carol", "Dan"},
		},
		{
			name: "sources are never merged",
			state: `{"documents": {"d": {"id": "d", "people": [{"name": "Eve"}]}},
				"meetingsMetadata": {"d": {"attendees": [{"name": "Frank"}]}}}`,
			want: []string{"Eve"},
		},
		{
			name:  "entries without a name are skipped",
			state: `{"documents": {"d": {"people": [{"email": "x@y.z"}, "stray", {"name": "Grace"}]}}}`,
			want:  []string{"Grace"},
		},
		{
			name:  "no source yields an empty array",
			state: `{"documents": {"d": {"id": "d"}}}`,
			want:  []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meetings, err := Normalize(stateOf(t, tt.state))
			require.NoError(t, err)
			require.Len(t, meetings, 1)
			assert.Equal(t, tt.want, meetings[0].Participants)
			// Dedup invariant: no two names equal under case folding.
			seen := map[string]bool{}
			for _, p := range meetings[0].Participants {
				key := strings.ToLower(p)
				assert.False(t, seen[key], "duplicate participant %q", p)
				seen[key] = true
			}
		})
	}
}

func TestNormalize_participantsWireShape(t *testing.T) {
	meetings, err := Normalize(stateOf(t, `{"documents": {"d": {"id": "d"}}}`))
	require.NoError(t, err)
	require.Len(t, meetings, 1)

	b, err := json.Marshal(meetings[0])
	require.NoError(t, err)
	assert.Contains(t, string(b), `"participants":[]`)
}

func TestNormalize_platform(t *testing.T) {
	tests := []struct {
		provider string
		want     Platform
	}{
		{"google_meet", PlatformMeet},
		{"zoom", PlatformZoom},
		{"teams", PlatformTeams},
		{"microsoft_teams", PlatformTeams},
		{"webex", PlatformOther},
		{"", ""},
	}
	for _, tt := range tests {
		name := tt.provider
		if name == "" {
			name = "absent"
		}
		t.Run(name, func(t *testing.T) {
			state := `{"documents": {"d": {"id": "d"}}}`
			if tt.provider != "" {
				state = `{"documents": {"d": {"id": "d"}},
					"meetingsMetadata": {"d": {"conference": {"provider": "` + tt.provider + `"}}}}`
			}
			meetings, err := Normalize(stateOf(t, state))
			require.NoError(t, err)
			require.Len(t, meetings, 1)
			assert.Equal(t, tt.want, meetings[0].Platform)
		})
	}
}

func TestNormalize_transcriptPresence(t *testing.T) {
	tests := []struct {
		name       string
		transcript string
		want       bool
	}{
		{"segment list", `[{"speaker": "Bob", "text": "hello"}]`, true},
		{"legacy content shape", `{"content": "hello", "speakers": ["Bob"]}`, true},
		{"empty segment list", `[]`, false},
		{"legacy with blank content", `{"content": "  ", "speakers": []}`, false},
		{"null entry", `null`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := stateOf(t, `{"documents": {"d1": {"id": "d1"}}, "transcripts": {"d1": `+tt.transcript+`}}`)
			meetings, err := Normalize(st)
			require.NoError(t, err)
			require.Len(t, meetings, 1)
			assert.Equal(t, tt.want, meetings[0].HasTranscript)
		})
	}
}

func TestNormalize_notesFallbackChain(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "plain text wins",
			doc:  `{"notes_plain": "plain", "notes_markdown": "# md"}`,
			want: "plain",
		},
		{
			name: "markdown verbatim when plain absent",
			doc:  `{"notes_markdown": "# Agenda\n- one"}`,
			want: "# Agenda\n- one",
		},
		{
			name: "rich text tree walk",
			doc: `{"notes": {"type": "doc", "content": [
				{"type": "heading", "content": [{"type": "text", "text": "Agenda"}]},
				{"type": "paragraph", "content": [{"type": "text", "text": "item "}, {"type": "text", "text": "one"}]}
			]}}`,
			want: "Agenda\nitem one",
		},
		{
			name: "no source yields empty",
			doc:  `{"title": "bare"}`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meetings, err := Normalize(stateOf(t, `{"documents": {"d": `+tt.doc+`}}`))
			require.NoError(t, err)
			require.Len(t, meetings, 1)
			assert.Equal(t, tt.want, meetings[0].Notes)
		})
	}
}

func TestNormalize_panelNotes(t *testing.T) {
	tests := []struct {
		name   string
		panels string
		want   string
	}{
		{
			name:   "non-trivial HTML content",
			panels: `{"p1": {"original_content": "<h1>Summary</h1>"}}`,
			want:   "<h1>Summary</h1>",
		},
		{
			name:   "hr separator is skipped",
			panels: `{"p1": {"original_content": "<hr>"}, "p2": {"original_content": "<p>real</p>"}}`,
			want:   "<p>real</p>",
		},
		{
			name: "structured panel body as last resort",
			panels: `{"p1": {"original_content": " ", "content": {"type": "doc", "content": [
				{"type": "paragraph", "content": [{"type": "text", "text": "generated"}]}]}}}`,
			want: "generated",
		},
		{
			name:   "nothing usable",
			panels: `{"p1": {"original_content": "<hr>"}}`,
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := stateOf(t, `{"documents": {"d": {"id": "d"}}, "documentPanels": {"d": `+tt.panels+`}}`)
			meetings, err := Normalize(st)
			require.NoError(t, err)
			require.Len(t, meetings, 1)
			assert.Equal(t, tt.want, meetings[0].Notes)
		})
	}
}

func TestNormalize_folderMapping(t *testing.T) {
	st := stateOf(t, `{
		"documents": {"d1": {"id": "d1"}, "d2": {"id": "d2"}},
		"documentLists": {"f1": ["d1"], "f2": ["d1", "d2"]},
		"documentListsMetadata": {"f1": {"title": "Work"}, "f2": {"title": "All"}}
	}`)
	meetings, err := Normalize(st)
	require.NoError(t, err)
	require.Len(t, meetings, 2)

	byID := map[string]Meeting{}
	for _, m := range meetings {
		byID[m.ID] = m
	}
	// d1 belongs to the first list that contains it.
	assert.Equal(t, "f1", byID["d1"].FolderID)
	assert.Equal(t, "Work", byID["d1"].FolderName)
	assert.Equal(t, "f2", byID["d2"].FolderID)
	assert.Equal(t, "All", byID["d2"].FolderName)
}

func TestNormalize_residualMetadata(t *testing.T) {
	st := stateOf(t, `{"documents": {"d": {
		"id": "d", "title": "Sync", "created_at": 1700000000,
		"workspace_id": "w1", "privacy": "private"
	}}}`)
	meetings, err := Normalize(st)
	require.NoError(t, err)
	require.Len(t, meetings, 1)

	m := meetings[0]
	assert.Equal(t, map[string]any{"workspace_id": "w1", "privacy": "private"}, m.Metadata)
	// Modeled fields never leak into the residual bag.
	assert.NotContains(t, m.Metadata, "title")
	assert.NotContains(t, m.Metadata, "created_at")
}

func TestNormalize_overviewAndSummary(t *testing.T) {
	st := stateOf(t, `{"documents": {"d": {"id": "d", "overview": "short", "summary": "long"}}}`)
	meetings, err := Normalize(st)
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, "short", meetings[0].Overview)
	assert.Equal(t, "long", meetings[0].Summary)
	assert.NotContains(t, meetings[0].Metadata, "overview")
}

func TestNormalize_unexpectedShape(t *testing.T) {
	tests := []struct {
		name  string
		state string
	}{
		{"documents is an array", `{"documents": [1, 2]}`},
		{"meetingsMetadata is a string", `{"documents": {}, "meetingsMetadata": "nope"}`},
		{"transcripts is a number", `{"documents": {}, "transcripts": 3}`},
		{"documentLists is a bool", `{"documents": {}, "documentLists": true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(stateOf(t, tt.state))
			require.Error(t, err)
			assert.Equal(t, KindUnexpectedShape, kindOf(t, err))
		})
	}
}

func TestNormalize_missingCollections(t *testing.T) {
	meetings, err := Normalize(stateOf(t, `{}`))
	require.NoError(t, err)
	assert.Empty(t, meetings)
}

func TestNormalize_endTimestamp(t *testing.T) {
	st := stateOf(t, `{"documents": {"d": {"id": "d", "created_at": 1700000000, "ended_at": 1700003600}}}`)
	meetings, err := Normalize(st)
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, "2023-11-14T22:13:20+00:00", meetings[0].StartTS)
	assert.Equal(t, "2023-11-14T23:13:20+00:00", meetings[0].EndTS)
}

func TestNormalize_timestampLastResort(t *testing.T) {
	// Neither a string nor a number: the value is stringified rather than
	// dropped.
	st := stateOf(t, `{"documents": {"d": {"id": "d", "created_at": true}}}`)
	meetings, err := Normalize(st)
	require.NoError(t, err)
	require.Len(t, meetings, 1)
	assert.Equal(t, "true", meetings[0].StartTS)
}
