package granola

// In this file: the record normalizer.  It merges the five state
// collections into a flat, ordered list of Meeting records, applying the
// field-level fallback chains and defensive handling of partial input.

import (
	"encoding/json"
	"sort"
	"strings"
)

// idCandidates is the ordered list of document fields tried when resolving
// a record's identity.  The document map key is the ultimate fallback.
var idCandidates = []string{"id", "document_id", "doc_id", "source_document_id"}

// consumedFields are the document fields the normalizer models explicitly;
// everything else lands in Meeting.Metadata.
var consumedFields = map[string]struct{}{
	"id": {}, "document_id": {}, "doc_id": {}, "source_document_id": {},
	"type": {}, "title": {}, "created_at": {}, "ended_at": {},
	"people": {}, "notes_plain": {}, "notes_markdown": {}, "notes": {},
	"overview": {}, "summary": {},
}

// meetingMeta is the subset of a meetingsMetadata entry the normalizer
// reads: the attendee list and the conference provider.
type meetingMeta struct {
	Attendees []struct {
		Name string `json:"name"`
	} `json:"attendees"`
	Conference struct {
		Provider string `json:"provider"`
	} `json:"conference"`
}

// folderRef points a document at the folder list containing it.
type folderRef struct {
	id   string
	name string
}

// Normalize flattens the decoded state into an ordered list of meeting
// records.  Missing collections are treated as empty; a collection that is
// present but not an object is reported as an UNEXPECTED_SHAPE ParseError
// and no partial result is returned.  The output is sorted by start
// timestamp descending, records without one last, with encounter order
// preserved among ties.
func Normalize(st *State) ([]Meeting, error) {
	docs, err := orderedEntries(keyDocuments, st.Collection(keyDocuments))
	if err != nil {
		return nil, err
	}
	metaMap, err := objectMap(keyMeetingsMeta, st.Collection(keyMeetingsMeta))
	if err != nil {
		return nil, err
	}
	transcripts, err := objectMap(keyTranscripts, st.Collection(keyTranscripts))
	if err != nil {
		return nil, err
	}
	panelsMap, err := objectMap(keyPanels, st.Collection(keyPanels))
	if err != nil {
		return nil, err
	}
	folders, err := folderIndex(st)
	if err != nil {
		return nil, err
	}

	meetings := make([]Meeting, 0, len(docs))
	for _, ent := range docs {
		var doc map[string]any
		if err := json.Unmarshal(ent.raw, &doc); err != nil {
			continue // tolerated: a single mangled document is dropped
		}
		if typ, ok := doc["type"].(string); ok && typ != "" && typ != "meeting" {
			continue
		}
		id := resolveID(doc, ent.key)
		if id == "" {
			continue
		}

		meta := decodeMeta(metaMap[id])
		m := Meeting{
			ID:            id,
			Title:         stringField(doc, "title", untitledMeeting),
			StartTS:       normalizeTimestamp(doc["created_at"]),
			EndTS:         normalizeTimestamp(doc["ended_at"]),
			Participants:  participants(doc, meta),
			Platform:      detectPlatform(meta.Conference.Provider),
			HasTranscript: hasTranscript(transcripts[id]),
			Notes:         resolveNotes(doc, panelsMap[id]),
			Overview:      stringField(doc, "overview", ""),
			Summary:       stringField(doc, "summary", ""),
			Metadata:      residual(doc),
		}
		if ref, ok := folders[id]; ok {
			m.FolderID = ref.id
			m.FolderName = ref.name
		}
		meetings = append(meetings, m)
	}

	// Stable by requirement: records lacking a start timestamp keep their
	// encounter order after all records that have one.
	sort.SliceStable(meetings, func(i, j int) bool {
		a, b := meetings[i].StartTS, meetings[j].StartTS
		if (a == "") != (b == "") {
			return a != ""
		}
		return a > b
	})
	return meetings, nil
}

// resolveID returns the first non-empty identity among the candidate
// fields, falling back to the document map key.
func resolveID(doc map[string]any, key string) string {
	for _, field := range idCandidates {
		if v, ok := doc[field].(string); ok && v != "" {
			return v
		}
	}
	return key
}

// stringField returns the named string field of doc, or def when it is
// absent, empty, or not a string.
func stringField(doc map[string]any, name, def string) string {
	if v, ok := doc[name].(string); ok && v != "" {
		return v
	}
	return def
}

// decodeMeta decodes a meetingsMetadata entry, tolerating absence and
// per-entry garbage.
func decodeMeta(raw json.RawMessage) meetingMeta {
	var meta meetingMeta
	if raw != nil {
		_ = json.Unmarshal(raw, &meta) // best effort, absence is valid
	}
	return meta
}

// participants extracts participant display names from the document's
// people list, deduplicated case-insensitively in first-seen order.  Only
// when that yields nothing does it fall back to the calendar attendee
// list; the two sources are never merged.
func participants(doc map[string]any, meta meetingMeta) []string {
	var names []string
	if people, ok := doc["people"].([]any); ok {
		for _, p := range people {
			if person, ok := p.(map[string]any); ok {
				if name, ok := person["name"].(string); ok {
					names = append(names, name)
				}
			}
		}
	}
	if out := dedupeFold(names); len(out) > 0 {
		return out
	}
	names = names[:0]
	for _, att := range meta.Attendees {
		names = append(names, att.Name)
	}
	out := dedupeFold(names)
	if out == nil {
		// Always an array on the wire, even with no one recorded.
		out = []string{}
	}
	return out
}

// hasTranscript reports whether raw holds a non-empty transcript in
// either supported shape.
func hasTranscript(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var t Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return false
	}
	return !t.Empty()
}

// resolveNotes runs the notes fallback chain: plain text, then markdown,
// then the structured rich-text tree, then AI panel content.  The first
// non-empty result wins and is returned verbatim.
func resolveNotes(doc map[string]any, rawPanels json.RawMessage) string {
	if v, ok := doc["notes_plain"].(string); ok && v != "" {
		return v
	}
	if v, ok := doc["notes_markdown"].(string); ok && v != "" {
		return v
	}
	if txt := treeText(doc["notes"]); txt != "" {
		return txt
	}
	return panelNotes(rawPanels)
}

// panelNotes returns the first usable AI panel content: a non-trivial
// original_content HTML string that is not merely a horizontal-rule
// separator, else the flattened text of the first structured panel body.
func panelNotes(rawPanels json.RawMessage) string {
	panels, err := orderedEntries(keyPanels, rawPanels)
	if err != nil {
		return ""
	}
	var firstTree string
	for _, ent := range panels {
		var panel map[string]any
		if err := json.Unmarshal(ent.raw, &panel); err != nil {
			continue
		}
		if html, ok := panel["original_content"].(string); ok {
			if trimmed := strings.TrimSpace(html); trimmed != "" && trimmed != "<hr>" {
				return trimmed
			}
		}
		if firstTree == "" {
			firstTree = treeText(panel["content"])
		}
	}
	return firstTree
}

// folderIndex builds the reverse mapping from document id to the first
// folder list containing it, resolving display names through
// documentListsMetadata.
func folderIndex(st *State) (map[string]folderRef, error) {
	lists, err := orderedEntries(keyLists, st.Collection(keyLists))
	if err != nil {
		return nil, err
	}
	listsMeta, err := objectMap(keyListsMetadata, st.Collection(keyListsMetadata))
	if err != nil {
		return nil, err
	}
	index := make(map[string]folderRef)
	for _, ent := range lists {
		var members []any
		if err := json.Unmarshal(ent.raw, &members); err != nil {
			continue
		}
		name := folderName(listsMeta[ent.key])
		for _, member := range members {
			id, ok := member.(string)
			if !ok || id == "" {
				continue
			}
			if _, seen := index[id]; !seen {
				index[id] = folderRef{id: ent.key, name: name}
			}
		}
	}
	return index, nil
}

// folderName extracts the title from a documentListsMetadata entry.
func folderName(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var meta struct {
		Title string `json:"title"`
	}
	_ = json.Unmarshal(raw, &meta)
	return meta.Title
}

// residual collects document fields the normalizer did not consume.
func residual(doc map[string]any) map[string]any {
	var extra map[string]any
	for key, value := range doc {
		if _, consumed := consumedFields[key]; consumed {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[key] = value
	}
	return extra
}
