// Package granola reads the Granola desktop application's cache file and
// flattens it into normalized meeting records.
//
// The cache is a double-encoded JSON document: the outer object carries a
// "cache" key whose value is itself a JSON-encoded string (older builds of
// the application shipped it as a nested object instead, which is
// tolerated).  The resolved inner object must contain a "state" object
// holding up to five loosely related collections: documents, calendar
// metadata, transcripts, AI panels, and folder lists.  All of them are
// optional.
//
// The package is strictly read-only with respect to the cache file.
package granola

// In this file: the cache decoder.

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
)

const (
	cacheKey = "cache"
	stateKey = "state"
)

// state collection keys, read selectively by the normalizer.
const (
	keyDocuments     = "documents"
	keyMeetingsMeta  = "meetingsMetadata"
	keyTranscripts   = "transcripts"
	keyPanels        = "documentPanels"
	keyLists         = "documentLists"
	keyListsMetadata = "documentListsMetadata"
)

// State is the decoded "state" subtree of the cache.  Members are kept as
// raw JSON so that the normalizer can read the collections it knows about
// and leave everything else untouched.
type State struct {
	members map[string]json.RawMessage
}

// Collection returns the raw JSON value of the named state member, or nil
// if the member is absent.
func (s *State) Collection(name string) json.RawMessage {
	if s == nil {
		return nil
	}
	return s.members[name]
}

// DecodeFile opens path and decodes the cache it contains.  The file must
// be a regular, readable file; anything else is reported as a ParseError
// with kind SOURCE_UNREADABLE.
func DecodeFile(path string) (*State, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, parseErr(KindSourceUnreadable, path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, parseErrf(KindSourceUnreadable, path, "not a regular file")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, parseErr(KindSourceUnreadable, path, err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode performs the double-JSON decode on the cache read from r and
// returns its "state" subtree.
func Decode(r io.Reader) (*State, error) {
	var outer map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&outer); err != nil {
		return nil, parseErr(KindMalformedOuter, "", err)
	}

	rawCache, ok := outer[cacheKey]
	if !ok {
		return nil, parseErrf(KindMissingField, cacheKey, "key absent in outer document")
	}

	inner, err := resolveInner(rawCache)
	if err != nil {
		return nil, err
	}

	rawState, ok := inner[stateKey]
	if !ok {
		return nil, parseErrf(KindMissingField, stateKey, "key absent in inner document")
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(rawState, &members); err != nil {
		return nil, parseErr(KindUnexpectedShape, stateKey, err)
	}
	return &State{members: members}, nil
}

// resolveInner unwraps the "cache" value.  A JSON string gets a second
// decode pass; an object is used directly (legacy cache layout).
func resolveInner(raw json.RawMessage) (map[string]json.RawMessage, error) {
	switch firstByte(raw) {
	case '"':
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, parseErr(KindMalformedOuter, cacheKey, err)
		}
		var inner map[string]json.RawMessage
		if err := json.Unmarshal([]byte(encoded), &inner); err != nil {
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				return nil, parseErrf(KindUnexpectedShape, cacheKey, "inner document is %s, not an object", typeErr.Value)
			}
			return nil, parseErr(KindMalformedInner, cacheKey, err)
		}
		return inner, nil
	case '{':
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, parseErr(KindMalformedInner, cacheKey, err)
		}
		return inner, nil
	default:
		return nil, parseErrf(KindUnexpectedShape, cacheKey, "value is neither a JSON string nor an object")
	}
}

// firstByte returns the first non-space byte of raw, or 0 if there is none.
func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// entry is a key-value pair of a JSON object, in document order.
type entry struct {
	key string
	raw json.RawMessage
}

// orderedEntries decodes raw as a JSON object, preserving the order in
// which keys appear in the document.  A nil raw yields a nil slice.  map
// iteration order in Go is randomized, so collections whose encounter
// order matters (the stable sort over documents) go through here instead
// of a plain map.
func orderedEntries(name string, raw json.RawMessage) ([]entry, error) {
	if raw == nil || isJSONNull(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, parseErr(KindUnexpectedShape, name, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, parseErrf(KindUnexpectedShape, name, "expected an object, got %v", tok)
	}
	var entries []entry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, parseErr(KindUnexpectedShape, name, err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, parseErrf(KindUnexpectedShape, name, "non-string key %v", keyTok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, parseErr(KindUnexpectedShape, name, err)
		}
		entries = append(entries, entry{key: key, raw: value})
	}
	return entries, nil
}

// objectMap decodes raw as a plain JSON object.  A nil or JSON-null raw
// yields a nil map; any other non-object value is an UNEXPECTED_SHAPE
// error.
func objectMap(name string, raw json.RawMessage) (map[string]json.RawMessage, error) {
	if raw == nil || isJSONNull(raw) {
		return nil, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, parseErrf(KindUnexpectedShape, name, "expected an object, got %s", typeErr.Value)
		}
		return nil, parseErr(KindUnexpectedShape, name, err)
	}
	return m, nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
