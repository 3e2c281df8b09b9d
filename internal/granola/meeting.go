package granola

// In this file: the normalized meeting record and the platform enumeration.

// Platform identifies the conference platform a meeting took place on.
type Platform string

const (
	PlatformZoom  Platform = "zoom"
	PlatformMeet  Platform = "meet"
	PlatformTeams Platform = "teams"
	// PlatformOther is the catch-all for any recognized but unmapped
	// conference provider.
	PlatformOther Platform = "other"
)

// platformByProvider maps the calendar conference provider string onto the
// closed platform enumeration.  Unknown non-empty providers collapse to
// PlatformOther; an absent provider stays absent.
var platformByProvider = map[string]Platform{
	"google_meet":     PlatformMeet,
	"zoom":            PlatformZoom,
	"teams":           PlatformTeams,
	"microsoft_teams": PlatformTeams,
}

// detectPlatform resolves a provider string to a Platform.  The empty
// string maps to the empty Platform, not PlatformOther.
func detectPlatform(provider string) Platform {
	if provider == "" {
		return ""
	}
	if p, ok := platformByProvider[provider]; ok {
		return p
	}
	return PlatformOther
}

// Meeting is the canonical flattened representation of a meeting after
// merging all cache sub-structures.
type Meeting struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	StartTS       string         `json:"start_ts,omitempty"`
	EndTS         string         `json:"end_ts,omitempty"`
	Participants  []string       `json:"participants"`
	Platform      Platform       `json:"platform,omitempty"`
	HasTranscript bool           `json:"has_transcript"`
	Notes         string         `json:"notes,omitempty"`
	Overview      string         `json:"overview,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	FolderID      string         `json:"folder_id,omitempty"`
	FolderName    string         `json:"folder_name,omitempty"`
	// Metadata preserves document fields not otherwise modeled, for
	// forward compatibility and debugging.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// untitledMeeting is the placeholder title for documents without one.
const untitledMeeting = "Untitled Meeting"
