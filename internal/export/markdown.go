// Package export renders meeting records as deterministic Markdown,
// suitable for diffing and archival.
package export

import (
	"fmt"
	"strings"

	"github.com/oviedran/granola-mcp/internal/granola"
)

// Section names selectable by callers.
const (
	SectionHeader    = "header"
	SectionAttendees = "attendees"
	SectionNotes     = "notes"
)

// DefaultSections is the section set used when the caller does not select
// any.
var DefaultSections = []string{SectionHeader, SectionAttendees, SectionNotes}

// Markdown renders a meeting into Markdown.  sections selects which parts
// are included; nil means DefaultSections.  Output is deterministic for a
// given record.
func Markdown(m *granola.Meeting, sections []string) string {
	if len(sections) == 0 {
		sections = DefaultSections
	}
	selected := make(map[string]bool, len(sections))
	for _, s := range sections {
		selected[strings.ToLower(strings.TrimSpace(s))] = true
	}

	var parts []string
	if selected[SectionHeader] {
		parts = append(parts, header(m)...)
	}
	if selected[SectionAttendees] {
		parts = append(parts, "## Attendees", attendeeList(m.Participants), "")
	}
	if selected[SectionNotes] && m.Notes != "" {
		parts = append(parts, "## Notes", m.Notes, "")
	}
	return strings.TrimRight(strings.Join(parts, "\n"), "\n") + "\n"
}

func header(m *granola.Meeting) []string {
	when := m.StartTS
	if m.EndTS != "" {
		when += " - " + m.EndTS
	}
	parts := []string{
		"# " + m.Title,
		"",
		fmt.Sprintf("- ID: `%s`", m.ID),
		"- When: " + when,
	}
	if m.Platform != "" {
		parts = append(parts, "- Platform: "+string(m.Platform))
	}
	if m.FolderName != "" {
		parts = append(parts, "- Folder: "+m.FolderName)
	}
	return append(parts, "")
}

func attendeeList(participants []string) string {
	if len(participants) == 0 {
		return "- (none recorded)"
	}
	var sb strings.Builder
	for i, name := range participants {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString("- ")
		sb.WriteString(name)
	}
	return sb.String()
}
