package mcp

// In this file: MCP tool definitions and handler implementations.

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/oviedran/granola-mcp/internal/export"
	"github.com/oviedran/granola-mcp/internal/granola"
	"github.com/oviedran/granola-mcp/internal/isotime"
	"github.com/oviedran/granola-mcp/internal/store"
)

const (
	defLimit = 50
	minLimit = 1
	maxLimit = 500
)

// meetingSummary is the JSON-serialisable summary view of a meeting used
// by the list and search tools.
type meetingSummary struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	StartTS       string   `json:"start_ts,omitempty"`
	EndTS         string   `json:"end_ts,omitempty"`
	Participants  []string `json:"participants"`
	Platform      string   `json:"platform,omitempty"`
	HasTranscript bool     `json:"has_transcript"`
}

// meetingPage is a page of summaries plus the cursor for the next page.
type meetingPage struct {
	Items      []meetingSummary `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

func summaryOf(m *granola.Meeting) meetingSummary {
	return meetingSummary{
		ID:            m.ID,
		Title:         m.Title,
		StartTS:       m.StartTS,
		EndTS:         m.EndTS,
		Participants:  m.Participants,
		Platform:      string(m.Platform),
		HasTranscript: m.HasTranscript,
	}
}

// ─── list_meetings ────────────────────────────────────────────────────────────

func (s *Server) toolListMeetings() mcpsrv.ServerTool {
	tool := mcplib.NewTool("list_meetings",
		mcplib.WithDescription(`List meetings from the Granola cache, newest first.

Supports substring filtering over title, notes, and participants, a
participant filter, and an ISO 8601 time window.  Results are paginated:
pass the returned next_cursor back as 'cursor' to fetch the next page.`),
		mcplib.WithString("q",
			mcplib.Description("Case-insensitive substring to match against title, notes, and participants."),
		),
		mcplib.WithString("participants",
			mcplib.Description("Comma-separated participant names; a meeting matches if any of them attended."),
		),
		mcplib.WithString("from_ts",
			mcplib.Description("ISO 8601 lower bound on the meeting start timestamp."),
		),
		mcplib.WithString("to_ts",
			mcplib.Description("ISO 8601 upper bound on the meeting start timestamp."),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of meetings to return (1-500, default 50)."),
		),
		mcplib.WithString("cursor",
			mcplib.Description("Opaque pagination cursor from a previous call."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleListMeetings}
}

func (s *Server) handleListMeetings(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sn, err := s.snapshot(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("list_meetings: %w", err)), nil
	}

	f := recordFilter{
		q:            strings.ToLower(strings.TrimSpace(argOr(req, "q"))),
		participants: listArg(req, "participants"),
		from:         boundArg(req, "from_ts"),
		to:           boundArg(req, "to_ts"),
	}

	var matched []meetingSummary
	for i := range sn.Meetings {
		if f.matches(&sn.Meetings[i]) {
			matched = append(matched, summaryOf(&sn.Meetings[i]))
		}
	}

	page, err := paginate(matched, req)
	if err != nil {
		return resultErr(fmt.Errorf("list_meetings: %w", err)), nil
	}
	result, err := resultJSON(page)
	if err != nil {
		return resultErr(fmt.Errorf("list_meetings: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── get_meeting ──────────────────────────────────────────────────────────────

func (s *Server) toolGetMeeting() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_meeting",
		mcplib.WithDescription("Get the full record of a single meeting by its id, including notes, folder, and residual metadata."),
		mcplib.WithString("id",
			mcplib.Description("The meeting id as returned by list_meetings or search_meetings."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetMeeting}
}

func (s *Server) handleGetMeeting(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, ok := stringArg(req, "id")
	if !ok || id == "" {
		return resultErr(errors.New("get_meeting: id is required")), nil
	}

	m, err := s.store.Meeting(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resultText(fmt.Sprintf("Meeting %q not found.", id)), nil
		}
		return resultErr(fmt.Errorf("get_meeting: %w", err)), nil
	}

	result, err := resultJSON(m)
	if err != nil {
		return resultErr(fmt.Errorf("get_meeting: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── search_meetings ──────────────────────────────────────────────────────────

func (s *Server) toolSearchMeetings() mcpsrv.ServerTool {
	tool := mcplib.NewTool("search_meetings",
		mcplib.WithDescription(`Full-text search across meeting titles, notes, and participants.

When the server runs with the SQLite index enabled, matching uses FTS5
ranking; otherwise a linear substring scan over the snapshot.  Filters
narrow the result set after matching.`),
		mcplib.WithString("q",
			mcplib.Description("The search query."),
			mcplib.Required(),
		),
		mcplib.WithString("platform",
			mcplib.Description("Restrict to one platform: zoom, meet, teams, or other."),
		),
		mcplib.WithString("participants",
			mcplib.Description("Comma-separated participant names; a meeting matches if any of them attended."),
		),
		mcplib.WithString("after",
			mcplib.Description("ISO 8601 lower bound on the meeting start timestamp."),
		),
		mcplib.WithString("before",
			mcplib.Description("ISO 8601 upper bound on the meeting start timestamp."),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum number of meetings to return (1-500, default 50)."),
		),
		mcplib.WithString("cursor",
			mcplib.Description("Opaque pagination cursor from a previous call."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleSearchMeetings}
}

func (s *Server) handleSearchMeetings(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	q, ok := stringArg(req, "q")
	if !ok || strings.TrimSpace(q) == "" {
		return resultErr(errors.New("search_meetings: q is required")), nil
	}

	sn, err := s.snapshot(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("search_meetings: %w", err)), nil
	}

	f := recordFilter{
		participants: listArg(req, "participants"),
		platform:     strings.ToLower(argOr(req, "platform")),
		from:         boundArg(req, "after"),
		to:           boundArg(req, "before"),
	}

	candidates := s.searchCandidates(ctx, sn, q)
	var matched []meetingSummary
	for _, m := range candidates {
		if f.matches(m) {
			matched = append(matched, summaryOf(m))
		}
	}

	page, err := paginate(matched, req)
	if err != nil {
		return resultErr(fmt.Errorf("search_meetings: %w", err)), nil
	}
	result, err := resultJSON(page)
	if err != nil {
		return resultErr(fmt.Errorf("search_meetings: serialise: %w", err)), nil
	}
	return result, nil
}

// searchCandidates returns the records matching q, best first.  The FTS
// index is used when attached; an index failure degrades to the linear
// scan rather than failing the call.
func (s *Server) searchCandidates(ctx context.Context, sn *store.Snapshot, q string) []*granola.Meeting {
	if s.idx != nil {
		ids, err := s.idx.Search(ctx, q, maxLimit)
		if err == nil {
			out := make([]*granola.Meeting, 0, len(ids))
			for _, id := range ids {
				if m := sn.Meeting(id); m != nil {
					out = append(out, m)
				}
			}
			return out
		}
		s.logger.WarnContext(ctx, "mcp: fts search failed, falling back to scan", "error", err)
	}

	needle := strings.ToLower(q)
	var out []*granola.Meeting
	for i := range sn.Meetings {
		if haystackContains(&sn.Meetings[i], needle) {
			out = append(out, &sn.Meetings[i])
		}
	}
	return out
}

// ─── get_transcript ───────────────────────────────────────────────────────────

func (s *Server) toolGetTranscript() mcpsrv.ServerTool {
	tool := mcplib.NewTool("get_transcript",
		mcplib.WithDescription(`Retrieve the transcript of a meeting.

Returns either an ordered list of speech segments (speaker, text, start
timestamp) or, for older cache entries, the flattened transcript text
plus the speaker list.`),
		mcplib.WithString("id",
			mcplib.Description("The meeting id."),
			mcplib.Required(),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleGetTranscript}
}

// transcriptResult is the JSON shape returned by get_transcript.
type transcriptResult struct {
	ID       string            `json:"id"`
	Speakers []string          `json:"speakers,omitempty"`
	Segments []granola.Segment `json:"segments,omitempty"`
	Content  string            `json:"content,omitempty"`
}

func (s *Server) handleGetTranscript(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, ok := stringArg(req, "id")
	if !ok || id == "" {
		return resultErr(errors.New("get_transcript: id is required")), nil
	}

	tr, err := s.store.Transcript(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resultText(fmt.Sprintf("Meeting %q not found.", id)), nil
		}
		return resultErr(fmt.Errorf("get_transcript: %w", err)), nil
	}
	if tr.Empty() {
		return resultText(fmt.Sprintf("Meeting %q has no transcript.", id)), nil
	}

	result, err := resultJSON(transcriptResult{
		ID:       id,
		Speakers: tr.SpeakerSet(),
		Segments: tr.Segments,
		Content:  tr.Content,
	})
	if err != nil {
		return resultErr(fmt.Errorf("get_transcript: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── export_markdown ──────────────────────────────────────────────────────────

func (s *Server) toolExportMarkdown() mcpsrv.ServerTool {
	tool := mcplib.NewTool("export_markdown",
		mcplib.WithDescription("Export a meeting as deterministic Markdown, suitable for notes archives and diffs."),
		mcplib.WithString("id",
			mcplib.Description("The meeting id."),
			mcplib.Required(),
		),
		mcplib.WithString("sections",
			mcplib.Description("Comma-separated sections to include: header, attendees, notes.  Default is all three."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleExportMarkdown}
}

func (s *Server) handleExportMarkdown(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	id, ok := stringArg(req, "id")
	if !ok || id == "" {
		return resultErr(errors.New("export_markdown: id is required")), nil
	}

	m, err := s.store.Meeting(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return resultText(fmt.Sprintf("Meeting %q not found.", id)), nil
		}
		return resultErr(fmt.Errorf("export_markdown: %w", err)), nil
	}

	return resultText(export.Markdown(m, listArg(req, "sections"))), nil
}

// ─── meeting_stats ────────────────────────────────────────────────────────────

func (s *Server) toolMeetingStats() mcpsrv.ServerTool {
	tool := mcplib.NewTool("meeting_stats",
		mcplib.WithDescription("Count meetings per day or per ISO week over a time window."),
		mcplib.WithString("window",
			mcplib.Description("Time window: 7d, 30d, or 90d.  Default is all recorded history."),
		),
		mcplib.WithString("group_by",
			mcplib.Description("Aggregation period: \"day\" (default) or \"week\"."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleMeetingStats}
}

// statsPeriod is one aggregation bucket of meeting_stats.
type statsPeriod struct {
	Period   string `json:"period"`
	Meetings int    `json:"meetings"`
}

// statsResult is the JSON shape returned by meeting_stats.
type statsResult struct {
	Window   string        `json:"window,omitempty"`
	GroupBy  string        `json:"group_by"`
	Total    int           `json:"total"`
	ByPeriod []statsPeriod `json:"by_period"`
}

// windows maps the accepted window names onto durations.
var windows = map[string]time.Duration{
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

func (s *Server) handleMeetingStats(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	groupBy := argOr(req, "group_by")
	if groupBy == "" {
		groupBy = "day"
	}
	if groupBy != "day" && groupBy != "week" {
		return resultErr(fmt.Errorf("meeting_stats: group_by must be \"day\" or \"week\", got %q", groupBy)), nil
	}
	window := argOr(req, "window")
	var cutoff time.Time
	if window != "" {
		d, ok := windows[window]
		if !ok {
			return resultErr(fmt.Errorf("meeting_stats: window must be one of 7d, 30d, 90d, got %q", window)), nil
		}
		cutoff = time.Now().UTC().Add(-d)
	}

	sn, err := s.snapshot(ctx)
	if err != nil {
		return resultErr(fmt.Errorf("meeting_stats: %w", err)), nil
	}

	counts := make(map[string]int)
	total := 0
	for _, m := range sn.Meetings {
		if m.StartTS == "" {
			continue
		}
		ts, err := isotime.Parse(m.StartTS)
		if err != nil {
			continue
		}
		if !cutoff.IsZero() && ts.Before(cutoff) {
			continue
		}
		key := isotime.DateKey(ts)
		if groupBy == "week" {
			key = isotime.WeekKey(ts)
		}
		counts[key]++
		total++
	}

	periods := make([]statsPeriod, 0, len(counts))
	for period, n := range counts {
		periods = append(periods, statsPeriod{Period: period, Meetings: n})
	}
	sort.Slice(periods, func(i, j int) bool { return periods[i].Period < periods[j].Period })

	result, err := resultJSON(statsResult{
		Window:   window,
		GroupBy:  groupBy,
		Total:    total,
		ByPeriod: periods,
	})
	if err != nil {
		return resultErr(fmt.Errorf("meeting_stats: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── cache_status ─────────────────────────────────────────────────────────────

func (s *Server) toolCacheStatus() mcpsrv.ServerTool {
	tool := mcplib.NewTool("cache_status",
		mcplib.WithDescription("Report the cache file path, size, last load time, record count, and structural validity.  Never fails, even on a broken cache."),
		mcplib.WithReadOnlyHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleCacheStatus}
}

// statusResult is the JSON shape returned by cache_status.
type statusResult struct {
	Path         string `json:"path"`
	Size         string `json:"size"`
	SizeBytes    int64  `json:"size_bytes"`
	Readable     bool   `json:"readable"`
	Valid        bool   `json:"valid_structure"`
	RecordCount  int    `json:"record_count"`
	LastLoadedTS string `json:"last_loaded_ts,omitempty"`
	Profile      string `json:"profile"`
	Error        string `json:"error,omitempty"`
}

func (s *Server) handleCacheStatus(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	health := s.store.HealthCheck(ctx)
	info := s.store.Info(ctx)

	profile := "linear"
	if s.idx != nil {
		profile = "sqlite"
	}
	status := statusResult{
		Path:        info.Path,
		Size:        humanize.Bytes(uint64(info.SizeBytes)),
		SizeBytes:   info.SizeBytes,
		Readable:    health.Readable,
		Valid:       health.Valid,
		RecordCount: info.RecordCount,
		Profile:     profile,
		Error:       health.Error,
	}
	if !info.LastLoadedTS.IsZero() {
		status.LastLoadedTS = info.LastLoadedTS.Format(isotime.Layout)
	}

	result, err := resultJSON(status)
	if err != nil {
		return resultErr(fmt.Errorf("cache_status: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── refresh_cache ────────────────────────────────────────────────────────────

func (s *Server) toolRefreshCache() mcpsrv.ServerTool {
	tool := mcplib.NewTool("refresh_cache",
		mcplib.WithDescription("Force a fresh read of the cache file, replacing the in-memory snapshot.  Use after the Granola application has synced new meetings."),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleRefreshCache}
}

// refreshResult is the JSON shape returned by refresh_cache.
type refreshResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	RecordCount int    `json:"record_count"`
}

func (s *Server) handleRefreshCache(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	sn, err := s.store.Load(ctx, true)
	if err != nil {
		// Status shape, not a protocol error: a refresh probe must not
		// crash the caller.
		result, jerr := resultJSON(refreshResult{
			Success: false,
			Message: err.Error(),
		})
		if jerr != nil {
			return resultErr(fmt.Errorf("refresh_cache: serialise: %w", jerr)), nil
		}
		return result, nil
	}

	if s.idx != nil {
		s.idxMu.Lock()
		if err := s.idx.Rebuild(ctx, sn.Meetings); err != nil {
			s.logger.WarnContext(ctx, "mcp: index rebuild failed after refresh", "error", err)
		} else {
			s.indexed = sn
		}
		s.idxMu.Unlock()
	}

	s.logger.InfoContext(ctx, "mcp: cache refreshed", "records", len(sn.Meetings))
	result, err := resultJSON(refreshResult{
		Success:     true,
		Message:     "cache refreshed",
		RecordCount: len(sn.Meetings),
	})
	if err != nil {
		return resultErr(fmt.Errorf("refresh_cache: serialise: %w", err)), nil
	}
	return result, nil
}

// ─── filtering and pagination ─────────────────────────────────────────────────

// recordFilter narrows a record set by substring, participants, platform,
// and a start-timestamp window.
type recordFilter struct {
	q            string // lowercased substring, empty means no filter
	participants []string
	platform     string
	from, to     string // normalized ISO bounds, empty means unbounded
}

func (f *recordFilter) matches(m *granola.Meeting) bool {
	if f.q != "" && !haystackContains(m, f.q) {
		return false
	}
	if len(f.participants) > 0 && !anyParticipant(m, f.participants) {
		return false
	}
	if f.platform != "" && string(m.Platform) != f.platform {
		return false
	}
	if f.from != "" && m.StartTS < f.from {
		return false
	}
	if f.to != "" && m.StartTS > f.to {
		return false
	}
	return true
}

// haystackContains reports whether needle (already lowercased) occurs in
// the meeting title, notes, or participant names.
func haystackContains(m *granola.Meeting, needle string) bool {
	if strings.Contains(strings.ToLower(m.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(m.Notes), needle) {
		return true
	}
	for _, p := range m.Participants {
		if strings.Contains(strings.ToLower(p), needle) {
			return true
		}
	}
	return false
}

// anyParticipant reports whether any of the wanted names attended,
// compared case-insensitively.
func anyParticipant(m *granola.Meeting, want []string) bool {
	for _, w := range want {
		for _, p := range m.Participants {
			if strings.EqualFold(w, p) {
				return true
			}
		}
	}
	return false
}

// paginate slices items according to the request's limit and cursor.  The
// cursor is a decimal offset produced by a previous call.
func paginate(items []meetingSummary, req mcplib.CallToolRequest) (meetingPage, error) {
	limit := intArg(req, "limit", defLimit)
	limit = max(min(limit, maxLimit), minLimit)

	start := 0
	if cursor, ok := stringArg(req, "cursor"); ok && cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return meetingPage{}, fmt.Errorf("invalid cursor %q", cursor)
		}
		start = n
	}
	if start > len(items) {
		start = len(items)
	}
	end := min(start+limit, len(items))

	page := meetingPage{Items: items[start:end]}
	if page.Items == nil {
		page.Items = []meetingSummary{}
	}
	if end < len(items) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// argOr returns the named string argument or the empty string.
func argOr(req mcplib.CallToolRequest, name string) string {
	v, _ := stringArg(req, name)
	return v
}

// boundArg returns the named timestamp argument normalized into the
// canonical ISO layout, so it compares lexicographically with record
// timestamps.
func boundArg(req mcplib.CallToolRequest, name string) string {
	v := argOr(req, name)
	if v == "" {
		return ""
	}
	return isotime.Ensure(v)
}

// splitList splits a comma-separated value into trimmed, non-empty parts.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
