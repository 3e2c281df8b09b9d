package granola

// In this file: timestamp normalization for the three shapes the cache is
// known to contain.

import (
	"fmt"

	"github.com/oviedran/granola-mcp/internal/isotime"
)

// normalizeTimestamp converts whatever timestamp representation the cache
// holds into a canonical ISO 8601 string.  Three input shapes are handled:
// ISO strings pass through with the offset form normalized, numbers are
// interpreted as epoch seconds (or milliseconds above the magnitude
// threshold), and anything else is stringified rather than dropped.  A nil
// value yields the empty string.
func normalizeTimestamp(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return isotime.Ensure(v)
	case float64:
		return isotime.FromEpoch(v).Format(isotime.Layout)
	case int64:
		return isotime.FromEpoch(float64(v)).Format(isotime.Layout)
	case int:
		return isotime.FromEpoch(float64(v)).Format(isotime.Layout)
	default:
		return fmt.Sprint(v)
	}
}
