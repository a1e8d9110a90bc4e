package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCorrelationID indicates a batch result id that does not name a unit.
var ErrInvalidCorrelationID = errors.New("invalid correlation id")

const correlationPrefix = "doc-"

// PageKey returns the key of page n (1-based) split from key.
func PageKey(key string, n int) string {
	return fmt.Sprintf("%s/page-%d.pdf", key, n)
}

// PagePrefix returns the common prefix of every page key of key.
func PagePrefix(key string) string {
	return key + "/page-"
}

// PageNumber parses the page number out of a key produced by PageKey.
func PageNumber(pageKey string) (int, bool) {
	i := strings.LastIndex(pageKey, "/page-")
	if i < 0 || !strings.HasSuffix(pageKey, ".pdf") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(pageKey[i+len("/page-"):], ".pdf"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// RoleFromKey returns the first path segment of key, the namespace that
// decides who may read the file's pages.
func RoleFromKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if i := strings.Index(key, "/"); i >= 0 {
		return key[:i]
	}
	return key
}

// IsDirectoryMarker reports whether key is a placeholder for a folder.
func IsDirectoryMarker(key string) bool {
	return key == "" || strings.HasSuffix(key, "/")
}

// CorrelationID returns the batch request id used for a unit.
func CorrelationID(unitID int64) string {
	return correlationPrefix + strconv.FormatInt(unitID, 10)
}

// ParseCorrelationID recovers the unit id from a batch request id.
func ParseCorrelationID(id string) (int64, error) {
	raw, ok := strings.CutPrefix(id, correlationPrefix)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCorrelationID, id)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCorrelationID, id)
	}
	return n, nil
}
