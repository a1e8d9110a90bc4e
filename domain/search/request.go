package search

// Defaults applied when a request leaves a limit unset.
const (
	DefaultTopN             = 3
	DefaultMaxContentLength = 1500
)

// Request is one retrieval call.
type Request struct {
	query            string
	roles            []string
	topN             int
	maxContentLength int
	priorityPrefixes []string
	sourcesOnly      bool
}

// RequestOption configures a Request.
type RequestOption func(*Request)

// WithTopN sets the number of results returned.
func WithTopN(n int) RequestOption {
	return func(r *Request) { r.topN = n }
}

// WithMaxContentLength sets the number of characters of content returned per result.
func WithMaxContentLength(n int) RequestOption {
	return func(r *Request) { r.maxContentLength = n }
}

// WithPriorityPrefixes boosts results whose key starts with any prefix.
func WithPriorityPrefixes(prefixes []string) RequestOption {
	return func(r *Request) { r.priorityPrefixes = copyStrings(prefixes) }
}

// WithSourcesOnly omits content from results.
func WithSourcesOnly(sourcesOnly bool) RequestOption {
	return func(r *Request) { r.sourcesOnly = sourcesOnly }
}

// NewRequest creates a Request for query on behalf of a caller holding roles.
func NewRequest(query string, roles []string, opts ...RequestOption) Request {
	r := Request{query: query, roles: copyStrings(roles)}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Query returns the query text.
func (r Request) Query() string { return r.query }

// Roles returns the caller's roles.
func (r Request) Roles() []string { return copyStrings(r.roles) }

// TopN returns the requested result count, zero when unset.
func (r Request) TopN() int { return r.topN }

// MaxContentLength returns the content limit, zero when unset.
func (r Request) MaxContentLength() int { return r.maxContentLength }

// PriorityPrefixes returns the boosted key prefixes.
func (r Request) PriorityPrefixes() []string { return copyStrings(r.priorityPrefixes) }

// SourcesOnly reports whether content is omitted.
func (r Request) SourcesOnly() bool { return r.sourcesOnly }

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
