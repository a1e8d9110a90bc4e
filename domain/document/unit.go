package document

// Content sentinels. A unit's content is NULL until claimed for OCR.
const (
	ContentClaimed = "WIP"
	ContentFailed  = "ERROR"
)

// State is the OCR lifecycle position of a unit.
type State string

// State values.
const (
	StatePending   State = "pending"
	StateClaimed   State = "claimed"
	StateExtracted State = "extracted"
	StateFailed    State = "failed"
)

// Sentinels returns the content values that never carry extracted text.
func Sentinels() []string {
	return []string{ContentClaimed, ContentFailed}
}

// Unit is one processable OCR and embedding target, usually a single page.
type Unit struct {
	id        int64
	role      string
	bucket    string
	key       string
	content   *string
	embedding []float64
}

// NewUnit creates a pending unit. The role is taken from the first path
// segment of sourceKey, the key of the file the page was split from.
func NewUnit(bucket, key, sourceKey string) Unit {
	return Unit{role: RoleFromKey(sourceKey), bucket: bucket, key: key}
}

// ReconstructUnit recreates a Unit from persistence.
func ReconstructUnit(id int64, role, bucket, key string, content *string, embedding []float64) Unit {
	u := Unit{id: id, role: role, bucket: bucket, key: key}
	if content != nil {
		c := *content
		u.content = &c
	}
	if embedding != nil {
		u.embedding = make([]float64, len(embedding))
		copy(u.embedding, embedding)
	}
	return u
}

// ID returns the surrogate id.
func (u Unit) ID() int64 { return u.id }

// Role returns the access tag.
func (u Unit) Role() string { return u.role }

// Bucket returns the bucket holding the page object.
func (u Unit) Bucket() string { return u.bucket }

// Key returns the page object key.
func (u Unit) Key() string { return u.key }

// Content returns the stored content and whether it is set at all.
func (u Unit) Content() (string, bool) {
	if u.content == nil {
		return "", false
	}
	return *u.content, true
}

// Text returns the extracted text, or empty when the unit has none.
func (u Unit) Text() string {
	if u.State() != StateExtracted {
		return ""
	}
	return *u.content
}

// Embedding returns a copy of the vector, nil when not embedded yet.
func (u Unit) Embedding() []float64 {
	if u.embedding == nil {
		return nil
	}
	cp := make([]float64, len(u.embedding))
	copy(cp, u.embedding)
	return cp
}

// State derives the lifecycle state from the content column.
func (u Unit) State() State {
	switch {
	case u.content == nil:
		return StatePending
	case *u.content == ContentClaimed:
		return StateClaimed
	case *u.content == ContentFailed:
		return StateFailed
	default:
		return StateExtracted
	}
}

// Embeddable reports whether the unit has text and still lacks a vector.
func (u Unit) Embeddable() bool {
	return u.State() == StateExtracted && u.embedding == nil
}

// WithKey returns a copy of the unit under a different key.
func (u Unit) WithKey(key string) Unit {
	u.key = key
	return u
}
