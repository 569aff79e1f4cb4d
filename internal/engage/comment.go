package engage

// Comment is a candidate comment fetched from the platform. It is read-only
// input to the eligibility filter and is never mutated.
type Comment struct {
	ID       string
	ThreadID string
	AuthorID string
	Username string
	Text     string
}
