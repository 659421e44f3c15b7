package punch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Comment is one note attached to a punch. It keeps the raw author text and
// the structured annotations extracted from it. Comments belong to exactly
// one punch and insertion order is significant.
type Comment struct {
	ID        string
	Raw       string
	Comment   string
	Objects   []Object
	Tags      []Tag
	Timestamp time.Time
}

// CommentOption configures a new comment.
type CommentOption func(*Comment)

// CommentAt overrides the comment timestamp (default: now).
func CommentAt(t time.Time) CommentOption {
	return func(c *Comment) { c.Timestamp = t }
}

// WithCommentID sets an explicit comment ID, used when decoding records
// that already carry one.
func WithCommentID(id string) CommentOption {
	return func(c *Comment) { c.ID = id }
}

// NewComment builds a comment from raw author text, extracting annotations
// with the default extractor.
func NewComment(raw string, opts ...CommentOption) Comment {
	ex := Extract(raw)
	c := Comment{
		ID:        uuid.NewString(),
		Raw:       raw,
		Comment:   ex.Comment,
		Objects:   ex.Objects,
		Tags:      ex.Tags,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// HasTag reports whether the comment carries a #tag with the given name.
func (c *Comment) HasTag(name string) bool {
	for _, t := range c.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Object returns the value of the @key:value annotation with the given key,
// or nil if absent.
func (c *Comment) Object(key string) any {
	for _, o := range c.Objects {
		if o.Key == key {
			return o.Value
		}
	}
	return nil
}

// commentJSON is the wire/file shape of a comment. Annotations travel
// re-embedded in the raw text and are re-extracted on decode, so the two
// sides never disagree about extraction rules stored separately.
type commentJSON struct {
	ID        string `json:"id,omitempty"`
	Comment   string `json:"comment"`
	Timestamp int64  `json:"timestamp"`
}

// MarshalJSON encodes the comment as {id, comment, timestamp} with the
// raw annotated text and a millisecond timestamp.
func (c Comment) MarshalJSON() ([]byte, error) {
	return json.Marshal(commentJSON{
		ID:        c.ID,
		Comment:   c.Raw,
		Timestamp: toMillis(c.Timestamp),
	})
}

// UnmarshalJSON decodes a wire comment, re-running annotation extraction on
// the embedded text. A missing ID gets a fresh one.
func (c *Comment) UnmarshalJSON(data []byte) error {
	var w commentJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	opts := []CommentOption{CommentAt(fromMillis(w.Timestamp))}
	if w.ID != "" {
		opts = append(opts, WithCommentID(w.ID))
	}
	*c = NewComment(w.Comment, opts...)
	return nil
}
