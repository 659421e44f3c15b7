// Package punch defines the work-session value model: the Punch record, its
// embedded comments, and the annotation extractor that pulls structured
// @key:value objects and #tag[param] tags out of comment text.
//
// Punches are the unit of storage and synchronization. Every mutation
// touches the Updated timestamp, which is the sole input to last-write-wins
// conflict resolution during sync. User deletion never removes a record;
// it shrinks the punch to an {id, deleted} tombstone so the deletion can
// still propagate to remote backends.
package punch

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Validation errors. Check with errors.Is.
var (
	// ErrOutBeforeIn is returned when a punch-out time precedes punch-in.
	ErrOutBeforeIn = errors.New("punch out before punch in")

	// ErrMissingID is returned when a record has no id.
	ErrMissingID = errors.New("punch id is required")

	// ErrMissingIn is returned when a live record has no start timestamp.
	ErrMissingIn = errors.New("punch in time is required")

	// ErrCommentNotFound is returned when editing or removing a comment
	// by an id the punch does not contain.
	ErrCommentNotFound = errors.New("comment not found")
)

// RateSource resolves the hourly rate for a project. It is consulted once,
// at punch-in; later project configuration changes do not rewrite history.
type RateSource interface {
	HourlyRate(project string) float64
}

// Punch is one recorded work session.
type Punch struct {
	ID       string
	Project  string
	In       time.Time
	Out      *time.Time
	Rate     float64
	Comments []Comment
	Created  time.Time
	Updated  time.Time

	// Deleted marks a tombstone. Tombstones keep only ID and Updated
	// (the deletion time) so the deletion participates in sync.
	Deleted bool
}

// Option configures a new punch.
type Option func(*Punch)

// At overrides the punch-in time (default: now).
func At(t time.Time) Option {
	return func(p *Punch) { p.In = t }
}

// WithRate sets an explicit hourly rate, bypassing the RateSource.
func WithRate(rate float64) Option {
	return func(p *Punch) { p.Rate = rate }
}

// New starts a punch for the given project. The hourly rate is snapshotted
// from rates (nil means 0) and kept even if project configuration changes
// later.
func New(project string, rates RateSource, opts ...Option) *Punch {
	now := time.Now()
	p := &Punch{
		ID:      uuid.NewString(),
		Project: project,
		In:      now,
		Created: now,
		Updated: now,
	}
	if rates != nil {
		p.Rate = rates.HourlyRate(project)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate checks record invariants. Tombstones only need an id; live
// records need an id, a start time, and out >= in when punched out.
func (p *Punch) Validate() error {
	if p.ID == "" {
		return ErrMissingID
	}
	if p.Deleted {
		return nil
	}
	if p.In.IsZero() {
		return ErrMissingIn
	}
	if p.Out != nil && p.Out.Before(p.In) {
		return fmt.Errorf("%w: out=%s in=%s", ErrOutBeforeIn, p.Out.Format(time.RFC3339), p.In.Format(time.RFC3339))
	}
	return nil
}

// IsCurrent reports whether the session is still running.
func (p *Punch) IsCurrent() bool {
	return !p.Deleted && p.Out == nil
}

// IsTombstone reports whether the record is a soft-delete marker.
func (p *Punch) IsTombstone() bool {
	return p.Deleted
}

// Duration returns the session length. Running sessions measure up to now.
func (p *Punch) Duration() time.Duration {
	if p.Out != nil {
		return p.Out.Sub(p.In)
	}
	return time.Since(p.In)
}

// Touch sets Updated to now. Every mutating method calls it; callers
// changing fields directly must call it themselves.
func (p *Punch) Touch() {
	p.Updated = time.Now()
}

// PunchOut ends the session at the given time. Fails with ErrOutBeforeIn
// if the end precedes the start.
func (p *Punch) PunchOut(at time.Time) error {
	if at.Before(p.In) {
		return fmt.Errorf("%w: out=%s in=%s", ErrOutBeforeIn, at.Format(time.RFC3339), p.In.Format(time.RFC3339))
	}
	out := at
	p.Out = &out
	p.Touch()
	return nil
}

// AddComment appends a comment built from raw annotated text and returns it.
func (p *Punch) AddComment(raw string, opts ...CommentOption) Comment {
	c := NewComment(raw, opts...)
	p.Comments = append(p.Comments, c)
	p.Touch()
	return c
}

// EditComment replaces the text of the comment with the given id,
// re-extracting annotations. The comment keeps its id and timestamp.
func (p *Punch) EditComment(id, raw string) error {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			c := NewComment(raw, WithCommentID(id), CommentAt(p.Comments[i].Timestamp))
			p.Comments[i] = c
			p.Touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrCommentNotFound, id)
}

// RemoveComment deletes the comment with the given id, preserving the
// order of the remaining comments.
func (p *Punch) RemoveComment(id string) error {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			p.Comments = append(p.Comments[:i], p.Comments[i+1:]...)
			p.Touch()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrCommentNotFound, id)
}

// SetRate adjusts the snapshotted hourly rate.
func (p *Punch) SetRate(rate float64) {
	p.Rate = rate
	p.Touch()
}

// SetProject moves the punch to another project key.
func (p *Punch) SetProject(project string) {
	p.Project = project
	p.Touch()
}

// MarkDeleted turns the punch into a tombstone: every field except the id
// is dropped and Updated records the deletion time, so the tombstone wins
// or loses against remote edits under the same timestamp compare as live
// records.
func (p *Punch) MarkDeleted(at time.Time) {
	*p = Punch{
		ID:      p.ID,
		Deleted: true,
		Updated: at,
	}
}

// punchJSON is the wire/file shape of a punch. Timestamps are epoch
// milliseconds; a running session has a null out.
type punchJSON struct {
	ID       string    `json:"id"`
	Deleted  bool      `json:"deleted,omitempty"`
	Project  string    `json:"project,omitempty"`
	In       int64     `json:"in,omitempty"`
	Out      *int64    `json:"out"`
	Rate     float64   `json:"rate,omitempty"`
	Comments []Comment `json:"comments,omitempty"`
	Created  int64     `json:"created,omitempty"`
	Updated  int64     `json:"updated,omitempty"`
}

// tombstoneJSON is the shrunk shape persisted for deleted records.
type tombstoneJSON struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
	Updated int64  `json:"updated,omitempty"`
}

// MarshalJSON encodes the punch in wire shape. Tombstones shrink to
// {id, deleted, updated}.
func (p *Punch) MarshalJSON() ([]byte, error) {
	if p.Deleted {
		return json.Marshal(tombstoneJSON{
			ID:      p.ID,
			Deleted: true,
			Updated: toMillis(p.Updated),
		})
	}
	w := punchJSON{
		ID:       p.ID,
		Project:  p.Project,
		In:       toMillis(p.In),
		Rate:     p.Rate,
		Comments: p.Comments,
		Created:  toMillis(p.Created),
		Updated:  toMillis(p.Updated),
	}
	if p.Out != nil {
		out := toMillis(*p.Out)
		w.Out = &out
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a wire punch and validates it.
func (p *Punch) UnmarshalJSON(data []byte) error {
	var w punchJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Punch{
		ID:       w.ID,
		Deleted:  w.Deleted,
		Project:  w.Project,
		Rate:     w.Rate,
		Comments: w.Comments,
	}
	if w.Deleted {
		p.Updated = fromMillis(w.Updated)
		return p.Validate()
	}
	p.In = fromMillis(w.In)
	p.Created = fromMillis(w.Created)
	p.Updated = fromMillis(w.Updated)
	if w.Out != nil {
		out := fromMillis(*w.Out)
		p.Out = &out
	}
	return p.Validate()
}

// UpdatedMillis returns Updated as epoch milliseconds, the unit manifests
// use for conflict resolution.
func (p *Punch) UpdatedMillis() int64 {
	return toMillis(p.Updated)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
