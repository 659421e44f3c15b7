package punch

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// flatRates is a RateSource returning a fixed rate for every project.
type flatRates float64

func (r flatRates) HourlyRate(string) float64 { return float64(r) }

func TestNewSnapshotsRate(t *testing.T) {
	p := New("acme", flatRates(85))

	if p.ID == "" {
		t.Error("expected generated id")
	}
	if p.Rate != 85 {
		t.Errorf("rate = %v, want 85", p.Rate)
	}
	if p.Out != nil {
		t.Error("new punch should be running")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestPunchOutValidation(t *testing.T) {
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p := New("acme", nil, At(in))

	if err := p.PunchOut(in.Add(-time.Hour)); !errors.Is(err, ErrOutBeforeIn) {
		t.Fatalf("PunchOut before in: err = %v, want ErrOutBeforeIn", err)
	}
	if p.Out != nil {
		t.Fatal("failed punch out must not set Out")
	}

	if err := p.PunchOut(in.Add(2 * time.Hour)); err != nil {
		t.Fatalf("PunchOut: %v", err)
	}
	if p.Duration() != 2*time.Hour {
		t.Errorf("Duration() = %v, want 2h", p.Duration())
	}
}

func TestValidateRejectsOutBeforeIn(t *testing.T) {
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	out := in.Add(-time.Minute)
	p := &Punch{ID: "x", In: in, Out: &out}

	if err := p.Validate(); !errors.Is(err, ErrOutBeforeIn) {
		t.Errorf("Validate() = %v, want ErrOutBeforeIn", err)
	}
}

func TestMutatorsTouchUpdated(t *testing.T) {
	p := New("acme", nil)
	p.Updated = time.Time{}

	c := p.AddComment("working #feature")
	if p.Updated.IsZero() {
		t.Error("AddComment must touch Updated")
	}
	if !c.HasTag("feature") {
		t.Errorf("comment tags = %+v, want feature", c.Tags)
	}

	p.Updated = time.Time{}
	if err := p.EditComment(c.ID, "working @ticket:42"); err != nil {
		t.Fatalf("EditComment: %v", err)
	}
	if p.Updated.IsZero() {
		t.Error("EditComment must touch Updated")
	}
	if got := p.Comments[0].Object("ticket"); got != "42" {
		t.Errorf("edited comment object = %v, want 42", got)
	}
	if p.Comments[0].ID != c.ID {
		t.Error("edit must preserve the comment id")
	}

	p.Updated = time.Time{}
	p.SetRate(120)
	if p.Updated.IsZero() {
		t.Error("SetRate must touch Updated")
	}

	p.Updated = time.Time{}
	if err := p.RemoveComment(c.ID); err != nil {
		t.Fatalf("RemoveComment: %v", err)
	}
	if len(p.Comments) != 0 || p.Updated.IsZero() {
		t.Errorf("comments = %d, updated zero = %v", len(p.Comments), p.Updated.IsZero())
	}

	if err := p.RemoveComment("nope"); !errors.Is(err, ErrCommentNotFound) {
		t.Errorf("RemoveComment unknown id: err = %v, want ErrCommentNotFound", err)
	}
}

func TestCommentOrderPreserved(t *testing.T) {
	p := New("acme", nil)
	p.AddComment("first")
	p.AddComment("second")
	p.AddComment("third")
	if err := p.RemoveComment(p.Comments[1].ID); err != nil {
		t.Fatalf("RemoveComment: %v", err)
	}

	want := []string{"first", "third"}
	for i, c := range p.Comments {
		if c.Comment != want[i] {
			t.Errorf("comment[%d] = %q, want %q", i, c.Comment, want[i])
		}
	}
}

func TestMarkDeleted(t *testing.T) {
	p := New("acme", flatRates(85))
	p.AddComment("secret @client:acme")
	id := p.ID

	deletedAt := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)
	p.MarkDeleted(deletedAt)

	if !p.IsTombstone() {
		t.Fatal("expected tombstone")
	}
	if p.ID != id {
		t.Errorf("tombstone id = %q, want %q", p.ID, id)
	}
	if p.Project != "" || p.Rate != 0 || len(p.Comments) != 0 {
		t.Error("tombstone must shrink to id + deleted")
	}
	if !p.Updated.Equal(deletedAt) {
		t.Errorf("tombstone updated = %v, want deletion time", p.Updated)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal tombstone: %v", err)
	}
	want := `{"id":"` + id + `","deleted":true,"updated":` + "1772539200000" + `}`
	if string(data) != want {
		t.Errorf("tombstone json = %s, want %s", data, want)
	}
}

func TestWireRoundTrip(t *testing.T) {
	in := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	p := New("acme", flatRates(85), At(in))
	p.Created = in
	p.AddComment("Paid @client:acme #urgent[deadline] done", CommentAt(in.Add(time.Minute)))
	if err := p.PunchOut(in.Add(3 * time.Hour)); err != nil {
		t.Fatalf("PunchOut: %v", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Punch
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != p.ID || got.Project != "acme" || got.Rate != 85 {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if !got.In.Equal(p.In) || got.Out == nil || !got.Out.Equal(*p.Out) {
		t.Errorf("round trip times: in=%v out=%v", got.In, got.Out)
	}
	if len(got.Comments) != 1 {
		t.Fatalf("comments = %d, want 1", len(got.Comments))
	}
	c := got.Comments[0]
	if c.Comment != "Paid done" || !c.HasTag("urgent") || c.Object("client") != "acme" {
		t.Errorf("annotations not re-extracted: %+v", c)
	}
	if c.ID != p.Comments[0].ID {
		t.Errorf("comment id changed across round trip")
	}
}

func TestUnmarshalRejectsInvalid(t *testing.T) {
	raw := `{"id":"x","project":"p","in":2000,"out":1000,"rate":1,"created":2000,"updated":2000}`
	var p Punch
	if err := json.Unmarshal([]byte(raw), &p); !errors.Is(err, ErrOutBeforeIn) {
		t.Errorf("unmarshal err = %v, want ErrOutBeforeIn", err)
	}
}
