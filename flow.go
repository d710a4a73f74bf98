package flowscribe

import (
	"strings"
	"time"
)

const (
	// MaxFlowNameLength bounds the user supplied flow name.
	MaxFlowNameLength = 100
	// MaxDescriptionLength bounds the optional flow description.
	MaxDescriptionLength = 500
	// MaxTags bounds the optional tag list.
	MaxTags = 10
)

// Flow is a named, ordered collection of recorded steps forming a replayable
// walkthrough. Flows are immutable in place: updates replace the whole record.
type Flow struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Steps     []Step     `json:"steps"`
	Meta      FlowMeta   `json:"meta,omitempty"`
}

type FlowMeta struct {
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Sanitize trims whitespace from the user supplied text fields and drops empty
// tags. Called before Validate on every write path.
func (f *Flow) Sanitize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Meta.Description = strings.TrimSpace(f.Meta.Description)

	tags := f.Meta.Tags[:0]
	for _, t := range f.Meta.Tags {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	f.Meta.Tags = tags

	for i := range f.Steps {
		f.Steps[i].Explanation = strings.TrimSpace(f.Steps[i].Explanation)
	}
}

// Validate checks the flow and all of its steps against the structural schema.
// Step order values must be exactly 0..n-1 in slice position, the invariant the
// session Manager establishes at finalisation.
func (f *Flow) Validate() error {
	if f.ID == "" {
		return wrapInvalidFlow("flow id is empty")
	}
	if l := len(f.Name); l < 1 || l > MaxFlowNameLength {
		return wrapInvalidFlow("flow name length out of bounds")
	}
	if len(f.Meta.Description) > MaxDescriptionLength {
		return wrapInvalidFlow("flow description too long")
	}
	if len(f.Meta.Tags) > MaxTags {
		return wrapInvalidFlow("too many flow tags")
	}
	if f.CreatedAt.IsZero() {
		return wrapInvalidFlow("flow createdAt is unset")
	}

	for i := range f.Steps {
		if err := f.Steps[i].Validate(); err != nil {
			return err
		}
		if f.Steps[i].Order != i {
			return wrapInvalidFlow("step order values are not dense and zero based")
		}
	}
	return nil
}
