package model

import "strings"

// Context is the play mode a scope belongs to.
type Context string

// Scope contexts.
const (
	ContextPublic Context = "public"
	ContextGame   Context = "game"
)

// SegmentAll is the segment that every vote lands in.
const SegmentAll = "all"

// Segment key prefixes.
const (
	SegmentCategoryPrefix = "category:"
	SegmentGenderPrefix   = "gender:"
)

// Scope identifies an independent rating universe.
type Scope struct {
	Context Context
	GroupID string
	Segment string
}

// PublicScope returns the public scope for a segment.
func PublicScope(segment string) Scope {
	return Scope{Context: ContextPublic, Segment: segment}
}

// GameScope returns the scope of a group for a segment.
func GameScope(groupID, segment string) Scope {
	return Scope{Context: ContextGame, GroupID: groupID, Segment: segment}
}

// Key returns a stable string identity for the scope, used as a storage key.
func (s Scope) Key() string {
	var b strings.Builder
	b.Grow(len(s.Context) + len(s.GroupID) + len(s.Segment) + 2)
	b.WriteString(string(s.Context))
	b.WriteByte('|')
	b.WriteString(s.GroupID)
	b.WriteByte('|')
	b.WriteString(s.Segment)
	return b.String()
}

func (s Scope) String() string { return s.Key() }

// WithSegment returns a copy of s bound to another segment.
func (s Scope) WithSegment(segment string) Scope {
	s.Segment = segment
	return s
}

// CategorySegment returns the segment key for a category cohort.
func CategorySegment(category string) string { return SegmentCategoryPrefix + category }

// GenderSegment returns the segment key for a gender cohort.
func GenderSegment(gender string) string { return SegmentGenderPrefix + gender }
