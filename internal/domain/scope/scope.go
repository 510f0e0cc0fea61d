// Package scope resolves and validates rating scopes, segments and matchup filters.
package scope

import (
	"fmt"
	"slices"
	"strings"

	"github.com/okian/duel/internal/domain/model"
)

// Parse builds a scope from raw request values. Empty context means public and
// empty segment means "all".
func Parse(context, groupID, segment string) (model.Scope, error) {
	ctx := model.Context(strings.ToLower(strings.TrimSpace(context)))
	if ctx == "" {
		ctx = model.ContextPublic
	}
	groupID = strings.TrimSpace(groupID)
	segment = strings.TrimSpace(segment)
	if segment == "" {
		segment = model.SegmentAll
	}

	s := model.Scope{Context: ctx, GroupID: groupID, Segment: segment}
	if err := Validate(s); err != nil {
		return model.Scope{}, err
	}
	return s, nil
}

// Validate checks that a scope is well formed.
func Validate(s model.Scope) error {
	switch s.Context {
	case model.ContextPublic:
		if s.GroupID != "" {
			return fmt.Errorf("public scope cannot carry group %q: %w", s.GroupID, ErrInvalidScope)
		}
	case model.ContextGame:
		if s.GroupID == "" {
			return fmt.Errorf("game scope requires a group id: %w", ErrInvalidScope)
		}
	default:
		return fmt.Errorf("unknown context %q: %w", s.Context, ErrInvalidScope)
	}
	return validateSegment(s.Segment)
}

func validateSegment(segment string) error {
	switch {
	case segment == model.SegmentAll:
		return nil
	case strings.HasPrefix(segment, model.SegmentCategoryPrefix):
		if model.IsCategory(strings.TrimPrefix(segment, model.SegmentCategoryPrefix)) {
			return nil
		}
	case strings.HasPrefix(segment, model.SegmentGenderPrefix):
		g := strings.TrimPrefix(segment, model.SegmentGenderPrefix)
		if g == model.GenderWomen || g == model.GenderMen {
			return nil
		}
	}
	return fmt.Errorf("unknown segment %q: %w", segment, ErrInvalidScope)
}

// FanOut returns the additional segment scopes a decided vote in s also counts
// toward: the shared category cohort and the shared gender cohort of both sides.
// Only votes cast in the "all" segment fan out.
func FanOut(s model.Scope, left, right model.Entity) []model.Scope {
	if s.Segment != model.SegmentAll {
		return nil
	}
	var out []model.Scope
	if left.Category != "" && left.Category == right.Category && model.IsCategory(left.Category) {
		out = append(out, s.WithSegment(model.CategorySegment(left.Category)))
	}
	if left.Gender == right.Gender && (left.Gender == model.GenderWomen || left.Gender == model.GenderMen) {
		out = append(out, s.WithSegment(model.GenderSegment(left.Gender)))
	}
	return out
}

// ResolveFilters normalizes matchup filters. The categories set wins over the
// legacy single category value, which is ignored when it is "all".
func ResolveFilters(categories []string, legacyCategory, gender string) (model.Filters, error) {
	var f model.Filters
	for _, c := range categories {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || slices.Contains(f.Categories, c) {
			continue
		}
		if !model.IsCategory(c) {
			return model.Filters{}, fmt.Errorf("unknown category %q: %w", c, ErrInvalidFilter)
		}
		f.Categories = append(f.Categories, c)
	}
	if len(f.Categories) == 0 {
		legacyCategory = strings.ToLower(strings.TrimSpace(legacyCategory))
		if legacyCategory != "" && legacyCategory != "all" {
			if !model.IsCategory(legacyCategory) {
				return model.Filters{}, fmt.Errorf("unknown category %q: %w", legacyCategory, ErrInvalidFilter)
			}
			f.Categories = []string{legacyCategory}
		}
	}

	gender = strings.ToLower(strings.TrimSpace(gender))
	switch gender {
	case "", model.GenderFilterAll, model.GenderFilterMixed:
	case model.GenderWomen, model.GenderMen:
		f.Gender = gender
	default:
		return model.Filters{}, fmt.Errorf("unknown gender %q: %w", gender, ErrInvalidFilter)
	}
	return f, nil
}

// BoundExclude keeps at most max of the most recent (trailing) ids, dropping blanks.
func BoundExclude(ids []string, max int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
