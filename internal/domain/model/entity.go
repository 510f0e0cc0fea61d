// Package model contains domain models passed between layers.
package model

import (
	"slices"
	"time"
)

// Status is the moderation state of an entity.
type Status string

// Entity statuses. Only active entities are ever matched or ranked.
const (
	StatusActive        Status = "active"
	StatusPendingReview Status = "pending_review"
	StatusDisabled      Status = "disabled"
)

// Visibility controls whether an entity appears in the public scope.
type Visibility string

// Entity visibilities.
const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Gender tags carried by entities.
const (
	GenderWomen       = "women"
	GenderMen         = "men"
	GenderUnspecified = "unspecified"
)

// Gender filter values that leave the pool unconstrained.
const (
	GenderFilterAll   = "all"
	GenderFilterMixed = "mixed"
)

// Categories lists the enumerated entity categories.
var Categories = []string{
	"sports",
	"streamer",
	"youtuber",
	"influencer",
	"actor",
	"actress",
	"meme",
	"current_affairs",
	"internet_personality",
	"tiktoker",
}

// IsCategory reports whether c is a known category.
func IsCategory(c string) bool { return slices.Contains(Categories, c) }

// IsGender reports whether g is a gender tag an entity may carry.
func IsGender(g string) bool {
	return g == GenderWomen || g == GenderMen || g == GenderUnspecified
}

// Entity is an item that can be voted on. It is created and moderated elsewhere;
// the engine only reads it.
type Entity struct {
	ID         string
	Slug       string
	Name       string
	Profession string
	Category   string
	Gender     string
	Status     Status
	Visibility Visibility
	ImageURL   string
	CreatedAt  time.Time
}

// PublicEntity is the projection of an entity that is safe to hand to clients.
type PublicEntity struct {
	ID         string `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	Profession string `json:"profession,omitempty"`
	Category   string `json:"category"`
	Gender     string `json:"gender"`
	ImageURL   string `json:"image_url,omitempty"`
}

// Public returns the client-facing fields of e.
func (e Entity) Public() PublicEntity {
	return PublicEntity{
		ID:         e.ID,
		Slug:       e.Slug,
		Name:       e.Name,
		Profession: e.Profession,
		Category:   e.Category,
		Gender:     e.Gender,
		ImageURL:   e.ImageURL,
	}
}

// VisibleIn reports whether e may be shown in a scope with the given context.
// Game scopes rely on group pool membership instead of visibility.
func (e Entity) VisibleIn(ctx Context) bool {
	if e.Status != StatusActive {
		return false
	}
	if ctx == ContextPublic {
		return e.Visibility == VisibilityPublic
	}
	return true
}
