package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/duel/internal/domain/model"
)

// Seed is the content of an entity seed file.
type Seed struct {
	Entities []SeedEntity `koanf:"entities"`
	Groups   []SeedGroup  `koanf:"groups"`
}

// SeedEntity mirrors model.Entity in file form.
type SeedEntity struct {
	ID         string `koanf:"id"`
	Slug       string `koanf:"slug"`
	Name       string `koanf:"name"`
	Profession string `koanf:"profession"`
	Category   string `koanf:"category"`
	Gender     string `koanf:"gender"`
	Status     string `koanf:"status"`
	Visibility string `koanf:"visibility"`
	ImageURL   string `koanf:"image_url"`
}

// SeedGroup lists the pool members of one group.
type SeedGroup struct {
	ID      string   `koanf:"id"`
	Members []string `koanf:"members"`
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Seed{}, fmt.Errorf("load seed %s: %w", path, err)
	}
	var s Seed
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Seed{}, fmt.Errorf("decode seed %s: %w", path, err)
	}
	return s, nil
}

// Entity converts a seed row, applying defaults for status, visibility and gender.
func (e SeedEntity) Entity(now time.Time) (model.Entity, error) {
	out := model.Entity{
		ID:         strings.TrimSpace(e.ID),
		Slug:       e.Slug,
		Name:       e.Name,
		Profession: e.Profession,
		Category:   strings.ToLower(e.Category),
		Gender:     strings.ToLower(e.Gender),
		Status:     model.Status(strings.ToLower(e.Status)),
		Visibility: model.Visibility(strings.ToLower(e.Visibility)),
		ImageURL:   e.ImageURL,
		CreatedAt:  now,
	}
	if out.ID == "" {
		return model.Entity{}, fmt.Errorf("seed entity without id: %w", ErrInvalidRecord)
	}
	if out.Slug == "" {
		out.Slug = out.ID
	}
	if out.Status == "" {
		out.Status = model.StatusActive
	}
	if out.Visibility == "" {
		out.Visibility = model.VisibilityPublic
	}
	if out.Gender == "" {
		out.Gender = model.GenderUnspecified
	}
	if !model.IsCategory(out.Category) {
		return model.Entity{}, fmt.Errorf("entity %s category %q: %w", out.ID, out.Category, ErrInvalidRecord)
	}
	if !model.IsGender(out.Gender) {
		return model.Entity{}, fmt.Errorf("entity %s gender %q: %w", out.ID, out.Gender, ErrInvalidRecord)
	}
	switch out.Status {
	case model.StatusActive, model.StatusPendingReview, model.StatusDisabled:
	default:
		return model.Entity{}, fmt.Errorf("entity %s status %q: %w", out.ID, out.Status, ErrInvalidRecord)
	}
	switch out.Visibility {
	case model.VisibilityPublic, model.VisibilityPrivate:
	default:
		return model.Entity{}, fmt.Errorf("entity %s visibility %q: %w", out.ID, out.Visibility, ErrInvalidRecord)
	}
	return out, nil
}

// ApplySeed writes every entity and pool membership of s into w.
func ApplySeed(ctx context.Context, w EntityWriter, s Seed) (entities int, err error) {
	now := Now()
	for _, se := range s.Entities {
		e, err := se.Entity(now)
		if err != nil {
			return entities, err
		}
		if err := w.PutEntity(ctx, e); err != nil {
			return entities, fmt.Errorf("put entity %s: %w", e.ID, err)
		}
		entities++
	}
	for _, g := range s.Groups {
		if strings.TrimSpace(g.ID) == "" {
			return entities, fmt.Errorf("seed group without id: %w", ErrInvalidRecord)
		}
		if err := w.AddToPool(ctx, g.ID, g.Members...); err != nil {
			return entities, fmt.Errorf("add pool %s: %w", g.ID, err)
		}
	}
	return entities, nil
}
