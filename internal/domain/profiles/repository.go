package profiles

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("profile not found")
	ErrSkillNotFound     = errors.New("profile skill not found")
	ErrUsernameTaken     = errors.New("username is already taken")
	ErrSkillAlreadyAdded = errors.New("skill already added")
	ErrForbidden         = errors.New("profile skill belongs to another user")
)

type SkillType string

const (
	SkillTeachable SkillType = "TEACHABLE"
	SkillLearnable SkillType = "LEARNABLE"
)

func ParseSkillType(value string) (SkillType, bool) {
	switch t := SkillType(value); t {
	case SkillTeachable, SkillLearnable:
		return t, true
	default:
		return "", false
	}
}

// OtherCategory groups catalog skills that have no category.
const OtherCategory = "Other"

type Skill struct {
	ID       uuid.UUID
	Name     string
	Category string
}

type ProfileSkill struct {
	ID       uuid.UUID
	SkillID  uuid.UUID
	Name     string
	Category string
	Type     SkillType
}

// Rating is the denormalised review rollup for a profile.
type Rating struct {
	Count   int
	Average float64
}

type Profile struct {
	ID        uuid.UUID
	Username  string
	Bio       string
	Skills    []ProfileSkill
	Rating    Rating
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Teachable returns the profile's TEACHABLE skills.
func (p Profile) Teachable() []ProfileSkill {
	return p.skillsOf(SkillTeachable)
}

// Learnable returns the profile's LEARNABLE skills.
func (p Profile) Learnable() []ProfileSkill {
	return p.skillsOf(SkillLearnable)
}

func (p Profile) skillsOf(t SkillType) []ProfileSkill {
	out := make([]ProfileSkill, 0, len(p.Skills))
	for _, s := range p.Skills {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

type Filters struct {
	Term string
	Type SkillType
}

type Pagination struct {
	Limit int
	After string
}

type ListResult struct {
	Profiles   []Profile
	NextCursor string
}

type CategoryGroup struct {
	Category string
	Skills   []Skill
}

type UpdateParams struct {
	Username string
	Bio      string
}

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	Username(ctx context.Context, id uuid.UUID) (string, error)
	List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error)
	ListSkills(ctx context.Context) ([]Skill, error)
	// HasSkill reports whether the profile already lists a skill with this
	// name (case-insensitive) for the given type.
	HasSkill(ctx context.Context, profileID uuid.UUID, name string, skillType SkillType) (bool, error)
	// AddSkill finds or creates the named skill and attaches it.
	AddSkill(ctx context.Context, profileID uuid.UUID, name string, skillType SkillType) (*ProfileSkill, error)
	SkillOwner(ctx context.Context, profileSkillID uuid.UUID) (uuid.UUID, error)
	RemoveSkill(ctx context.Context, profileSkillID uuid.UUID) error
}
