// Package profiles manages user profiles, the skill catalog and the skills
// each user can teach or wants to learn.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/cache"
	"github.com/Togather-Foundation/skillexchange/internal/metrics"
	"github.com/Togather-Foundation/skillexchange/internal/sanitize"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MaxBioLength       = 1000
	MaxSkillNameLength = 100

	DefaultUsernameTTL = 5 * time.Minute
)

// ValidationError reports invalid profile input.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

type updateInput struct {
	Username string `validate:"required,min=3,max=30,username"`
	Bio      string `validate:"max=1000"`
}

type skillInput struct {
	Name string `validate:"required,max=100"`
}

type Service struct {
	repo        Repository
	cache       cache.Store
	usernameTTL time.Duration
	logger      zerolog.Logger
	validator   *validator.Validate
}

// NewService builds a profile service. store may be nil to disable caching.
func NewService(repo Repository, store cache.Store, usernameTTL time.Duration, logger zerolog.Logger) *Service {
	if usernameTTL <= 0 {
		usernameTTL = DefaultUsernameTTL
	}
	return &Service{
		repo:        repo,
		cache:       store,
		usernameTTL: usernameTTL,
		logger:      logger.With().Str("component", "profiles").Logger(),
		validator:   NewValidator(),
	}
}

// NewValidator returns a validator with the username rule registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidUsername(fl.Field().String())
	})
	return v
}

// ValidUsername allows letters, digits, '_', '-' and '.'.
func ValidUsername(username string) bool {
	if username == "" {
		return false
	}
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '_' || r == '-' || r == '.':
		default:
			return false
		}
	}
	return true
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.repo.GetByID(ctx, id)
}

// Update changes username and bio of the caller's own profile.
func (s *Service) Update(ctx context.Context, id uuid.UUID, params UpdateParams) (*Profile, error) {
	input := updateInput{
		Username: strings.TrimSpace(params.Username),
		Bio:      strings.TrimSpace(sanitize.PlainText(params.Bio)),
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(current.Username, input.Username) {
		taken, err := s.repo.UsernameExists(ctx, input.Username)
		if err != nil {
			return nil, fmt.Errorf("check username: %w", err)
		}
		if taken {
			return nil, ErrUsernameTaken
		}
	}

	updated, err := s.repo.Update(ctx, id, UpdateParams{Username: input.Username, Bio: input.Bio})
	if err != nil {
		return nil, err
	}
	s.forgetUsername(ctx, id)
	return updated, nil
}

// UsernameAvailable reports whether no profile uses username
// (case-insensitive).
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if !ValidUsername(username) {
		return false, ValidationError{Field: "username", Message: "may only contain letters, digits, '_', '-' and '.'"}
	}
	taken, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// List browses profiles. An empty term returns everyone; otherwise a
// profile matches when one of its skills of the filter type contains term.
func (s *Service) List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error) {
	filters.Term = strings.TrimSpace(filters.Term)
	if filters.Type == "" {
		filters.Type = SkillTeachable
	}
	return s.repo.List(ctx, filters, pagination)
}

// SkillCatalog groups every known skill by category. Groups are ordered by
// category name with the uncategorised "Other" group last.
func (s *Service) SkillCatalog(ctx context.Context) ([]CategoryGroup, error) {
	skills, err := s.repo.ListSkills(ctx)
	if err != nil {
		return nil, err
	}
	return GroupByCategory(skills), nil
}

func GroupByCategory(skills []Skill) []CategoryGroup {
	index := make(map[string]int)
	var groups []CategoryGroup
	for _, skill := range skills {
		category := strings.TrimSpace(skill.Category)
		if category == "" {
			category = OtherCategory
		}
		i, ok := index[category]
		if !ok {
			i = len(groups)
			index[category] = i
			groups = append(groups, CategoryGroup{Category: category})
		}
		groups[i].Skills = append(groups[i].Skills, skill)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if (groups[i].Category == OtherCategory) != (groups[j].Category == OtherCategory) {
			return groups[j].Category == OtherCategory
		}
		return groups[i].Category < groups[j].Category
	})
	for _, g := range groups {
		sort.SliceStable(g.Skills, func(i, j int) bool {
			return strings.ToLower(g.Skills[i].Name) < strings.ToLower(g.Skills[j].Name)
		})
	}
	return groups
}

// AddSkill attaches a skill by name, creating the catalog entry if needed.
func (s *Service) AddSkill(ctx context.Context, profileID uuid.UUID, name string, skillType SkillType) (*ProfileSkill, error) {
	input := skillInput{Name: strings.TrimSpace(sanitize.PlainText(name))}
	if err := s.validator.Struct(input); err != nil {
		return nil, validationError(err)
	}
	if _, ok := ParseSkillType(string(skillType)); !ok {
		return nil, ValidationError{Field: "type", Message: "must be TEACHABLE or LEARNABLE"}
	}

	exists, err := s.repo.HasSkill(ctx, profileID, input.Name, skillType)
	if err != nil {
		return nil, fmt.Errorf("check existing skill: %w", err)
	}
	if exists {
		return nil, ErrSkillAlreadyAdded
	}

	added, err := s.repo.AddSkill(ctx, profileID, input.Name, skillType)
	if err != nil {
		if errors.Is(err, ErrSkillAlreadyAdded) {
			return nil, err
		}
		return nil, fmt.Errorf("add skill: %w", err)
	}

	s.logger.Info().
		Str("profile_id", profileID.String()).
		Str("skill", added.Name).
		Str("type", string(skillType)).
		Msg("skill added")
	return added, nil
}

// RemoveSkill detaches a profile skill owned by profileID.
func (s *Service) RemoveSkill(ctx context.Context, profileID, profileSkillID uuid.UUID) error {
	owner, err := s.repo.SkillOwner(ctx, profileSkillID)
	if err != nil {
		return err
	}
	if owner != profileID {
		return ErrForbidden
	}
	return s.repo.RemoveSkill(ctx, profileSkillID)
}

// Username resolves a profile id to its username, through the cache when
// one is configured. Cache failures fall back to the repository.
func (s *Service) Username(ctx context.Context, id uuid.UUID) (string, error) {
	key := usernameKey(id)
	if s.cache != nil {
		value, err := s.cache.Get(ctx, key)
		switch {
		case err == nil:
			metrics.UsernameCacheLookups.WithLabelValues("hit").Inc()
			return value, nil
		case errors.Is(err, cache.ErrMiss):
			metrics.UsernameCacheLookups.WithLabelValues("miss").Inc()
		default:
			metrics.UsernameCacheLookups.WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Str("profile_id", id.String()).Msg("username cache read failed")
		}
	}

	username, err := s.repo.Username(ctx, id)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, username, s.usernameTTL); err != nil {
			s.logger.Warn().Err(err).Str("profile_id", id.String()).Msg("username cache write failed")
		}
	}
	return username, nil
}

func (s *Service) forgetUsername(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, usernameKey(id)); err != nil {
		s.logger.Warn().Err(err).Str("profile_id", id.String()).Msg("username cache invalidation failed")
	}
}

func usernameKey(id uuid.UUID) string {
	return "username:" + id.String()
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return ValidationError{Field: field, Message: "is required"}
	case "min":
		return ValidationError{Field: field, Message: fmt.Sprintf("must be at least %s characters", fe.Param())}
	case "max":
		return ValidationError{Field: field, Message: fmt.Sprintf("must be at most %s characters", fe.Param())}
	case "username":
		return ValidationError{Field: field, Message: "may only contain letters, digits, '_', '-' and '.'"}
	default:
		return ValidationError{Field: field, Message: "is invalid"}
	}
}
