package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/skillexchange/internal/api/pagination"
	"github.com/Togather-Foundation/skillexchange/internal/domain/profiles"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ profiles.Repository = (*ProfileRepository)(nil)

type ProfileRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

const constraintProfileSkill = "profile_skills_profile_skill_type_key"

const profileColumns = `
SELECT p.id, p.username, p.bio, p.created_at, p.updated_at,
       coalesce(r.review_count, 0), coalesce(r.rating_avg, 0)::float8
  FROM profiles p
  LEFT JOIN profile_ratings r ON r.profile_id = p.id
`

func scanProfile(row pgx.Row) (profiles.Profile, error) {
	var p profiles.Profile
	err := row.Scan(
		&p.ID,
		&p.Username,
		&p.Bio,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Rating.Count,
		&p.Rating.Average,
	)
	return p, err
}

func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*profiles.Profile, error) {
	p, err := scanProfile(r.queryer().QueryRow(ctx, profileColumns+` WHERE p.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, profiles.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	skills, err := r.skillsFor(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	p.Skills = skills[id]
	return &p, nil
}

func (r *ProfileRepository) Update(ctx context.Context, id uuid.UUID, params profiles.UpdateParams) (*profiles.Profile, error) {
	tag, err := r.queryer().Exec(ctx, `
UPDATE profiles
   SET username = $2, bio = $3, updated_at = $4
 WHERE id = $1
`, id, params.Username, params.Bio, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err, constraintProfileUsername) {
			return nil, profiles.ErrUsernameTaken
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, profiles.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *ProfileRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return exists(ctx, r.queryer(), `SELECT EXISTS (SELECT 1 FROM profiles WHERE lower(username) = lower($1))`, username)
}

func (r *ProfileRepository) Username(ctx context.Context, id uuid.UUID) (string, error) {
	var username string
	if err := r.queryer().QueryRow(ctx, `SELECT username FROM profiles WHERE id = $1`, id).Scan(&username); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", profiles.ErrNotFound
		}
		return "", fmt.Errorf("get username: %w", err)
	}
	return username, nil
}

// List returns profiles newest first. A non-empty term keeps profiles with a
// skill of filters.Type whose name contains the term.
func (r *ProfileRepository) List(ctx context.Context, filters profiles.Filters, page profiles.Pagination) (profiles.ListResult, error) {
	var cursorTimestamp *time.Time
	var cursorID *uuid.UUID
	if strings.TrimSpace(page.After) != "" {
		cursor, err := pagination.DecodeCursor(page.After)
		if err != nil {
			return profiles.ListResult{}, err
		}
		ts := cursor.Timestamp.UTC()
		cursorTimestamp = &ts
		cursorID = &cursor.ID
	}

	limit := page.Limit
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	limitPlusOne := limit + 1

	rows, err := r.queryer().Query(ctx, profileColumns+`
 WHERE ($1::text = '' OR EXISTS (
         SELECT 1
           FROM profile_skills ps
           JOIN skills s ON s.id = ps.skill_id
          WHERE ps.profile_id = p.id
            AND ps.type = $2
            AND s.name ILIKE '%' || $1::text || '%' ESCAPE '\'
       ))
   AND (
     $3::timestamptz IS NULL OR
     p.created_at < $3::timestamptz OR
     (p.created_at = $3::timestamptz AND p.id < $4::uuid)
   )
 ORDER BY p.created_at DESC, p.id DESC
 LIMIT $5
`,
		escapeLike(filters.Term),
		string(filters.Type),
		cursorTimestamp,
		cursorID,
		limitPlusOne,
	)
	if err != nil {
		return profiles.ListResult{}, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	items := make([]profiles.Profile, 0, limitPlusOne)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return profiles.ListResult{}, fmt.Errorf("scan profiles: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return profiles.ListResult{}, fmt.Errorf("iterate profiles: %w", err)
	}

	result := profiles.ListResult{}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		result.NextCursor = pagination.EncodeCursor(last.CreatedAt, last.ID)
	}

	ids := make([]uuid.UUID, len(items))
	for i := range items {
		ids[i] = items[i].ID
	}
	skills, err := r.skillsFor(ctx, ids)
	if err != nil {
		return profiles.ListResult{}, err
	}
	for i := range items {
		items[i].Skills = skills[items[i].ID]
	}
	result.Profiles = items
	return result, nil
}

func (r *ProfileRepository) skillsFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]profiles.ProfileSkill, error) {
	out := make(map[uuid.UUID][]profiles.ProfileSkill, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.queryer().Query(ctx, `
SELECT ps.profile_id, ps.id, s.id, s.name, coalesce(s.category, ''), ps.type
  FROM profile_skills ps
  JOIN skills s ON s.id = ps.skill_id
 WHERE ps.profile_id = ANY($1)
 ORDER BY lower(s.name), ps.type
`, ids)
	if err != nil {
		return nil, fmt.Errorf("list profile skills: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			profileID uuid.UUID
			skill     profiles.ProfileSkill
			skillType string
		)
		if err := rows.Scan(&profileID, &skill.ID, &skill.SkillID, &skill.Name, &skill.Category, &skillType); err != nil {
			return nil, fmt.Errorf("scan profile skills: %w", err)
		}
		skill.Type = profiles.SkillType(skillType)
		out[profileID] = append(out[profileID], skill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profile skills: %w", err)
	}
	return out, nil
}

func (r *ProfileRepository) ListSkills(ctx context.Context) ([]profiles.Skill, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, name, coalesce(category, '')
  FROM skills
 ORDER BY lower(name)
`)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
	}
	defer rows.Close()

	var skills []profiles.Skill
	for rows.Next() {
		var s profiles.Skill
		if err := rows.Scan(&s.ID, &s.Name, &s.Category); err != nil {
			return nil, fmt.Errorf("scan skills: %w", err)
		}
		skills = append(skills, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skills: %w", err)
	}
	return skills, nil
}

func (r *ProfileRepository) HasSkill(ctx context.Context, profileID uuid.UUID, name string, skillType profiles.SkillType) (bool, error) {
	return exists(ctx, r.queryer(), `
SELECT EXISTS (
  SELECT 1
    FROM profile_skills ps
    JOIN skills s ON s.id = ps.skill_id
   WHERE ps.profile_id = $1
     AND lower(s.name) = lower(btrim($2))
     AND ps.type = $3
)`, profileID, name, string(skillType))
}

func (r *ProfileRepository) AddSkill(ctx context.Context, profileID uuid.UUID, name string, skillType profiles.SkillType) (*profiles.ProfileSkill, error) {
	skill := profiles.ProfileSkill{Type: skillType}
	err := inTx(ctx, r.pool, r.tx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT find_or_create_skill($1)`, name).Scan(&skill.SkillID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
WITH inserted AS (
  INSERT INTO profile_skills (profile_id, skill_id, type)
  VALUES ($1, $2, $3)
  RETURNING id, skill_id
)
SELECT i.id, s.name, coalesce(s.category, '')
  FROM inserted i
  JOIN skills s ON s.id = i.skill_id
`, profileID, skill.SkillID, string(skillType)).Scan(&skill.ID, &skill.Name, &skill.Category)
	})
	if err != nil {
		switch {
		case isUniqueViolation(err, constraintProfileSkill):
			return nil, profiles.ErrSkillAlreadyAdded
		case isForeignKeyViolation(err):
			return nil, profiles.ErrNotFound
		}
		return nil, fmt.Errorf("add profile skill: %w", err)
	}
	return &skill, nil
}

func (r *ProfileRepository) SkillOwner(ctx context.Context, profileSkillID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	if err := r.queryer().QueryRow(ctx, `SELECT profile_id FROM profile_skills WHERE id = $1`, profileSkillID).Scan(&owner); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, profiles.ErrSkillNotFound
		}
		return uuid.Nil, fmt.Errorf("get profile skill owner: %w", err)
	}
	return owner, nil
}

func (r *ProfileRepository) RemoveSkill(ctx context.Context, profileSkillID uuid.UUID) error {
	tag, err := r.queryer().Exec(ctx, `DELETE FROM profile_skills WHERE id = $1`, profileSkillID)
	if err != nil {
		return fmt.Errorf("remove profile skill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profiles.ErrSkillNotFound
	}
	return nil
}

func (r *ProfileRepository) queryer() dbQueryer {
	return pick(r.pool, r.tx)
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
