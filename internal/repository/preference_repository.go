package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fenixctl/enroller/internal/model"
)

// PreferenceRepository keeps operator records in PostgreSQL, one per profile.
type PreferenceRepository struct {
	pool    *pgxpool.Pool
	profile string
}

// NewPreferenceRepository creates a new PreferenceRepository.
func NewPreferenceRepository(pool *pgxpool.Pool, profile string) *PreferenceRepository {
	return &PreferenceRepository{pool: pool, profile: profile}
}

// Load reads the record of the profile. A missing profile yields an empty record.
func (r *PreferenceRepository) Load(ctx context.Context) (*model.Preferences, error) {
	p := &model.Preferences{}
	var courses, shifts []byte
	err := r.pool.QueryRow(ctx,
		`SELECT degree_id, degree_acronym, lang, term, semester, period, campus,
		        selected_courses, selected_shifts, updated_at
		 FROM preferences WHERE profile = $1`, r.profile,
	).Scan(&p.DegreeID, &p.DegreeAcronym, &p.Lang, &p.Term, &p.Semester, &p.Period, &p.Campus,
		&courses, &shifts, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return normalized(p), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	if err := json.Unmarshal(courses, &p.SelectedCourses); err != nil {
		return nil, fmt.Errorf("%w: selected_courses: %v", ErrPreferencesCorrupt, err)
	}
	if err := json.Unmarshal(shifts, &p.SelectedShifts); err != nil {
		return nil, fmt.Errorf("%w: selected_shifts: %v", ErrPreferencesCorrupt, err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT course_id, course_name, category, shift_name
		 FROM registration_goals
		 WHERE profile = $1
		 ORDER BY position ASC`, r.profile)
	if err != nil {
		return nil, fmt.Errorf("load goals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var g model.RegistrationGoal
		if err := rows.Scan(&g.CourseID, &g.CourseName, &g.Category, &g.ShiftName); err != nil {
			return nil, err
		}
		p.Goals = append(p.Goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return normalized(p), nil
}

// Save replaces the record of the profile, goals included, in one transaction.
func (r *PreferenceRepository) Save(ctx context.Context, prefs *model.Preferences) error {
	p := normalized(prefs)
	courses, err := json.Marshal(p.SelectedCourses)
	if err != nil {
		return fmt.Errorf("encode selected courses: %w", err)
	}
	shifts, err := json.Marshal(p.SelectedShifts)
	if err != nil {
		return fmt.Errorf("encode selected shifts: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO preferences (profile, degree_id, degree_acronym, lang, term, semester, period, campus,
			                          selected_courses, selected_shifts, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
			 ON CONFLICT (profile) DO UPDATE SET
			   degree_id = EXCLUDED.degree_id, degree_acronym = EXCLUDED.degree_acronym,
			   lang = EXCLUDED.lang, term = EXCLUDED.term, semester = EXCLUDED.semester,
			   period = EXCLUDED.period, campus = EXCLUDED.campus,
			   selected_courses = EXCLUDED.selected_courses, selected_shifts = EXCLUDED.selected_shifts,
			   updated_at = NOW()`,
			r.profile, p.DegreeID, p.DegreeAcronym, p.Lang, p.Term, string(p.Semester), string(p.Period), p.Campus,
			string(courses), string(shifts))
		if err != nil {
			return fmt.Errorf("upsert preferences: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM registration_goals WHERE profile = $1`, r.profile); err != nil {
			return fmt.Errorf("clear goals: %w", err)
		}
		for i, g := range p.Goals {
			_, err := tx.Exec(ctx,
				`INSERT INTO registration_goals (id, profile, position, course_id, course_name, category, shift_name)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				uuid.New(), r.profile, i, g.CourseID, g.CourseName, string(g.Category), g.ShiftName)
			if err != nil {
				return fmt.Errorf("insert goal %d: %w", i, err)
			}
		}
		return nil
	})
}
