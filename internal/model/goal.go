package model

import "time"

// RegistrationGoal is one operator intent to register a shift.
type RegistrationGoal struct {
	CourseID   string   `json:"course_id,omitempty"`
	CourseName string   `json:"course" binding:"required"`
	Category   Category `json:"shift_type" binding:"required,category"`
	ShiftName  string   `json:"shift_name"`
}

// SameSlot reports whether g and other target the same (course, category).
func (g RegistrationGoal) SameSlot(other RegistrationGoal) bool {
	return g.CourseName == other.CourseName && g.Category == other.Category
}

// Choices maps course id to the chosen shift name per category.
type Choices map[string]map[Category]string

// Preferences is the persisted operator record.
type Preferences struct {
	DegreeID        string             `json:"degree_id,omitempty"`
	DegreeAcronym   string             `json:"degree_acronym,omitempty"`
	Lang            string             `json:"lang,omitempty"`
	Term            string             `json:"term,omitempty"`
	Semester        Semester           `json:"semester,omitempty"`
	Period          Period             `json:"period,omitempty"`
	Campus          string             `json:"campus,omitempty"`
	SelectedCourses []string           `json:"selected_courses"`
	SelectedShifts  Choices            `json:"selected_shifts"`
	Goals           []RegistrationGoal `json:"enrollments"`
	UpdatedAt       time.Time          `json:"updated_at,omitempty"`
}

// UpsertGoal replaces the goal for the same (course, category) or appends it.
func (p *Preferences) UpsertGoal(g RegistrationGoal) {
	for i := range p.Goals {
		if p.Goals[i].SameSlot(g) {
			p.Goals[i] = g
			return
		}
	}
	p.Goals = append(p.Goals, g)
}

// RemoveGoals drops every goal matching one of done exactly.
func (p *Preferences) RemoveGoals(done []RegistrationGoal) {
	if len(done) == 0 {
		return
	}
	kept := p.Goals[:0]
	for _, g := range p.Goals {
		matched := false
		for _, d := range done {
			if g == d {
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, g)
		}
	}
	p.Goals = kept
}

// UpdatePreferencesRequest is the payload for changing filter preferences.
type UpdatePreferencesRequest struct {
	DegreeID        *string   `json:"degree_id"`
	DegreeAcronym   *string   `json:"degree_acronym"`
	Lang            *string   `json:"lang" binding:"omitempty,oneof=pt-PT en-GB"`
	Term            *string   `json:"term"`
	Semester        *Semester `json:"semester" binding:"omitempty,oneof=1 2"`
	Period          *Period   `json:"period" binding:"omitempty,oneof=P1 P2 P3 P4"`
	Campus          *string   `json:"campus"`
	SelectedCourses []string  `json:"selected_courses"`
}

// BoardRequest asks for the selector state of a set of courses.
type BoardRequest struct {
	CourseIDs []string `json:"course_ids" binding:"required,min=1"`
	Choices   Choices  `json:"choices"`
	Campus    string   `json:"campus"`
}

// ConfirmScheduleRequest turns a selection into registration goals.
type ConfirmScheduleRequest struct {
	CourseIDs []string `json:"course_ids" binding:"required,min=1"`
	Choices   Choices  `json:"choices" binding:"required"`
}

// PortalLoginRequest carries portal credentials for the browser session.
type PortalLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// StartRunRequest starts an enrollment run, optionally at a time of day (HH:MM:SS).
type StartRunRequest struct {
	At string `json:"at" binding:"omitempty,datetime=15:04:05"`
}

// LoginRequest authenticates the operator against the control API.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the control token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
