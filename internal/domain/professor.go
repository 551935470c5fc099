package domain

import (
	"net/mail"
	"strings"
	"time"
)

// Academic titles.
const (
	TitleProfessor          = "Professor"
	TitleAssociateProfessor = "Associate Professor"
	TitleAssistantProfessor = "Assistant Professor"
	TitleLecturer           = "Lecturer"
	TitleInstructor         = "Instructor"
)

// Entity sort orders.
const (
	EntitySortRating  = "rating"
	EntitySortReviews = "reviews"
	EntitySortName    = "name"
	EntitySortCode    = "code"
)

// RecentReviewsLimit caps the reviews embedded in an entity detail response.
const RecentReviewsLimit = 50

// Professor is a reviewable faculty member.
type Professor struct {
	ID             string   `json:"id" bson:"_id"`
	FirstName      string   `json:"first_name" bson:"first_name"`
	LastName       string   `json:"last_name" bson:"last_name"`
	Email          string   `json:"email" bson:"email"`
	Title          string   `json:"title" bson:"title"`
	Department     string   `json:"department" bson:"department"`
	DepartmentName string   `json:"department_name" bson:"department_name"`
	Courses        []string `json:"courses" bson:"courses"`
	Tags           []string `json:"tags" bson:"tags"`

	Aggregate `bson:",inline"`

	ReviewIDs []string  `json:"review_ids" bson:"review_ids"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// FullName returns "First Last".
func (p *Professor) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ProfessorDetail is a professor with its most recent reviews.
type ProfessorDetail struct {
	Professor
	Reviews []Review `json:"reviews"`
}

// ValidTitles returns the accepted academic titles.
func ValidTitles() []string {
	return []string{TitleProfessor, TitleAssociateProfessor, TitleAssistantProfessor, TitleLecturer, TitleInstructor}
}

// IsValidTitle reports whether t is an accepted title.
func IsValidTitle(t string) bool {
	for _, v := range ValidTitles() {
		if v == t {
			return true
		}
	}
	return false
}

// ProfessorSorts returns the sort orders accepted when listing professors.
func ProfessorSorts() []string {
	return []string{EntitySortRating, EntitySortReviews, EntitySortName}
}

// Normalize trims display fields, lower-cases the email and defaults the title.
func (p *Professor) Normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Department = strings.TrimSpace(p.Department)
	p.DepartmentName = strings.TrimSpace(p.DepartmentName)
	if p.Title == "" {
		p.Title = TitleProfessor
	}
	if p.Courses == nil {
		p.Courses = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

// Validate returns field messages for invalid catalogue fields, or nil.
func (p *Professor) Validate() map[string]string {
	fields := map[string]string{}
	if p.FirstName == "" {
		fields["first_name"] = "is required"
	}
	if p.LastName == "" {
		fields["last_name"] = "is required"
	}
	if _, err := mail.ParseAddress(p.Email); err != nil || p.Email == "" {
		fields["email"] = "must be a valid email address"
	}
	if !IsValidTitle(p.Title) {
		fields["title"] = "must be one of: " + strings.Join(ValidTitles(), ", ")
	}
	if p.Department == "" {
		fields["department"] = "is required"
	}
	if p.DepartmentName == "" {
		fields["department_name"] = "is required"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
