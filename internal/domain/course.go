package domain

import (
	"strings"
	"time"
)

// Course credit bounds.
const (
	MinCredits = 1
	MaxCredits = 6
)

// Course is a reviewable course offering.
type Course struct {
	ID             string   `json:"id" bson:"_id"`
	Code           string   `json:"code" bson:"code"`
	Name           string   `json:"name" bson:"name"`
	Department     string   `json:"department" bson:"department"`
	DepartmentName string   `json:"department_name" bson:"department_name"`
	Credits        int      `json:"credits" bson:"credits"`
	Description    string   `json:"description" bson:"description"`
	ProfessorIDs   []string `json:"professor_ids" bson:"professor_ids"`
	Tags           []string `json:"tags" bson:"tags"`

	Aggregate `bson:",inline"`

	ReviewIDs []string  `json:"review_ids" bson:"review_ids"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// CourseDetail is a course with its most recent reviews.
type CourseDetail struct {
	Course
	Reviews []Review `json:"reviews"`
}

// CourseSorts returns the sort orders accepted when listing courses.
func CourseSorts() []string {
	return []string{EntitySortRating, EntitySortReviews, EntitySortCode, EntitySortName}
}

// Normalize trims display fields and upper-cases the course code.
func (c *Course) Normalize() {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)
	c.Department = strings.TrimSpace(c.Department)
	c.DepartmentName = strings.TrimSpace(c.DepartmentName)
	c.Description = strings.TrimSpace(c.Description)
	if c.ProfessorIDs == nil {
		c.ProfessorIDs = []string{}
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
}

// Validate returns field messages for invalid catalogue fields, or nil.
func (c *Course) Validate() map[string]string {
	fields := map[string]string{}
	if c.Code == "" {
		fields["code"] = "is required"
	}
	if c.Name == "" {
		fields["name"] = "is required"
	}
	if c.Department == "" {
		fields["department"] = "is required"
	}
	if c.DepartmentName == "" {
		fields["department_name"] = "is required"
	}
	if c.Credits < MinCredits || c.Credits > MaxCredits {
		fields["credits"] = "must be between 1 and 6"
	}
	if c.Description == "" {
		fields["description"] = "is required"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// IsValidEntitySort reports whether s is one of allowed. Empty means default.
func IsValidEntitySort(s string, allowed []string) bool {
	if s == "" {
		return true
	}
	for _, v := range allowed {
		if v == s {
			return true
		}
	}
	return false
}
