package http

import (
	"time"

	"github.com/utafrali/proflens/internal/domain"
	"github.com/utafrali/proflens/internal/service"
)

// --- Request DTOs ---

// CreateReviewRequest is the JSON request body for creating a review.
type CreateReviewRequest struct {
	Type        string         `json:"type" validate:"required,oneof=professor course"`
	ProfessorID string         `json:"professor_id" validate:"omitempty,uuid"`
	CourseID    string         `json:"course_id" validate:"omitempty,uuid"`
	Rating      int            `json:"rating" validate:"required,min=1,max=5"`
	Ratings     map[string]int `json:"ratings" validate:"omitempty,dive,min=0,max=5"`
	Comment     string         `json:"comment" validate:"required"`
	Semester    string         `json:"semester" validate:"max=40"`
	CourseTaken string         `json:"course_taken" validate:"max=20"`
	Anonymous   *bool          `json:"anonymous"`
}

// UpdateReviewRequest is the JSON request body for updating a review. Type,
// target and author cannot be changed.
type UpdateReviewRequest struct {
	Rating      *int           `json:"rating" validate:"omitempty,min=1,max=5"`
	Ratings     map[string]int `json:"ratings" validate:"omitempty,dive,min=0,max=5"`
	Comment     *string        `json:"comment"`
	Semester    *string        `json:"semester" validate:"omitempty,max=40"`
	CourseTaken *string        `json:"course_taken" validate:"omitempty,max=20"`
	Anonymous   *bool          `json:"anonymous"`
}

// ProfessorRequest is the JSON body for creating or updating a professor.
// Aggregate fields are not accepted.
type ProfessorRequest struct {
	FirstName      *string  `json:"first_name" validate:"omitempty,max=100"`
	LastName       *string  `json:"last_name" validate:"omitempty,max=100"`
	Email          *string  `json:"email" validate:"omitempty,email"`
	Title          *string  `json:"title"`
	Department     *string  `json:"department" validate:"omitempty,max=20"`
	DepartmentName *string  `json:"department_name" validate:"omitempty,max=200"`
	Courses        []string `json:"courses" validate:"omitempty,dive,max=20"`
	Tags           []string `json:"tags" validate:"omitempty,dive,max=50"`
}

// CourseRequest is the JSON body for creating or updating a course.
type CourseRequest struct {
	Code           *string  `json:"code" validate:"omitempty,max=20"`
	Name           *string  `json:"name" validate:"omitempty,max=200"`
	Department     *string  `json:"department" validate:"omitempty,max=20"`
	DepartmentName *string  `json:"department_name" validate:"omitempty,max=200"`
	Credits        *int     `json:"credits"`
	Description    *string  `json:"description" validate:"omitempty,max=2000"`
	ProfessorIDs   []string `json:"professor_ids" validate:"omitempty,dive,uuid"`
	Tags           []string `json:"tags" validate:"omitempty,dive,max=50"`
}

func (r CreateReviewRequest) toInput(userID string) service.CreateReviewInput {
	return service.CreateReviewInput{
		UserID:      userID,
		Type:        r.Type,
		ProfessorID: r.ProfessorID,
		CourseID:    r.CourseID,
		Rating:      r.Rating,
		Ratings:     r.Ratings,
		Comment:     r.Comment,
		Semester:    r.Semester,
		CourseTaken: r.CourseTaken,
		Anonymous:   r.Anonymous,
	}
}

func (r UpdateReviewRequest) toInput() service.UpdateReviewInput {
	return service.UpdateReviewInput{
		Rating:      r.Rating,
		Ratings:     r.Ratings,
		Comment:     r.Comment,
		Semester:    r.Semester,
		CourseTaken: r.CourseTaken,
		Anonymous:   r.Anonymous,
	}
}

func (r ProfessorRequest) toInput() service.ProfessorInput {
	return service.ProfessorInput{
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Email:          r.Email,
		Title:          r.Title,
		Department:     r.Department,
		DepartmentName: r.DepartmentName,
		Courses:        r.Courses,
		Tags:           r.Tags,
	}
}

func (r CourseRequest) toInput() service.CourseInput {
	return service.CourseInput{
		Code:           r.Code,
		Name:           r.Name,
		Department:     r.Department,
		DepartmentName: r.DepartmentName,
		Credits:        r.Credits,
		Description:    r.Description,
		ProfessorIDs:   r.ProfessorIDs,
		Tags:           r.Tags,
	}
}

// --- Response DTOs ---

// ReviewResponse is the public view of a review. The author is omitted from
// anonymous reviews unless the caller is the author or an admin, and the
// helpful voter list is never exposed.
type ReviewResponse struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id,omitempty"`
	Type        string         `json:"type"`
	TargetID    string         `json:"target_id"`
	Rating      int            `json:"rating"`
	Ratings     map[string]int `json:"ratings"`
	Comment     string         `json:"comment"`
	Semester    string         `json:"semester"`
	CourseTaken string         `json:"course_taken,omitempty"`
	Anonymous   bool           `json:"anonymous"`
	Verified    bool           `json:"verified"`
	Helpful     int            `json:"helpful"`
	Reported    bool           `json:"reported"`
	ReportCount int            `json:"report_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ProfessorDetailResponse is a professor with its most recent reviews.
type ProfessorDetailResponse struct {
	domain.Professor
	Reviews []ReviewResponse `json:"reviews"`
}

// CourseDetailResponse is a course with its most recent reviews.
type CourseDetailResponse struct {
	domain.Course
	Reviews []ReviewResponse `json:"reviews"`
}

func toReviewResponse(r domain.Review, caller domain.Caller) ReviewResponse {
	resp := ReviewResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        r.Type.String(),
		TargetID:    r.TargetID,
		Rating:      r.Rating,
		Ratings:     r.Ratings,
		Comment:     r.Comment,
		Semester:    r.Semester,
		CourseTaken: r.CourseTaken,
		Anonymous:   r.Anonymous,
		Verified:    r.Verified,
		Helpful:     r.Helpful,
		Reported:    r.Reported,
		ReportCount: r.ReportCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.Anonymous && !caller.CanModify(r.UserID) {
		resp.UserID = ""
	}
	if resp.Ratings == nil {
		resp.Ratings = map[string]int{}
	}
	return resp
}

func toReviewResponses(reviews []domain.Review, caller domain.Caller) []ReviewResponse {
	out := make([]ReviewResponse, 0, len(reviews))
	for _, r := range reviews {
		out = append(out, toReviewResponse(r, caller))
	}
	return out
}
