package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Review limits.
const (
	MinRating         = 1
	MaxRating         = 5
	MaxDimensionScore = 5
	MinCommentLength  = 50
	MaxCommentLength  = 2000
	MaxCourseTaken    = 20
	MaxSemesterLength = 40
)

// Review sort orders accepted by the list endpoints.
const (
	ReviewSortCreatedAt = "createdAt"
	ReviewSortRating    = "rating"
	ReviewSortHelpful   = "helpful"
)

// Review is one student's rating of a professor or course. A dimension
// score of 0 means the student did not rate that dimension.
type Review struct {
	ID          string         `json:"id" bson:"_id"`
	UserID      string         `json:"user_id" bson:"user_id"`
	Type        EntityKind     `json:"type" bson:"type"`
	TargetID    string         `json:"target_id" bson:"target_id"`
	Rating      int            `json:"rating" bson:"rating"`
	Ratings     map[string]int `json:"ratings" bson:"ratings"`
	Comment     string         `json:"comment" bson:"comment"`
	Semester    string         `json:"semester" bson:"semester"`
	CourseTaken string         `json:"course_taken,omitempty" bson:"course_taken,omitempty"`
	Anonymous   bool           `json:"anonymous" bson:"anonymous"`
	Verified    bool           `json:"verified" bson:"verified"`
	Helpful     int            `json:"helpful" bson:"helpful"`
	HelpfulBy   []string       `json:"helpful_by" bson:"helpful_by"`
	Reported    bool           `json:"reported" bson:"reported"`
	ReportCount int            `json:"report_count" bson:"report_count"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" bson:"updated_at"`
}

// DefaultSemester is the semester assigned when a review omits one.
func DefaultSemester(now time.Time) string {
	return fmt.Sprintf("Fall %d", now.Year())
}

// ValidReviewSorts returns the accepted review sort orders.
func ValidReviewSorts() []string {
	return []string{ReviewSortCreatedAt, ReviewSortRating, ReviewSortHelpful}
}

// IsValidReviewSort reports whether s is an accepted sort order. Empty means default.
func IsValidReviewSort(s string) bool {
	if s == "" {
		return true
	}
	for _, v := range ValidReviewSorts() {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks the client-controlled fields of r and returns one message
// per offending field, or nil when r is valid. Dimension problems are keyed
// "ratings.<dimension>".
func (r *Review) Validate() map[string]string {
	fields := map[string]string{}

	if !r.Type.Valid() {
		fields["type"] = "must be one of: professor course"
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		fields["rating"] = fmt.Sprintf("must be between %d and %d", MinRating, MaxRating)
	}
	for dim, score := range r.Ratings {
		if r.Type.Valid() && !r.Type.HasDimension(dim) {
			fields["ratings."+dim] = fmt.Sprintf("is not a %s rating dimension", r.Type)
			continue
		}
		if score < 0 || score > MaxDimensionScore {
			fields["ratings."+dim] = fmt.Sprintf("must be between 0 and %d", MaxDimensionScore)
		}
	}

	switch n := utf8.RuneCountInString(strings.TrimSpace(r.Comment)); {
	case n < MinCommentLength:
		fields["comment"] = fmt.Sprintf("must be at least %d characters", MinCommentLength)
	case n > MaxCommentLength:
		fields["comment"] = fmt.Sprintf("must be at most %d characters", MaxCommentLength)
	}

	if utf8.RuneCountInString(r.CourseTaken) > MaxCourseTaken {
		fields["course_taken"] = fmt.Sprintf("must be at most %d characters", MaxCourseTaken)
	}
	if utf8.RuneCountInString(r.Semester) > MaxSemesterLength {
		fields["semester"] = fmt.Sprintf("must be at most %d characters", MaxSemesterLength)
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Score returns the review's score for dim, 0 when unrated.
func (r *Review) Score(dim string) int {
	return r.Ratings[dim]
}

// SameScores reports whether r and other carry the same overall rating and
// the same score for every dimension of r's kind.
func (r *Review) SameScores(other *Review) bool {
	if r.Rating != other.Rating {
		return false
	}
	for _, d := range r.Type.Dimensions() {
		if r.Score(d) != other.Score(d) {
			return false
		}
	}
	return true
}

// HasVoted reports whether userID has marked r helpful.
func (r *Review) HasVoted(userID string) bool {
	for _, id := range r.HelpfulBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of r.
func (r *Review) Clone() *Review {
	c := *r
	if r.Ratings != nil {
		c.Ratings = make(map[string]int, len(r.Ratings))
		for k, v := range r.Ratings {
			c.Ratings[k] = v
		}
	}
	c.HelpfulBy = append([]string(nil), r.HelpfulBy...)
	return &c
}

// HelpfulResult is the outcome of a helpful toggle.
type HelpfulResult struct {
	Helpful int  `json:"helpful"`
	Marked  bool `json:"marked"`
}

// ReportResult is the outcome of reporting a review.
type ReportResult struct {
	ReportCount int `json:"report_count"`
}
