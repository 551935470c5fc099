package domain

// EntityKind identifies what a review is about.
type EntityKind string

// Reviewable entity kinds.
const (
	KindProfessor EntityKind = "professor"
	KindCourse    EntityKind = "course"
)

// Professor rating dimensions.
const (
	DimensionClarity       = "clarity"
	DimensionHelpfulness   = "helpfulness"
	DimensionEngagement    = "engagement"
	DimensionGrading       = "grading"
	DimensionWorkload      = "workload"
	DimensionCommunication = "communication"
)

// Course rating dimensions. Workload is shared with professors.
const (
	DimensionDifficulty     = "difficulty"
	DimensionUsefulness     = "usefulness"
	DimensionContentQuality = "content_quality"
)

var (
	professorDimensions = []string{
		DimensionClarity,
		DimensionHelpfulness,
		DimensionEngagement,
		DimensionGrading,
		DimensionWorkload,
		DimensionCommunication,
	}
	courseDimensions = []string{
		DimensionDifficulty,
		DimensionWorkload,
		DimensionUsefulness,
		DimensionContentQuality,
	}
)

// ValidKinds returns every reviewable kind.
func ValidKinds() []EntityKind {
	return []EntityKind{KindProfessor, KindCourse}
}

// ParseKind converts s into an EntityKind.
func ParseKind(s string) (EntityKind, bool) {
	k := EntityKind(s)
	return k, k.Valid()
}

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	return k == KindProfessor || k == KindCourse
}

func (k EntityKind) String() string { return string(k) }

// Dimensions returns the fixed dimension key set for k, in display order.
// The returned slice must not be modified.
func (k EntityKind) Dimensions() []string {
	switch k {
	case KindProfessor:
		return professorDimensions
	case KindCourse:
		return courseDimensions
	default:
		return nil
	}
}

// HasDimension reports whether dim is one of k's dimensions.
func (k EntityKind) HasDimension(dim string) bool {
	for _, d := range k.Dimensions() {
		if d == dim {
			return true
		}
	}
	return false
}
