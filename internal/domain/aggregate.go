package domain

// Aggregate holds the derived rating fields of a professor or course. They
// are recomputed from the entity's reviews and never accepted from clients.
type Aggregate struct {
	OverallRating float64            `json:"overall_rating" bson:"overall_rating"`
	TotalReviews  int                `json:"total_reviews" bson:"total_reviews"`
	Ratings       map[string]float64 `json:"ratings" bson:"ratings"`
}

// EmptyAggregate returns the aggregate of an entity without reviews: every
// field, including each of kind's dimensions, is zero.
func EmptyAggregate(kind EntityKind) Aggregate {
	ratings := make(map[string]float64, len(kind.Dimensions()))
	for _, d := range kind.Dimensions() {
		ratings[d] = 0
	}
	return Aggregate{Ratings: ratings}
}
