package rating

import "github.com/utafrali/proflens/internal/domain"

// Compute derives kind's aggregate from reviews, which must be the complete
// review set of one entity. An empty set yields EmptyAggregate. Only kind's
// dimensions are considered; quotients are not rounded.
func Compute(kind domain.EntityKind, reviews []domain.Review, policy UnsetPolicy) domain.Aggregate {
	agg := domain.EmptyAggregate(kind)
	n := len(reviews)
	if n == 0 {
		return agg
	}

	overall := 0
	sums := make(map[string]int, len(agg.Ratings))
	rated := make(map[string]int, len(agg.Ratings))
	for i := range reviews {
		overall += reviews[i].Rating
		for _, d := range kind.Dimensions() {
			if score := reviews[i].Score(d); score > 0 {
				sums[d] += score
				rated[d]++
			}
		}
	}

	agg.TotalReviews = n
	agg.OverallRating = float64(overall) / float64(n)
	for _, d := range kind.Dimensions() {
		denom := n
		if policy != PolicyLiteral {
			denom = rated[d]
		}
		if denom > 0 {
			agg.Ratings[d] = float64(sums[d]) / float64(denom)
		}
	}
	return agg
}
