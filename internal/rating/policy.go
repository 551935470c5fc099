package rating

import "fmt"

// UnsetPolicy decides how a dimension score of 0 ("not rated") enters the
// dimension average.
type UnsetPolicy string

const (
	// PolicyExclude averages each dimension over the reviews that rated it.
	PolicyExclude UnsetPolicy = "exclude"
	// PolicyLiteral sums unrated scores as 0 and divides by the review count.
	PolicyLiteral UnsetPolicy = "literal"
)

// ParseUnsetPolicy converts s into a policy. Empty means PolicyExclude.
func ParseUnsetPolicy(s string) (UnsetPolicy, error) {
	switch UnsetPolicy(s) {
	case "", PolicyExclude:
		return PolicyExclude, nil
	case PolicyLiteral:
		return PolicyLiteral, nil
	default:
		return "", fmt.Errorf("unknown rating unset policy %q (want %q or %q)", s, PolicyExclude, PolicyLiteral)
	}
}
