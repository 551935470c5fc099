package domain

// User is the service's projection of a student: the set of reviews they
// submitted. Identity and credentials are owned by the auth provider.
type User struct {
	ID        string   `json:"id" bson:"_id"`
	ReviewIDs []string `json:"review_ids" bson:"review_ids"`
}
