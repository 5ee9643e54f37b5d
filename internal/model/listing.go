package model

type Listing struct {
	ID          string   `json:"id" dynamodbav:"id"`
	UserID      string   `json:"user_id" dynamodbav:"user_id"`
	CreatedAt   int64    `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   int64    `json:"updated_at" dynamodbav:"updated_at"`
	Name        string   `json:"name" dynamodbav:"name"`
	Slug        string   `json:"slug" dynamodbav:"slug"`
	ChildIDs    []string `json:"child_ids" dynamodbav:"child_ids"`
	Description string   `json:"description,omitempty" dynamodbav:"description,omitempty"`
	OnshapeURL  string   `json:"onshape_url,omitempty" dynamodbav:"onshape_url,omitempty"`
	Views       int64    `json:"views" dynamodbav:"views"`
	Score       int64    `json:"score" dynamodbav:"score"`
	Upvotes     int64    `json:"upvotes" dynamodbav:"upvotes"`
	Downvotes   int64    `json:"downvotes" dynamodbav:"downvotes"`
}

// CanWrite reports whether u may edit or delete the listing.
func (l *Listing) CanWrite(u *User) bool {
	return u.IsAdmin() || u.IsMod() || u.ID == l.UserID
}

// ListingTag marks a listing with a tag such as "gripper" or "actuator".
type ListingTag struct {
	ID        string `json:"id" dynamodbav:"id"`
	ListingID string `json:"listing_id" dynamodbav:"listing_id"`
	Name      string `json:"name" dynamodbav:"name"`
}

type ListingVote struct {
	ID        string `json:"id" dynamodbav:"id"`
	UserID    string `json:"user_id" dynamodbav:"user_id"`
	ListingID string `json:"listing_id" dynamodbav:"listing_id"`
	IsUpvote  bool   `json:"is_upvote" dynamodbav:"is_upvote"`
	CreatedAt int64  `json:"created_at" dynamodbav:"created_at"`
}

// FeaturedListingsID is the fixed id of the single featured listings row.
const FeaturedListingsID = "featured_listings"

type FeaturedListings struct {
	ID         string   `json:"id" dynamodbav:"id"`
	ListingIDs []string `json:"listing_ids" dynamodbav:"listing_ids"`
}
