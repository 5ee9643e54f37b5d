package model

// Kinds are written to the "type" attribute of every stored row.
const (
	KindUser             = "user"
	KindAPIKey           = "api_key"
	KindOAuthKey         = "oauth_key"
	KindListing          = "listing"
	KindListingTag       = "listing_tag"
	KindListingVote      = "listing_vote"
	KindArtifact         = "artifact"
	KindRobot            = "robot"
	KindRobotClass       = "robot_class"
	KindFeaturedListings = "featured_listings"
)
