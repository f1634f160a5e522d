package models

// Visibility controls who may see a user's stats and achievements.
type Visibility string

const (
	VisibilityEveryone Visibility = "everyone"
	VisibilityFriends  Visibility = "friends"
	VisibilityNoOne    Visibility = "no_one"
)

// User is a member of the social graph with a provider credential.
type User struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	ProviderUsername string     `json:"provider_username"`
	APIKey           string     `json:"-"`
	TimeZone         string     `json:"time_zone"`
	Visibility       Visibility `json:"visibility"`
	Competing        bool       `json:"competing"`
}

// ProviderName is the account name used in provider URLs.
func (u User) ProviderName() string {
	if u.ProviderUsername != "" {
		return u.ProviderUsername
	}
	return "current"
}

// Candidate is a user seen from one viewer's position in the graph.
type Candidate struct {
	User
	IsFriend bool `json:"is_friend"`
}
