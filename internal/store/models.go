package store

import "time"

type User struct {
	ID             string
	Email          string
	Username       string
	PasswordHash   string
	FullName       string
	About          string
	WebsiteURL     string
	GithubURL      string
	AvatarURL      string
	CoverURL       string
	PreferFullName bool
	CreatedAt      time.Time
}

// PublicProfile is the outward view of a user: no credential material and
// no email address.
type PublicProfile struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"fullName,omitempty"`
	About          string `json:"about,omitempty"`
	WebsiteURL     string `json:"websiteUrl,omitempty"`
	GithubURL      string `json:"githubUrl,omitempty"`
	AvatarURL      string `json:"avatarUrl,omitempty"`
	CoverURL       string `json:"coverUrl,omitempty"`
	PreferFullName bool   `json:"preferFullName,omitempty"`
}

func (u User) Public() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Username:       u.Username,
		FullName:       u.FullName,
		About:          u.About,
		WebsiteURL:     u.WebsiteURL,
		GithubURL:      u.GithubURL,
		AvatarURL:      u.AvatarURL,
		CoverURL:       u.CoverURL,
		PreferFullName: u.PreferFullName,
	}
}

type Project struct {
	ID               string
	Name             string
	Slug             string
	About            string
	Summary          string
	OwnerID          string
	Admins           []string
	Devs             []string
	Tags             []string
	Public           bool
	AllowSuggestions bool
	NextFriendlyID   int
	CreatedAt        time.Time

	// Owner is the populated owner profile when the query joined it.
	Owner *PublicProfile
}

type ElementType struct {
	ID        string
	ProjectID string
	Label     string
	Icon      string
	CreatedAt time.Time
}

type Element struct {
	ID            string
	ProjectID     string
	Name          string
	Slug          string
	Content       string
	AuthorID      string
	ElementTypeID string
	ParentID      *string
	Approved      bool
	ApprovedByID  *string
	CreatedAt     time.Time
}

type Task struct {
	ID          string
	ProjectID   string
	FriendlyID  int
	Name        string
	Description string
	Status      string
	AuthorID    string
	Elements    []string
	AssignedTo  []string
	Requires    []string
	CreatedAt   time.Time
}
