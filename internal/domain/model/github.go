package model

// UserProfile is a GitHub user as shown in search results and rows.
// It is also the shape persisted for the selected account.
type UserProfile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url"`
	HTMLURL   string `json:"html_url,omitempty"`
}

// RepoProfile is a GitHub repository.
type RepoProfile struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	FullName       string `json:"full_name"`
	Description    string `json:"description,omitempty"`
	OwnerLogin     string `json:"owner_login"`
	OwnerAvatarURL string `json:"owner_avatar_url"`
	Stars          int    `json:"stargazers_count"`
	HTMLURL        string `json:"html_url,omitempty"`
}

// SearchResults holds the combined user and repo search.
type SearchResults struct {
	Users []UserProfile `json:"users"`
	Repos []RepoProfile `json:"repos"`
}
