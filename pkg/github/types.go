package github

import (
	"errors"
	"fmt"
	"time"
)

// Repository is the subset of the host's repository object the platform uses.
type Repository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	IsTemplate    bool   `json:"is_template"`
}

// Invitation is a pending repository collaborator invitation.
type Invitation struct {
	ID      int64 `json:"id"`
	Invitee struct {
		Login string `json:"login"`
	} `json:"invitee"`
	Repository Repository `json:"repository"`
}

// Branch describes a repository branch and its head commit.
type Branch struct {
	Name   string `json:"name"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

// FileContent is a file read from the contents API. Content is base64-encoded
// as delivered by the host.
type FileContent struct {
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// InstallationToken is a minted installation access token. ExpiresAt is the
// host's expiry, never a locally computed one.
type InstallationToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuthenticatedUser identifies the owner of a bearer token.
type AuthenticatedUser struct {
	Login string `json:"login"`
	Email string `json:"email"`
}

// APIError is any non-2xx response from the host. It carries the status code
// and raw body so callers can decide recoverability; no call retries
// internally.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error: status %d: %s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is (or wraps) an APIError with the given
// status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
