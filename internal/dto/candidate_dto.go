package dto

// InstallURLRequest asks for an OAuth authorization URL for a candidate.
type InstallURLRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// InstallURLResponse carries the authorization URL the candidate must visit.
type InstallURLResponse struct {
	URL string `json:"url"`
}

// OAuthCallbackRequest describes the VCS host's redirect back to the platform.
type OAuthCallbackRequest struct {
	Email string `query:"email" validate:"required,email"`
	State string `query:"state" validate:"required"`
	Code  string `query:"code" validate:"required"`
}
