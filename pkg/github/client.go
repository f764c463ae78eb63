package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "talentforge",
		Subsystem: "github",
		Name:      "request_duration_seconds",
		Help:      "Duration of VCS host API requests",
	}, []string{"operation"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "talentforge",
		Subsystem: "github",
		Name:      "request_failures_total",
		Help:      "Number of failed VCS host API requests",
	}, []string{"operation", "status"})
)

// Config defines connection settings for the VCS host.
type Config struct {
	BaseURL      string
	OAuthBaseURL string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

// Client is a stateless wrapper over the VCS host's REST surface. Every
// operation takes the bearer token to act as, performs exactly one HTTP round
// trip, and maps any non-2xx response to an *APIError.
type Client struct {
	baseURL      string
	oauthBaseURL string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	tracer       trace.Tracer
	logger       zerolog.Logger
}

// New constructs a VCS host client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	if cfg.OAuthBaseURL == "" {
		cfg.OAuthBaseURL = "https://github.com"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		oauthBaseURL: strings.TrimRight(cfg.OAuthBaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient:   cfg.HTTPClient,
		tracer:       otel.Tracer("github.com/talentforge/talentforge-api/pkg/github"),
		logger:       logger.With().Str("component", "github_client").Logger(),
	}, nil
}

type createRepoRequest struct {
	Name       string `json:"name"`
	Private    bool   `json:"private"`
	IsTemplate bool   `json:"is_template"`
}

// CreateUserRepo creates a repository under the token owner's personal account.
func (c *Client) CreateUserRepo(ctx context.Context, token, name string, private, isTemplate bool) (Repository, error) {
	var repo Repository
	payload := createRepoRequest{Name: name, Private: private, IsTemplate: isTemplate}
	err := c.do(ctx, "create_user_repo", http.MethodPost, c.baseURL+"/user/repos", token, payload, &repo)
	return repo, err
}

// CreateOrgRepo creates a repository under the given organization.
func (c *Client) CreateOrgRepo(ctx context.Context, token, org, name string, private, isTemplate bool) (Repository, error) {
	var repo Repository
	payload := createRepoRequest{Name: name, Private: private, IsTemplate: isTemplate}
	endpoint := fmt.Sprintf("%s/orgs/%s/repos", c.baseURL, url.PathEscape(org))
	err := c.do(ctx, "create_org_repo", http.MethodPost, endpoint, token, payload, &repo)
	return repo, err
}

// GetRepo fetches a repository by owner and name. Provisioning re-runs use it
// to recover metadata for a repository created by an earlier partial run.
func (c *Client) GetRepo(ctx context.Context, token, owner, repo string) (Repository, error) {
	var result Repository
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	err := c.do(ctx, "get_repo", http.MethodGet, endpoint, token, nil, &result)
	return result, err
}

// GenerateFromTemplate creates a new repository as a copy of a template
// repository.
func (c *Client) GenerateFromTemplate(ctx context.Context, token, templateOwner, templateRepo, owner, name string, private bool) (Repository, error) {
	var repo Repository
	payload := struct {
		Owner   string `json:"owner"`
		Name    string `json:"name"`
		Private bool   `json:"private"`
	}{Owner: owner, Name: name, Private: private}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/generate", c.baseURL, url.PathEscape(templateOwner), url.PathEscape(templateRepo))
	err := c.do(ctx, "generate_from_template", http.MethodPost, endpoint, token, payload, &repo)
	return repo, err
}

// AddCollaborator grants the named account collaborator access. The host
// answers 201 when an invitation was created and 204 when the account already
// collaborates; both are success here.
func (c *Client) AddCollaborator(ctx context.Context, token, owner, repo, username string) error {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/collaborators/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(username))
	return c.do(ctx, "add_collaborator", http.MethodPut, endpoint, token, nil, nil)
}

// ListInvitations returns the pending collaborator invitations on a repository.
func (c *Client) ListInvitations(ctx context.Context, token, owner, repo string) ([]Invitation, error) {
	var invitations []Invitation
	endpoint := fmt.Sprintf("%s/repos/%s/%s/invitations", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	err := c.do(ctx, "list_invitations", http.MethodGet, endpoint, token, nil, &invitations)
	return invitations, err
}

// AcceptInvitation accepts a pending invitation. The token must belong to the
// invitee; the host rejects acceptance by the inviter.
func (c *Client) AcceptInvitation(ctx context.Context, inviteeToken string, invitationID int64) error {
	endpoint := fmt.Sprintf("%s/user/repository_invitations/%d", c.baseURL, invitationID)
	return c.do(ctx, "accept_invitation", http.MethodPatch, endpoint, inviteeToken, nil, nil)
}

// GetBranch resolves a branch and its current head commit SHA.
func (c *Client) GetBranch(ctx context.Context, token, owner, repo, branch string) (Branch, error) {
	var result Branch
	endpoint := fmt.Sprintf("%s/repos/%s/%s/branches/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(branch))
	err := c.do(ctx, "get_branch", http.MethodGet, endpoint, token, nil, &result)
	return result, err
}

// CreateBranch creates a new branch pointing at the given commit SHA.
func (c *Client) CreateBranch(ctx context.Context, token, owner, repo, branch, sha string) error {
	payload := struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}{Ref: "refs/heads/" + branch, SHA: sha}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/refs", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	return c.do(ctx, "create_branch", http.MethodPost, endpoint, token, payload, nil)
}

// GetContents reads a file from the repository, optionally at a branch ref.
// The returned content is base64-encoded.
func (c *Client) GetContents(ctx context.Context, token, owner, repo, path, ref string) (FileContent, error) {
	var content FileContent
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), path)
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}

	err := c.do(ctx, "get_contents", http.MethodGet, endpoint, token, nil, &content)
	return content, err
}

// PutContentsRequest describes a file create or update.
type PutContentsRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// PutContents creates or updates a file. Content must already be
// base64-encoded; SHA is required when updating an existing file.
func (c *Client) PutContents(ctx context.Context, token, owner, repo, path string, req PutContentsRequest) (FileContent, error) {
	var response struct {
		Content FileContent `json:"content"`
	}
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), path)
	err := c.do(ctx, "put_contents", http.MethodPut, endpoint, token, req, &response)
	return response.Content, err
}

// DeleteContents removes a file at the given path.
func (c *Client) DeleteContents(ctx context.Context, token, owner, repo, path, message, sha, branch string) error {
	payload := struct {
		Message string `json:"message"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch,omitempty"`
	}{Message: message, SHA: sha, Branch: branch}

	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), path)
	return c.do(ctx, "delete_contents", http.MethodDelete, endpoint, token, payload, nil)
}

// CreateInstallationToken mints an installation access token using a signed
// app assertion as the bearer credential.
func (c *Client) CreateInstallationToken(ctx context.Context, assertion string, installationID int64) (InstallationToken, error) {
	var token InstallationToken
	endpoint := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.baseURL, installationID)
	err := c.do(ctx, "create_installation_token", http.MethodPost, endpoint, assertion, struct{}{}, &token)
	return token, err
}

// GetAuthenticatedUser returns the account behind the bearer token.
func (c *Client) GetAuthenticatedUser(ctx context.Context, token string) (AuthenticatedUser, error) {
	var user AuthenticatedUser
	err := c.do(ctx, "get_authenticated_user", http.MethodGet, c.baseURL+"/user", token, nil, &user)
	return user, err
}

// AuthorizeURL returns the host's OAuth authorization URL carrying the given
// CSRF state string.
func (c *Client) AuthorizeURL(state string) string {
	query := url.Values{}
	query.Set("client_id", c.clientID)
	query.Set("state", state)
	query.Set("scope", "repo")

	return c.oauthBaseURL + "/login/oauth/authorize?" + query.Encode()
}

// ExchangeOAuthCode exchanges an OAuth authorization code for a user access
// token. This is the only call that goes to the host's web origin instead of
// the API origin.
func (c *Client) ExchangeOAuthCode(ctx context.Context, code string) (string, error) {
	payload := struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
		Code         string `json:"code"`
	}{ClientID: c.clientID, ClientSecret: c.clientSecret, Code: code}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthBaseURL+"/login/oauth/access_token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues("exchange_oauth_code").Observe(time.Since(start).Seconds())
	if err != nil {
		requestFailures.WithLabelValues("exchange_oauth_code", "transport").Inc()
		return "", fmt.Errorf("github exchange_oauth_code: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("github exchange_oauth_code: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		requestFailures.WithLabelValues("exchange_oauth_code", fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var response struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := json.Unmarshal(raw, &response); err != nil {
		return "", fmt.Errorf("github exchange_oauth_code: failed to decode response: %w", err)
	}

	// The OAuth endpoint reports failures with a 200 and an error field.
	if response.Error != "" {
		return "", &APIError{StatusCode: http.StatusOK, Body: response.Error}
	}
	if response.AccessToken == "" {
		return "", &APIError{StatusCode: http.StatusOK, Body: "no access token in response"}
	}

	return response.AccessToken, nil
}

func (c *Client) do(parent context.Context, operation, method, endpoint, token string, body, out interface{}) error {
	ctx, span := c.tracer.Start(parent, "github."+operation, trace.WithAttributes(
		attribute.String("http.method", method),
	))
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		requestFailures.WithLabelValues(operation, "transport").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("github %s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("github %s: failed to read response: %w", operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		requestFailures.WithLabelValues(operation, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		c.logger.Warn().Str("operation", operation).Int("status", resp.StatusCode).Msg("github api request failed")
		return apiErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("github %s: failed to decode response: %w", operation, err)
		}
	}

	return nil
}
