package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/talentforge/talentforge-api/internal/dto"
	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/service"
	"github.com/talentforge/talentforge-api/internal/store"
)

type stubAttemptService struct {
	response dto.AttemptResponse
	err      error
}

func (s stubAttemptService) Invite(ctx context.Context, payload dto.AttemptInviteRequest) (dto.AttemptResponse, error) {
	return s.response, s.err
}

func (s stubAttemptService) Start(ctx context.Context, payload dto.AttemptStartRequest) (dto.AttemptResponse, error) {
	return s.response, s.err
}

func (s stubAttemptService) Complete(ctx context.Context, id uint) (dto.AttemptResponse, error) {
	return s.response, s.err
}

func (s stubAttemptService) Evaluate(ctx context.Context, id uint, payload dto.AttemptEvaluateRequest) (dto.AttemptResponse, error) {
	return s.response, s.err
}

func (s stubAttemptService) Get(ctx context.Context, id uint) (dto.AttemptResponse, error) {
	return s.response, s.err
}

func (s stubAttemptService) ListByAssessment(ctx context.Context, assessmentID uint) ([]dto.AttemptResponse, error) {
	return []dto.AttemptResponse{s.response}, s.err
}

func (s stubAttemptService) IsOverdue(ctx context.Context, id uint) (bool, error) {
	return false, s.err
}

func newAttemptApp(svc service.AttemptService) *fiber.App {
	app := fiber.New()
	h := NewAttemptHandler(svc, zerolog.Nop())
	h.Register(app.Group("/attempts"))
	h.RegisterCandidate(app.Group("/candidate/attempts"))
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload interface{}) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestInviteReturnsCreated(t *testing.T) {
	app := newAttemptApp(stubAttemptService{response: dto.AttemptResponse{ID: 1, Status: models.AttemptStatusInvited}})

	resp := postJSON(t, app, "/attempts/invite", dto.AttemptInviteRequest{
		AssessmentID:   1,
		CandidateEmail: "jane@example.com",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestInviteConflictOnDuplicate(t *testing.T) {
	app := newAttemptApp(stubAttemptService{err: service.ErrAttemptExists})

	resp := postJSON(t, app, "/attempts/invite", dto.AttemptInviteRequest{
		AssessmentID:   1,
		CandidateEmail: "jane@example.com",
	})
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestStartUnauthorizedOnExpiredCredentials(t *testing.T) {
	app := newAttemptApp(stubAttemptService{err: store.ErrCredentialsExpired})

	resp := postJSON(t, app, "/candidate/attempts/start", dto.AttemptStartRequest{
		AssessmentID: 1,
		Email:        "jane@example.com",
	})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCompleteConflictOnIllegalTransition(t *testing.T) {
	app := newAttemptApp(stubAttemptService{err: &models.IllegalTransitionError{
		Entity: "attempt",
		From:   models.AttemptStatusInvited,
		To:     models.AttemptStatusCompleted,
	}})

	resp := postJSON(t, app, "/attempts/5/complete", nil)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestGetNotFound(t *testing.T) {
	app := newAttemptApp(stubAttemptService{err: service.ErrAttemptNotFound})

	req := httptest.NewRequest(http.MethodGet, "/attempts/99", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetRejectsBadID(t *testing.T) {
	app := newAttemptApp(stubAttemptService{})

	req := httptest.NewRequest(http.MethodGet, "/attempts/not-a-number", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
