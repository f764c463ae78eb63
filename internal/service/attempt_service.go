package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talentforge/talentforge-api/internal/dto"
	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/observability"
	"github.com/talentforge/talentforge-api/internal/repository"
	"github.com/talentforge/talentforge-api/internal/store"
)

// ErrAttemptNotFound indicates an attempt could not be found.
var ErrAttemptNotFound = errors.New("attempt not found")

// ErrAttemptExists indicates the (candidate, assessment) pair already has an
// attempt past the invited stage. At most one attempt exists per pair.
var ErrAttemptExists = errors.New("attempt already exists for candidate and assessment")

// ErrAssessmentNotActive indicates the assessment is not accepting attempts.
var ErrAssessmentNotActive = errors.New("assessment is not active")

// credentialSource provides the candidate's transient VCS credentials.
type credentialSource interface {
	GetCredentials(ctx context.Context, email string) (store.CandidateCredentials, error)
}

// AttemptService owns the candidate attempt lifecycle: INVITED, STARTED,
// COMPLETED, EVALUATED, strictly in that order. Transition validation happens
// in memory before any external call, so an invalid request never leaves
// partial side effects.
type AttemptService interface {
	Invite(ctx context.Context, payload dto.AttemptInviteRequest) (dto.AttemptResponse, error)
	Start(ctx context.Context, payload dto.AttemptStartRequest) (dto.AttemptResponse, error)
	Complete(ctx context.Context, id uint) (dto.AttemptResponse, error)
	Evaluate(ctx context.Context, id uint, payload dto.AttemptEvaluateRequest) (dto.AttemptResponse, error)
	Get(ctx context.Context, id uint) (dto.AttemptResponse, error)
	ListByAssessment(ctx context.Context, assessmentID uint) ([]dto.AttemptResponse, error)
	IsOverdue(ctx context.Context, id uint) (bool, error)
}

type attemptService struct {
	attempts       repository.AttemptRepository
	candidates     repository.CandidateRepository
	assessments    repository.AssessmentRepository
	evaluations    repository.EvaluationRepository
	credentials    credentialSource
	provisioner    ProvisioningService
	installTokens  InstallationTokenService
	installationID int64
	validator      *validator.Validate
	events         EventPublisher
	logger         zerolog.Logger
	now            func() time.Time
}

// NewAttemptService constructs an AttemptService. installationID identifies
// the platform organization's own installation, whose tokens act as the
// inviter credential during candidate provisioning.
func NewAttemptService(attempts repository.AttemptRepository, candidates repository.CandidateRepository, assessments repository.AssessmentRepository, evaluations repository.EvaluationRepository, credentials credentialSource, provisioner ProvisioningService, installTokens InstallationTokenService, installationID int64, validate *validator.Validate, events EventPublisher, logger zerolog.Logger) AttemptService {
	return &attemptService{
		attempts:       attempts,
		candidates:     candidates,
		assessments:    assessments,
		evaluations:    evaluations,
		credentials:    credentials,
		provisioner:    provisioner,
		installTokens:  installTokens,
		installationID: installationID,
		validator:      validate,
		events:         events,
		logger:         logger.With().Str("component", "attempt_service").Logger(),
		now:            time.Now,
	}
}

func (s *attemptService) Invite(ctx context.Context, payload dto.AttemptInviteRequest) (dto.AttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AttemptResponse{}, err
	}

	assessment, err := s.loadAssessment(ctx, payload.AssessmentID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	candidate, err := s.findOrCreateCandidate(ctx, payload.CandidateEmail, payload.CandidateName)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	if _, err := s.attempts.GetByPair(ctx, candidate.ID, assessment.ID); err == nil {
		return dto.AttemptResponse{}, ErrAttemptExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.AttemptResponse{}, err
	}

	attempt := models.CandidateAttempt{
		Status:       models.AttemptStatusInvited,
		CandidateID:  candidate.ID,
		AssessmentID: assessment.ID,
	}

	if err := s.attempts.Create(ctx, &attempt); err != nil {
		return dto.AttemptResponse{}, err
	}

	attempt.Candidate = candidate
	attempt.Assessment = assessment
	s.publishEvent(ctx, EventAttemptInvited, attempt, candidate.Email)

	s.logger.Info().Uint("attempt_id", attempt.ID).Str("candidate", candidate.Email).Msg("candidate invited")

	return dto.NewAttemptResponse(attempt, s.now()), nil
}

func (s *attemptService) Start(ctx context.Context, payload dto.AttemptStartRequest) (dto.AttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AttemptResponse{}, err
	}

	creds, err := s.credentials.GetCredentials(ctx, payload.Email)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	assessment, err := s.loadAssessment(ctx, payload.AssessmentID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}
	if assessment.Status != models.AssessmentStatusActive {
		return dto.AttemptResponse{}, ErrAssessmentNotActive
	}

	candidate, err := s.findOrCreateCandidate(ctx, payload.Email, "")
	if err != nil {
		return dto.AttemptResponse{}, err
	}
	if candidate.GithubLogin != creds.Username {
		candidate.GithubLogin = creds.Username
		if err := s.candidates.Update(ctx, &candidate); err != nil {
			return dto.AttemptResponse{}, err
		}
	}

	attempt, err := s.attempts.GetByPair(ctx, candidate.ID, assessment.ID)
	switch {
	case err == nil:
		// A pair may only be started once.
		if attempt.Status != models.AttemptStatusInvited {
			return dto.AttemptResponse{}, ErrAttemptExists
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		attempt = models.CandidateAttempt{
			Status:       models.AttemptStatusInvited,
			CandidateID:  candidate.ID,
			AssessmentID: assessment.ID,
		}
		if err := s.attempts.Create(ctx, &attempt); err != nil {
			return dto.AttemptResponse{}, err
		}
	default:
		return dto.AttemptResponse{}, err
	}

	platformToken, err := s.installTokens.Token(ctx, s.installationID)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	templateOwner, templateRepo, ok := strings.Cut(assessment.TemplateRepoFullName, "/")
	if !ok {
		return dto.AttemptResponse{}, fmt.Errorf("assessment %d has no template repository", assessment.ID)
	}

	provisioned, err := s.provisioner.ProvisionCandidate(ctx, CandidateProvision{
		InviterToken:  platformToken,
		InviteeToken:  creds.Token,
		CandidateUser: creds.Username,
		TemplateOwner: templateOwner,
		TemplateRepo:  templateRepo,
		RepoName:      buildCandidateRepoName(assessment.ID, payload.Email),
	})
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	if err := attempt.Advance(models.AttemptStatusStarted, s.now()); err != nil {
		return dto.AttemptResponse{}, err
	}
	attempt.Language = payload.Language
	attempt.RepoURL = provisioned.HTMLURL
	attempt.RepoFullName = provisioned.FullName

	if err := s.attempts.Update(ctx, &attempt); err != nil {
		return dto.AttemptResponse{}, err
	}

	observability.AttemptTransitions().WithLabelValues(models.AttemptStatusStarted).Inc()
	attempt.Candidate = candidate
	attempt.Assessment = assessment
	s.publishEvent(ctx, EventAttemptStarted, attempt, candidate.Email)

	s.logger.Info().Uint("attempt_id", attempt.ID).Str("repo", provisioned.FullName).Msg("attempt started")

	return dto.NewAttemptResponse(attempt, s.now()), nil
}

func (s *attemptService) Complete(ctx context.Context, id uint) (dto.AttemptResponse, error) {
	attempt, err := s.loadAttempt(ctx, id)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	if err := attempt.Advance(models.AttemptStatusCompleted, s.now()); err != nil {
		return dto.AttemptResponse{}, err
	}

	if err := s.attempts.Update(ctx, &attempt); err != nil {
		return dto.AttemptResponse{}, err
	}

	observability.AttemptTransitions().WithLabelValues(models.AttemptStatusCompleted).Inc()
	s.publishEvent(ctx, EventAttemptCompleted, attempt, attempt.Candidate.Email)

	s.logger.Info().Uint("attempt_id", attempt.ID).Msg("attempt completed")

	return dto.NewAttemptResponse(attempt, s.now()), nil
}

func (s *attemptService) Evaluate(ctx context.Context, id uint, payload dto.AttemptEvaluateRequest) (dto.AttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AttemptResponse{}, err
	}

	attempt, err := s.loadAttempt(ctx, id)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	// Reject the transition before writing the evaluation row.
	if err := attempt.Advance(models.AttemptStatusEvaluated, s.now()); err != nil {
		return dto.AttemptResponse{}, err
	}

	evaluation := models.Evaluation{
		Score:    payload.Score,
		Verdict:  payload.Verdict,
		Feedback: payload.Feedback,
		Details:  datatypes.JSONMap(payload.Details),
	}
	if err := s.evaluations.Create(ctx, &evaluation); err != nil {
		return dto.AttemptResponse{}, err
	}

	attempt.EvaluationID = &evaluation.ID
	if err := s.attempts.Update(ctx, &attempt); err != nil {
		return dto.AttemptResponse{}, err
	}

	observability.AttemptTransitions().WithLabelValues(models.AttemptStatusEvaluated).Inc()
	s.publishEvent(ctx, EventAttemptEvaluated, attempt, attempt.Candidate.Email)

	s.logger.Info().Uint("attempt_id", attempt.ID).Float64("score", evaluation.Score).Msg("attempt evaluated")

	return dto.NewAttemptResponse(attempt, s.now()), nil
}

func (s *attemptService) Get(ctx context.Context, id uint) (dto.AttemptResponse, error) {
	attempt, err := s.loadAttempt(ctx, id)
	if err != nil {
		return dto.AttemptResponse{}, err
	}

	return dto.NewAttemptResponse(attempt, s.now()), nil
}

func (s *attemptService) ListByAssessment(ctx context.Context, assessmentID uint) ([]dto.AttemptResponse, error) {
	attempts, err := s.attempts.ListByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	return dto.NewAttemptResponseSlice(attempts, s.now()), nil
}

func (s *attemptService) IsOverdue(ctx context.Context, id uint) (bool, error) {
	attempt, err := s.loadAttempt(ctx, id)
	if err != nil {
		return false, err
	}

	return attempt.IsOverdue(attempt.Assessment, s.now()), nil
}

func (s *attemptService) loadAttempt(ctx context.Context, id uint) (models.CandidateAttempt, error) {
	attempt, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CandidateAttempt{}, ErrAttemptNotFound
		}
		return models.CandidateAttempt{}, err
	}

	return attempt, nil
}

func (s *attemptService) loadAssessment(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}

	// The passive expiry check runs on every touch of the entity.
	if assessment.ExpireIfDue(s.now()) {
		if err := s.assessments.Update(ctx, &assessment); err != nil {
			return models.Assessment{}, err
		}
	}

	return assessment, nil
}

func (s *attemptService) findOrCreateCandidate(ctx context.Context, email, name string) (models.Candidate, error) {
	candidate, err := s.candidates.GetByEmail(ctx, email)
	if err == nil {
		return candidate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Candidate{}, err
	}

	candidate = models.Candidate{Email: email, Name: name}
	if err := s.candidates.Create(ctx, &candidate); err != nil {
		return models.Candidate{}, err
	}

	return candidate, nil
}

func (s *attemptService) publishEvent(ctx context.Context, eventType string, attempt models.CandidateAttempt, email string) {
	if s.events == nil {
		return
	}

	event := LifecycleEvent{
		Type:           eventType,
		AssessmentID:   attempt.AssessmentID,
		AttemptID:      attempt.ID,
		CandidateEmail: email,
		Status:         attempt.Status,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("failed to publish lifecycle event")
	}
}

// buildCandidateRepoName derives the working repository name from the
// assessment id and the candidate's email local part, e.g.
// assessment-42-c for c@x.com.
func buildCandidateRepoName(assessmentID uint, email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}

	local = strings.ToLower(local)
	local = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, local)
	local = strings.Trim(local, "-")
	if local == "" {
		local = "candidate"
	}

	return fmt.Sprintf("assessment-%d-%s", assessmentID, local)
}
