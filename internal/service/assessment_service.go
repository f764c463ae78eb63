package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/talentforge/talentforge-api/internal/dto"
	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/repository"
	"github.com/talentforge/talentforge-api/internal/security"
)

// ErrAssessmentNotFound indicates an assessment could not be found.
var ErrAssessmentNotFound = errors.New("assessment not found")

// ErrUserNotFound indicates a referenced organization user does not exist.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidDates indicates an end date that is not strictly after the start
// date.
var ErrInvalidDates = errors.New("end date must be after start date")

// AssessmentService owns the assessment lifecycle and triggers template
// repository provisioning on creation.
type AssessmentService interface {
	Create(ctx context.Context, userID uint, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error)
	Get(ctx context.Context, id uint) (dto.AssessmentResponse, error)
	List(ctx context.Context, filter dto.AssessmentFilter) ([]dto.AssessmentResponse, int64, error)
	Update(ctx context.Context, id uint, payload dto.AssessmentUpdateRequest) (dto.AssessmentResponse, error)
	Publish(ctx context.Context, id uint) (dto.AssessmentResponse, error)
	Activate(ctx context.Context, id uint) (dto.AssessmentResponse, error)
	Deactivate(ctx context.Context, id uint) (dto.AssessmentResponse, error)
}

type assessmentService struct {
	assessments  repository.AssessmentRepository
	users        repository.UserRepository
	provisioner  ProvisioningService
	cipher       *security.TokenCipher
	serviceToken string
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	events       EventPublisher
	logger       zerolog.Logger
	now          func() time.Time
}

// NewAssessmentService constructs an AssessmentService. serviceToken is the
// platform service account's VCS token, used as the invitee credential during
// template provisioning.
func NewAssessmentService(assessments repository.AssessmentRepository, users repository.UserRepository, provisioner ProvisioningService, cipher *security.TokenCipher, serviceToken string, validate *validator.Validate, events EventPublisher, logger zerolog.Logger) AssessmentService {
	return &assessmentService{
		assessments:  assessments,
		users:        users,
		provisioner:  provisioner,
		cipher:       cipher,
		serviceToken: serviceToken,
		validator:    validate,
		sanitizer:    bluemonday.StrictPolicy(),
		events:       events,
		logger:       logger.With().Str("component", "assessment_service").Logger(),
		now:          time.Now,
	}
}

func (s *assessmentService) Create(ctx context.Context, userID uint, payload dto.AssessmentCreateRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	startDate, endDate, err := parseDateRange(payload.StartDate, payload.EndDate)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssessmentResponse{}, ErrUserNotFound
		}
		return dto.AssessmentResponse{}, err
	}

	userToken, err := s.cipher.Decrypt(user.GithubTokenEnc)
	if err != nil {
		return dto.AssessmentResponse{}, fmt.Errorf("failed to decrypt user token: %w", err)
	}

	assessment := models.Assessment{
		Name:            strings.TrimSpace(s.sanitizer.Sanitize(payload.Name)),
		Description:     strings.TrimSpace(s.sanitizer.Sanitize(payload.Description)),
		Status:          models.AssessmentStatusDraft,
		StartDate:       startDate,
		EndDate:         endDate,
		DurationMinutes: payload.DurationMinutes,
		UserID:          user.ID,
		Skills:          encodeStringList(payload.Skills),
		LanguageOptions: encodeStringList(payload.LanguageOptions),
	}

	if assessment.Name == "" {
		return dto.AssessmentResponse{}, fmt.Errorf("assessment name empty after sanitization")
	}

	repoName := payload.RepoName
	if repoName == "" {
		repoName = buildRepoName(assessment.Name)
	}

	provisioned, err := s.provisioner.ProvisionTemplate(ctx, TemplateProvision{
		InviterToken: userToken,
		InviteeToken: s.serviceToken,
		AccountKind:  user.AccountKind,
		Owner:        user.RepoOwner(),
		RepoName:     repoName,
	})
	if err != nil {
		return dto.AssessmentResponse{}, fmt.Errorf("template provisioning failed: %w", err)
	}

	assessment.TemplateRepoFullName = provisioned.FullName
	assessment.TemplateRepoURL = provisioned.HTMLURL

	if err := s.save(ctx, &assessment, true); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.logger.Info().Uint("assessment_id", assessment.ID).Str("repo", provisioned.FullName).Msg("assessment created")

	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) Get(ctx context.Context, id uint) (dto.AssessmentResponse, error) {
	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	return dto.NewAssessmentResponse(assessment), nil
}

func (s *assessmentService) List(ctx context.Context, filter dto.AssessmentFilter) ([]dto.AssessmentResponse, int64, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, 0, err
	}

	assessments, total, err := s.assessments.List(ctx, repository.AssessmentFilter{
		Search:   filter.Search,
		Status:   filter.Status,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
	if err != nil {
		return nil, 0, err
	}

	return dto.NewAssessmentResponseSlice(assessments), total, nil
}

func (s *assessmentService) Update(ctx context.Context, id uint, payload dto.AssessmentUpdateRequest) (dto.AssessmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	if payload.Name != nil {
		name := strings.TrimSpace(s.sanitizer.Sanitize(*payload.Name))
		if name == "" {
			return dto.AssessmentResponse{}, fmt.Errorf("assessment name empty after sanitization")
		}
		assessment.Name = name
	}
	if payload.Description != nil {
		assessment.Description = strings.TrimSpace(s.sanitizer.Sanitize(*payload.Description))
	}
	if payload.DurationMinutes != nil {
		assessment.DurationMinutes = *payload.DurationMinutes
	}
	if payload.Skills != nil {
		assessment.Skills = encodeStringList(payload.Skills)
	}
	if payload.LanguageOptions != nil {
		assessment.LanguageOptions = encodeStringList(payload.LanguageOptions)
	}

	startDate := assessment.StartDate
	endDate := assessment.EndDate
	if payload.StartDate != nil || payload.EndDate != nil {
		startDate, endDate, err = parseDateRange(coalesceDate(payload.StartDate, assessment.StartDate), coalesceDate(payload.EndDate, assessment.EndDate))
		if err != nil {
			return dto.AssessmentResponse{}, err
		}
	}
	assessment.StartDate = startDate
	assessment.EndDate = endDate

	if err := s.save(ctx, &assessment, false); err != nil {
		return dto.AssessmentResponse{}, err
	}

	return dto.NewAssessmentResponse(assessment), nil
}

// Publish moves a DRAFT assessment to ACTIVE. Any other starting status is an
// illegal transition.
func (s *assessmentService) Publish(ctx context.Context, id uint) (dto.AssessmentResponse, error) {
	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	if assessment.Status != models.AssessmentStatusDraft {
		return dto.AssessmentResponse{}, &models.IllegalTransitionError{
			Entity: "assessment",
			From:   assessment.Status,
			To:     models.AssessmentStatusActive,
		}
	}

	assessment.Status = models.AssessmentStatusActive
	if err := s.save(ctx, &assessment, false); err != nil {
		return dto.AssessmentResponse{}, err
	}

	s.publishEvent(ctx, EventAssessmentPublished, assessment)

	return dto.NewAssessmentResponse(assessment), nil
}

// Activate is an explicit operator action, settable from any state.
func (s *assessmentService) Activate(ctx context.Context, id uint) (dto.AssessmentResponse, error) {
	return s.setStatus(ctx, id, models.AssessmentStatusActive)
}

// Deactivate is an explicit operator action, settable from any state.
func (s *assessmentService) Deactivate(ctx context.Context, id uint) (dto.AssessmentResponse, error) {
	return s.setStatus(ctx, id, models.AssessmentStatusInactive)
}

func (s *assessmentService) setStatus(ctx context.Context, id uint, status string) (dto.AssessmentResponse, error) {
	assessment, err := s.load(ctx, id)
	if err != nil {
		return dto.AssessmentResponse{}, err
	}

	assessment.Status = status
	if err := s.save(ctx, &assessment, false); err != nil {
		return dto.AssessmentResponse{}, err
	}

	return dto.NewAssessmentResponse(assessment), nil
}

// load fetches the assessment and applies the passive expiry check, persisting
// the flip when an ACTIVE assessment has run past its end date.
func (s *assessmentService) load(ctx context.Context, id uint) (models.Assessment, error) {
	assessment, err := s.assessments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, err
	}

	if assessment.ExpireIfDue(s.now()) {
		if err := s.assessments.Update(ctx, &assessment); err != nil {
			return models.Assessment{}, err
		}
		s.publishEvent(ctx, EventAssessmentExpired, assessment)
	}

	return assessment, nil
}

// save persists the assessment, re-applying the expiry check on every write.
func (s *assessmentService) save(ctx context.Context, assessment *models.Assessment, create bool) error {
	if assessment.ExpireIfDue(s.now()) {
		s.publishEvent(ctx, EventAssessmentExpired, *assessment)
	}

	if create {
		return s.assessments.Create(ctx, assessment)
	}
	return s.assessments.Update(ctx, assessment)
}

func (s *assessmentService) publishEvent(ctx context.Context, eventType string, assessment models.Assessment) {
	if s.events == nil {
		return
	}

	event := LifecycleEvent{Type: eventType, AssessmentID: assessment.ID, Status: assessment.Status}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("failed to publish lifecycle event")
	}
}

func parseDateRange(start, end *string) (*time.Time, *time.Time, error) {
	var startDate, endDate *time.Time

	if start != nil && *start != "" {
		parsed, err := time.Parse(time.RFC3339, *start)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start date: %w", err)
		}
		startDate = &parsed
	}

	if end != nil && *end != "" {
		parsed, err := time.Parse(time.RFC3339, *end)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end date: %w", err)
		}
		endDate = &parsed
	}

	if startDate != nil && endDate != nil && !endDate.After(*startDate) {
		return nil, nil, ErrInvalidDates
	}

	return startDate, endDate, nil
}

func coalesceDate(override *string, current *time.Time) *string {
	if override != nil {
		return override
	}
	if current == nil {
		return nil
	}

	formatted := current.Format(time.RFC3339)
	return &formatted
}

func encodeStringList(values []string) datatypes.JSON {
	if len(values) == 0 {
		return datatypes.JSON([]byte("[]"))
	}

	raw, err := json.Marshal(values)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}

	return datatypes.JSON(raw)
}

// buildRepoName derives a host-safe repository name from the assessment name.
func buildRepoName(name string) string {
	base := strings.ToLower(strings.TrimSpace(name))
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, base)

	base = strings.Trim(base, "-")
	for strings.Contains(base, "--") {
		base = strings.ReplaceAll(base, "--", "-")
	}
	if base == "" {
		base = "assessment"
	}

	return base + "-template"
}
