package service

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/talentforge/talentforge-api/internal/dto"
	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/repository"
	"github.com/talentforge/talentforge-api/internal/store"
)

type fakeCredentials struct {
	creds store.CandidateCredentials
	err   error
}

func (f fakeCredentials) GetCredentials(ctx context.Context, email string) (store.CandidateCredentials, error) {
	return f.creds, f.err
}

type fakeProvisioner struct {
	candidateCalls []CandidateProvision
	templateCalls  []TemplateProvision
	repo           ProvisionedRepo
	err            error
}

func (f *fakeProvisioner) ProvisionTemplate(ctx context.Context, input TemplateProvision) (ProvisionedRepo, error) {
	f.templateCalls = append(f.templateCalls, input)
	return f.repo, f.err
}

func (f *fakeProvisioner) ProvisionCandidate(ctx context.Context, input CandidateProvision) (ProvisionedRepo, error) {
	f.candidateCalls = append(f.candidateCalls, input)
	return f.repo, f.err
}

type fakeInstallTokens struct {
	token string
	err   error
}

func (f fakeInstallTokens) Token(ctx context.Context, installationID int64) (string, error) {
	return f.token, f.err
}

type capturingPublisher struct {
	events []LifecycleEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event LifecycleEvent) error {
	p.events = append(p.events, event)
	return nil
}

type attemptFixture struct {
	db          *gorm.DB
	svc         AttemptService
	provisioner *fakeProvisioner
	publisher   *capturingPublisher
}

func newAttemptFixture(t *testing.T, creds fakeCredentials) attemptFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Candidate{},
		&models.Assessment{},
		&models.CandidateAttempt{},
		&models.Evaluation{},
	))

	provisioner := &fakeProvisioner{repo: ProvisionedRepo{
		FullName: "talentforge-org/assessment-1-jane",
		HTMLURL:  "https://github.test/talentforge-org/assessment-1-jane",
	}}
	publisher := &capturingPublisher{}

	svc := NewAttemptService(
		repository.NewAttemptRepository(db),
		repository.NewCandidateRepository(db),
		repository.NewAssessmentRepository(db),
		repository.NewEvaluationRepository(db),
		creds,
		provisioner,
		fakeInstallTokens{token: "ghs_platform"},
		321,
		validator.New(validator.WithRequiredStructEnabled()),
		publisher,
		zerolog.Nop(),
	)

	return attemptFixture{db: db, svc: svc, provisioner: provisioner, publisher: publisher}
}

func (f attemptFixture) createAssessment(t *testing.T, status string) models.Assessment {
	t.Helper()

	assessment := models.Assessment{
		Name:                 "Backend Challenge",
		Status:               status,
		DurationMinutes:      120,
		UserID:               1,
		TemplateRepoFullName: "octocat/backend-template",
	}
	require.NoError(t, f.db.Create(&assessment).Error)
	return assessment
}

func TestInviteCreatesCandidateAndAttempt(t *testing.T) {
	f := newAttemptFixture(t, fakeCredentials{})
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	attempt, err := f.svc.Invite(context.Background(), dto.AttemptInviteRequest{
		AssessmentID:   assessment.ID,
		CandidateEmail: "jane@example.com",
		CandidateName:  "Jane Doe",
	})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusInvited, attempt.Status)
	require.Equal(t, "jane@example.com", attempt.CandidateEmail)

	var candidate models.Candidate
	require.NoError(t, f.db.Where("email = ?", "jane@example.com").First(&candidate).Error)
	require.Equal(t, "Jane Doe", candidate.Name)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, EventAttemptInvited, f.publisher.events[0].Type)
	require.Equal(t, "jane@example.com", f.publisher.events[0].CandidateEmail)
}

func TestInviteRejectsDuplicatePair(t *testing.T) {
	f := newAttemptFixture(t, fakeCredentials{})
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	payload := dto.AttemptInviteRequest{AssessmentID: assessment.ID, CandidateEmail: "jane@example.com"}
	_, err := f.svc.Invite(context.Background(), payload)
	require.NoError(t, err)

	_, err = f.svc.Invite(context.Background(), payload)
	require.ErrorIs(t, err, ErrAttemptExists)
}

func TestInviteUnknownAssessment(t *testing.T) {
	f := newAttemptFixture(t, fakeCredentials{})

	_, err := f.svc.Invite(context.Background(), dto.AttemptInviteRequest{
		AssessmentID:   99,
		CandidateEmail: "jane@example.com",
	})
	require.ErrorIs(t, err, ErrAssessmentNotFound)
}

func TestStartProvisionsAndTransitions(t *testing.T) {
	creds := fakeCredentials{creds: store.CandidateCredentials{Token: "gho_jane", Username: "jane-gh"}}
	f := newAttemptFixture(t, creds)
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	_, err := f.svc.Invite(context.Background(), dto.AttemptInviteRequest{
		AssessmentID:   assessment.ID,
		CandidateEmail: "jane@example.com",
	})
	require.NoError(t, err)

	attempt, err := f.svc.Start(context.Background(), dto.AttemptStartRequest{
		AssessmentID: assessment.ID,
		Email:        "jane@example.com",
		Language:     "go",
	})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusStarted, attempt.Status)
	require.Equal(t, "go", attempt.Language)
	require.Equal(t, "talentforge-org/assessment-1-jane", attempt.RepoFullName)
	require.NotNil(t, attempt.StartedAt)

	require.Len(t, f.provisioner.candidateCalls, 1)
	call := f.provisioner.candidateCalls[0]
	require.Equal(t, "ghs_platform", call.InviterToken)
	require.Equal(t, "gho_jane", call.InviteeToken)
	require.Equal(t, "jane-gh", call.CandidateUser)
	require.Equal(t, "octocat", call.TemplateOwner)
	require.Equal(t, "backend-template", call.TemplateRepo)
	require.Equal(t, "assessment-1-jane", call.RepoName)

	// The login resolved during OAuth sticks to the candidate row.
	var candidate models.Candidate
	require.NoError(t, f.db.Where("email = ?", "jane@example.com").First(&candidate).Error)
	require.Equal(t, "jane-gh", candidate.GithubLogin)
}

func TestStartWithoutPriorInviteCreatesAttempt(t *testing.T) {
	creds := fakeCredentials{creds: store.CandidateCredentials{Token: "gho_jane", Username: "jane-gh"}}
	f := newAttemptFixture(t, creds)
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	attempt, err := f.svc.Start(context.Background(), dto.AttemptStartRequest{
		AssessmentID: assessment.ID,
		Email:        "jane@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusStarted, attempt.Status)
}

func TestStartRejectsSecondStart(t *testing.T) {
	creds := fakeCredentials{creds: store.CandidateCredentials{Token: "gho_jane", Username: "jane-gh"}}
	f := newAttemptFixture(t, creds)
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	payload := dto.AttemptStartRequest{AssessmentID: assessment.ID, Email: "jane@example.com"}
	_, err := f.svc.Start(context.Background(), payload)
	require.NoError(t, err)

	_, err = f.svc.Start(context.Background(), payload)
	require.ErrorIs(t, err, ErrAttemptExists)
	require.Len(t, f.provisioner.candidateCalls, 1)
}

func TestStartRequiresLiveCredentials(t *testing.T) {
	f := newAttemptFixture(t, fakeCredentials{err: store.ErrCredentialsExpired})
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	_, err := f.svc.Start(context.Background(), dto.AttemptStartRequest{
		AssessmentID: assessment.ID,
		Email:        "jane@example.com",
	})
	require.ErrorIs(t, err, store.ErrCredentialsExpired)
	require.Empty(t, f.provisioner.candidateCalls)
}

func TestStartRequiresActiveAssessment(t *testing.T) {
	creds := fakeCredentials{creds: store.CandidateCredentials{Token: "gho_jane", Username: "jane-gh"}}
	f := newAttemptFixture(t, creds)
	assessment := f.createAssessment(t, models.AssessmentStatusDraft)

	_, err := f.svc.Start(context.Background(), dto.AttemptStartRequest{
		AssessmentID: assessment.ID,
		Email:        "jane@example.com",
	})
	require.ErrorIs(t, err, ErrAssessmentNotActive)
}

func TestStartExpiresOverdueAssessment(t *testing.T) {
	creds := fakeCredentials{creds: store.CandidateCredentials{Token: "gho_jane", Username: "jane-gh"}}
	f := newAttemptFixture(t, creds)

	end := time.Now().Add(-time.Hour)
	assessment := models.Assessment{
		Name:                 "Closed Challenge",
		Status:               models.AssessmentStatusActive,
		DurationMinutes:      60,
		UserID:               1,
		EndDate:              &end,
		TemplateRepoFullName: "octocat/backend-template",
	}
	require.NoError(t, f.db.Create(&assessment).Error)

	_, err := f.svc.Start(context.Background(), dto.AttemptStartRequest{
		AssessmentID: assessment.ID,
		Email:        "jane@example.com",
	})
	require.ErrorIs(t, err, ErrAssessmentNotActive)

	var stored models.Assessment
	require.NoError(t, f.db.First(&stored, assessment.ID).Error)
	require.Equal(t, models.AssessmentStatusInactive, stored.Status)
}

func TestCompleteAndEvaluate(t *testing.T) {
	creds := fakeCredentials{creds: store.CandidateCredentials{Token: "gho_jane", Username: "jane-gh"}}
	f := newAttemptFixture(t, creds)
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	started, err := f.svc.Start(context.Background(), dto.AttemptStartRequest{
		AssessmentID: assessment.ID,
		Email:        "jane@example.com",
	})
	require.NoError(t, err)

	completed, err := f.svc.Complete(context.Background(), started.ID)
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusCompleted, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	evaluated, err := f.svc.Evaluate(context.Background(), started.ID, dto.AttemptEvaluateRequest{
		Score:   0.85,
		Verdict: "pass",
		Details: map[string]interface{}{"tests_passed": 17},
	})
	require.NoError(t, err)
	require.Equal(t, models.AttemptStatusEvaluated, evaluated.Status)
	require.NotNil(t, evaluated.EvaluationID)

	var evaluation models.Evaluation
	require.NoError(t, f.db.First(&evaluation, *evaluated.EvaluationID).Error)
	require.Equal(t, 0.85, evaluation.Score)
	require.Equal(t, "pass", evaluation.Verdict)
}

func TestEvaluateBeforeCompleteLeavesNoEvaluation(t *testing.T) {
	creds := fakeCredentials{creds: store.CandidateCredentials{Token: "gho_jane", Username: "jane-gh"}}
	f := newAttemptFixture(t, creds)
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	started, err := f.svc.Start(context.Background(), dto.AttemptStartRequest{
		AssessmentID: assessment.ID,
		Email:        "jane@example.com",
	})
	require.NoError(t, err)

	_, err = f.svc.Evaluate(context.Background(), started.ID, dto.AttemptEvaluateRequest{Score: 0.5, Verdict: "fail"})
	var transition *models.IllegalTransitionError
	require.ErrorAs(t, err, &transition)
	require.Equal(t, models.AttemptStatusStarted, transition.From)

	// The transition check runs before the evaluation row is written.
	var count int64
	require.NoError(t, f.db.Model(&models.Evaluation{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCompleteUnknownAttempt(t *testing.T) {
	f := newAttemptFixture(t, fakeCredentials{})

	_, err := f.svc.Complete(context.Background(), 404)
	require.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestLifecycleEventsPublished(t *testing.T) {
	creds := fakeCredentials{creds: store.CandidateCredentials{Token: "gho_jane", Username: "jane-gh"}}
	f := newAttemptFixture(t, creds)
	assessment := f.createAssessment(t, models.AssessmentStatusActive)

	started, err := f.svc.Start(context.Background(), dto.AttemptStartRequest{
		AssessmentID: assessment.ID,
		Email:        "jane@example.com",
	})
	require.NoError(t, err)
	_, err = f.svc.Complete(context.Background(), started.ID)
	require.NoError(t, err)
	_, err = f.svc.Evaluate(context.Background(), started.ID, dto.AttemptEvaluateRequest{Score: 1, Verdict: "pass"})
	require.NoError(t, err)

	types := make([]string, 0, len(f.publisher.events))
	for _, event := range f.publisher.events {
		types = append(types, event.Type)
	}
	require.Equal(t, []string{EventAttemptStarted, EventAttemptCompleted, EventAttemptEvaluated}, types)
}

func TestBuildCandidateRepoName(t *testing.T) {
	require.Equal(t, "assessment-42-c", buildCandidateRepoName(42, "c@x.com"))
	require.Equal(t, "assessment-7-jane-doe", buildCandidateRepoName(7, "Jane.Doe@example.com"))
	require.Equal(t, "assessment-1-candidate", buildCandidateRepoName(1, "@@@"))
}
