package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/talentforge/talentforge-api/internal/models"
	"github.com/talentforge/talentforge-api/internal/observability"
	"github.com/talentforge/talentforge-api/pkg/github"
)

// WorkBranch is the branch candidates work on, created off the template's
// default branch during candidate provisioning.
const WorkBranch = "assessment"

// TemplateProvision is the input for provisioning a user's template
// repository. InviterToken and InviteeToken are distinct credentials: the
// inviter creates the repository and grants access, the invitee (the platform
// service account) accepts its own invitation.
type TemplateProvision struct {
	InviterToken string
	InviteeToken string
	AccountKind  string
	Owner        string
	RepoName     string
}

// CandidateProvision is the input for provisioning a candidate's working
// repository. The platform owns the repository (InviterToken), the candidate
// accepts the invitation with their own token (InviteeToken).
type CandidateProvision struct {
	InviterToken  string
	InviteeToken  string
	CandidateUser string
	TemplateOwner string
	TemplateRepo  string
	RepoName      string
}

// ProvisionedRepo reports the outcome of a provisioning workflow.
type ProvisionedRepo struct {
	FullName      string
	HTMLURL       string
	DefaultBranch string
}

// ProvisioningService drives the multi-step repository provisioning protocol
// against the VCS host. Both workflows are idempotent: every step tolerates
// the side effects of an earlier partial run, so recovery from a mid-workflow
// failure is a plain re-run. No compensating rollback is performed.
type ProvisioningService interface {
	ProvisionTemplate(ctx context.Context, input TemplateProvision) (ProvisionedRepo, error)
	ProvisionCandidate(ctx context.Context, input CandidateProvision) (ProvisionedRepo, error)
}

// vcsClient is the slice of the VCS host client the orchestrator needs.
type vcsClient interface {
	CreateUserRepo(ctx context.Context, token, name string, private, isTemplate bool) (github.Repository, error)
	CreateOrgRepo(ctx context.Context, token, org, name string, private, isTemplate bool) (github.Repository, error)
	GetRepo(ctx context.Context, token, owner, repo string) (github.Repository, error)
	GenerateFromTemplate(ctx context.Context, token, templateOwner, templateRepo, owner, name string, private bool) (github.Repository, error)
	AddCollaborator(ctx context.Context, token, owner, repo, username string) error
	ListInvitations(ctx context.Context, token, owner, repo string) ([]github.Invitation, error)
	AcceptInvitation(ctx context.Context, inviteeToken string, invitationID int64) error
	GetBranch(ctx context.Context, token, owner, repo, branch string) (github.Branch, error)
	CreateBranch(ctx context.Context, token, owner, repo, branch, sha string) error
}

type provisioningService struct {
	client       vcsClient
	platformOrg  string
	serviceLogin string
	logger       zerolog.Logger
	tracer       trace.Tracer
}

// NewProvisioningService constructs the orchestrator. platformOrg is the
// organization candidate repositories are generated into; serviceLogin is the
// platform's service account granted access on every template repository.
func NewProvisioningService(client vcsClient, platformOrg, serviceLogin string, logger zerolog.Logger) ProvisioningService {
	return &provisioningService{
		client:       client,
		platformOrg:  platformOrg,
		serviceLogin: serviceLogin,
		logger:       logger.With().Str("component", "provisioning_service").Logger(),
		tracer:       otel.Tracer("github.com/talentforge/talentforge-api/internal/service/provisioning"),
	}
}

func (s *provisioningService) ProvisionTemplate(ctx context.Context, input TemplateProvision) (ProvisionedRepo, error) {
	spanCtx, span := s.tracer.Start(ctx, "provisioning.template", trace.WithAttributes(
		attribute.String("repo.name", input.RepoName),
	))
	defer span.End()

	repo, err := s.createTemplateRepo(spanCtx, input)
	if err != nil {
		span.RecordError(err)
		observability.ProvisioningFailures().WithLabelValues("template", "create").Inc()
		return ProvisionedRepo{}, fmt.Errorf("failed to create template repository: %w", err)
	}

	if err := s.client.AddCollaborator(spanCtx, input.InviterToken, ownerOf(repo.FullName), repo.Name, s.serviceLogin); err != nil {
		span.RecordError(err)
		observability.ProvisioningFailures().WithLabelValues("template", "collaborator").Inc()
		return ProvisionedRepo{}, fmt.Errorf("failed to add service account collaborator: %w", err)
	}

	if err := s.acceptInvitations(spanCtx, input.InviterToken, input.InviteeToken, ownerOf(repo.FullName), repo.Name, s.serviceLogin); err != nil {
		span.RecordError(err)
		observability.ProvisioningFailures().WithLabelValues("template", "invitation").Inc()
		return ProvisionedRepo{}, err
	}

	observability.ProvisioningCompleted().WithLabelValues("template").Inc()
	s.logger.Info().Str("repo", repo.FullName).Msg("template repository provisioned")

	return ProvisionedRepo{FullName: repo.FullName, HTMLURL: repo.HTMLURL, DefaultBranch: repo.DefaultBranch}, nil
}

func (s *provisioningService) ProvisionCandidate(ctx context.Context, input CandidateProvision) (ProvisionedRepo, error) {
	spanCtx, span := s.tracer.Start(ctx, "provisioning.candidate", trace.WithAttributes(
		attribute.String("repo.name", input.RepoName),
		attribute.String("candidate", input.CandidateUser),
	))
	defer span.End()

	repo, err := s.generateCandidateRepo(spanCtx, input)
	if err != nil {
		span.RecordError(err)
		observability.ProvisioningFailures().WithLabelValues("candidate", "generate").Inc()
		return ProvisionedRepo{}, fmt.Errorf("failed to generate candidate repository: %w", err)
	}

	if err := s.createWorkBranch(spanCtx, input.InviterToken, repo); err != nil {
		span.RecordError(err)
		observability.ProvisioningFailures().WithLabelValues("candidate", "branch").Inc()
		return ProvisionedRepo{}, err
	}

	if err := s.client.AddCollaborator(spanCtx, input.InviterToken, s.platformOrg, repo.Name, input.CandidateUser); err != nil {
		span.RecordError(err)
		observability.ProvisioningFailures().WithLabelValues("candidate", "collaborator").Inc()
		return ProvisionedRepo{}, fmt.Errorf("failed to add candidate collaborator: %w", err)
	}

	if err := s.acceptInvitations(spanCtx, input.InviterToken, input.InviteeToken, s.platformOrg, repo.Name, input.CandidateUser); err != nil {
		span.RecordError(err)
		observability.ProvisioningFailures().WithLabelValues("candidate", "invitation").Inc()
		return ProvisionedRepo{}, err
	}

	observability.ProvisioningCompleted().WithLabelValues("candidate").Inc()
	s.logger.Info().Str("repo", repo.FullName).Str("candidate", input.CandidateUser).Msg("candidate repository provisioned")

	return ProvisionedRepo{FullName: repo.FullName, HTMLURL: repo.HTMLURL, DefaultBranch: repo.DefaultBranch}, nil
}

func (s *provisioningService) createTemplateRepo(ctx context.Context, input TemplateProvision) (github.Repository, error) {
	var repo github.Repository
	var err error

	if input.AccountKind == models.AccountKindOrganization {
		repo, err = s.client.CreateOrgRepo(ctx, input.InviterToken, input.Owner, input.RepoName, true, true)
	} else {
		repo, err = s.client.CreateUserRepo(ctx, input.InviterToken, input.RepoName, true, true)
	}

	// A 422 here means an earlier partial run already created the repository.
	// Recover its metadata and continue the workflow instead of failing.
	if github.IsStatus(err, http.StatusUnprocessableEntity) {
		s.logger.Debug().Str("repo", input.RepoName).Msg("template repository already exists, resuming")
		return s.client.GetRepo(ctx, input.InviterToken, input.Owner, input.RepoName)
	}

	return repo, err
}

func (s *provisioningService) generateCandidateRepo(ctx context.Context, input CandidateProvision) (github.Repository, error) {
	repo, err := s.client.GenerateFromTemplate(ctx, input.InviterToken, input.TemplateOwner, input.TemplateRepo, s.platformOrg, input.RepoName, true)
	if github.IsStatus(err, http.StatusUnprocessableEntity) {
		s.logger.Debug().Str("repo", input.RepoName).Msg("candidate repository already exists, resuming")
		return s.client.GetRepo(ctx, input.InviterToken, s.platformOrg, input.RepoName)
	}

	return repo, err
}

func (s *provisioningService) createWorkBranch(ctx context.Context, token string, repo github.Repository) error {
	base := repo.DefaultBranch
	if base == "" {
		base = "main"
	}

	branch, err := s.client.GetBranch(ctx, token, s.platformOrg, repo.Name, base)
	if err != nil {
		return fmt.Errorf("failed to resolve base branch %s: %w", base, err)
	}

	err = s.client.CreateBranch(ctx, token, s.platformOrg, repo.Name, WorkBranch, branch.Commit.SHA)
	if github.IsStatus(err, http.StatusUnprocessableEntity) {
		// The work branch survives from an earlier partial run.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create work branch: %w", err)
	}

	return nil
}

// acceptInvitations lists pending invitations with the inviter's credentials
// and accepts each one addressed to the invitee using the invitee's own token.
// The host requires the invitee to accept separately; collaborator status
// alone does not grant access.
func (s *provisioningService) acceptInvitations(ctx context.Context, inviterToken, inviteeToken, owner, repo, inviteeLogin string) error {
	invitations, err := s.client.ListInvitations(ctx, inviterToken, owner, repo)
	if err != nil {
		return fmt.Errorf("failed to list invitations: %w", err)
	}

	for _, invitation := range invitations {
		if invitation.Invitee.Login != inviteeLogin {
			continue
		}

		err := s.client.AcceptInvitation(ctx, inviteeToken, invitation.ID)
		if github.IsStatus(err, http.StatusNotFound) {
			// Already accepted by an earlier run; the invitation id is gone.
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to accept invitation %d: %w", invitation.ID, err)
		}
	}

	return nil
}

func ownerOf(fullName string) string {
	for i := 0; i < len(fullName); i++ {
		if fullName[i] == '/' {
			return fullName[:i]
		}
	}
	return fullName
}
