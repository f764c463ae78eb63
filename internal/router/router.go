package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/talentforge/talentforge-api/internal/config"
	"github.com/talentforge/talentforge-api/internal/handler"
	"github.com/talentforge/talentforge-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssessmentHandler    *handler.AssessmentHandler
	AttemptHandler       *handler.AttemptHandler
	CandidateAuthHandler *handler.CandidateAuthHandler
	JWTMiddleware        fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Recruiter surface, JWT protected
	if deps.AssessmentHandler != nil {
		assessments := api.Group("/assessments", jwtMiddleware)
		deps.AssessmentHandler.Register(assessments)

		if deps.AttemptHandler != nil {
			assessments.Get("/:id/attempts", deps.AttemptHandler.ListByAssessment)
		}
	}

	if deps.AttemptHandler != nil {
		attempts := api.Group("/attempts", jwtMiddleware)
		deps.AttemptHandler.Register(attempts)
	}

	// Candidate surface, no JWT: candidates authenticate via the OAuth flow
	// and the ephemeral credential store.
	candidate := api.Group("/candidate")
	if deps.CandidateAuthHandler != nil {
		deps.CandidateAuthHandler.Register(candidate.Group("/auth"))
	}
	if deps.AttemptHandler != nil {
		deps.AttemptHandler.RegisterCandidate(candidate.Group("/attempts"))
	}
}
