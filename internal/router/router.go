package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mizuki-lab/shukudai-api/internal/config"
	"github.com/mizuki-lab/shukudai-api/internal/handler"
	"github.com/mizuki-lab/shukudai-api/internal/middleware"
	"github.com/mizuki-lab/shukudai-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CatalogHandler    *handler.CatalogHandler
	ClassHandler      *handler.ClassHandler
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	ProgressHandler   *handler.ProgressHandler
	UserHandler       *handler.UserHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	staffGuard := middleware.RequireStaff()

	if deps.CatalogHandler != nil {
		materials := app.Group("/api/v1/materials", jwtMiddleware)
		materialsStaff := app.Group("/api/v1/materials", jwtMiddleware, staffGuard)
		deps.CatalogHandler.RegisterMaterials(materials, materialsStaff)

		lessons := app.Group("/api/v1/lessons", jwtMiddleware)
		lessonsStaff := app.Group("/api/v1/lessons", jwtMiddleware, staffGuard)
		deps.CatalogHandler.RegisterLessons(lessons, lessonsStaff)
	}

	if deps.ClassHandler != nil {
		classes := app.Group("/api/v1/classes", jwtMiddleware, staffGuard)
		deps.ClassHandler.Register(classes)
	}

	if deps.AssignmentHandler != nil {
		assignments := app.Group("/api/v1/assignments", jwtMiddleware)
		assignmentsStaff := app.Group("/api/v1/assignments", jwtMiddleware, staffGuard)
		deps.AssignmentHandler.Register(assignments, assignmentsStaff)
	}

	if deps.SubmissionHandler != nil {
		submissions := app.Group("/api/v1/submissions", jwtMiddleware)
		submissionsStaff := app.Group("/api/v1/submissions", jwtMiddleware, staffGuard)
		deps.SubmissionHandler.Register(submissions, submissionsStaff)
	}

	if deps.ProgressHandler != nil {
		progress := app.Group("/api/v1/progress", jwtMiddleware)
		progressStaff := app.Group("/api/v1/progress", jwtMiddleware, staffGuard)
		deps.ProgressHandler.Register(progress, progressStaff)
	}

	if deps.UserHandler != nil {
		users := app.Group("/api/v1/users", jwtMiddleware, staffGuard)
		deps.UserHandler.Register(users)
	}
}
