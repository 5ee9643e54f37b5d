package routes

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robolist/robolist/internal/app"
	"github.com/robolist/robolist/internal/handler"
	"github.com/robolist/robolist/internal/middleware"
	"github.com/robolist/robolist/internal/model"
)

func SetupRoutes(app *app.App) http.Handler {
	// Handlers
	auth := handler.NewAuthHandler(app.AuthService, app.Cfg)
	users := handler.NewUserHandler(app.UserService, app.Cfg)
	listings := handler.NewListingHandler(app.ListingService, app.ArtifactService, app.Cfg)
	artifacts := handler.NewArtifactHandler(app.ArtifactService, app.Cfg)
	classes := handler.NewRobotClassHandler(app.RobotClassService, app.Cfg)
	robots := handler.NewRobotHandler(app.RobotService, app.Cfg)
	seo := handler.NewSEOHandler(app.SitemapService, app.Cfg)

	authLimit := middleware.AuthLimiter(app.Cfg.AuthRateLimit, app.Cfg.AuthRateWindow).Wrap
	writeLimit := middleware.WriteLimiter(app.Cfg.WriteRateLimit, app.Cfg.WriteRateWindow).Wrap

	requireAuth := middleware.RequireAuth
	requireScope := middleware.RequireScope(model.ScopeWrite)
	requireWrite := func(next http.HandlerFunc) http.HandlerFunc {
		return requireScope(writeLimit(next))
	}

	mux := http.NewServeMux()

	// ============================================================================
	// SERVICE
	// ============================================================================

	mux.HandleFunc("GET /health", handler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// SEO
	mux.HandleFunc("GET /robots.txt", seo.Robots)
	mux.HandleFunc("GET /sitemap.xml", seo.Sitemap)

	// ============================================================================
	// AUTH
	// ============================================================================

	mux.HandleFunc("POST /auth/signup", authLimit(auth.Signup))
	mux.HandleFunc("POST /auth/login", authLimit(auth.Login))
	mux.HandleFunc("POST /auth/logout", requireAuth(auth.Logout))

	// OAuth
	mux.HandleFunc("GET /auth/github", auth.GitHubAuth)
	mux.HandleFunc("GET /auth/github/callback", authLimit(auth.GitHubCallback))
	mux.HandleFunc("GET /auth/google", auth.GoogleAuth)
	mux.HandleFunc("GET /auth/google/callback", authLimit(auth.GoogleCallback))

	// API keys
	mux.HandleFunc("GET /auth/keys", requireAuth(auth.ListKeys))
	mux.HandleFunc("POST /auth/keys", requireAuth(auth.CreateKey))
	mux.HandleFunc("DELETE /auth/keys/{id}", requireAuth(auth.DeleteKey))

	// ============================================================================
	// USERS
	// ============================================================================

	mux.HandleFunc("GET /users/me", requireAuth(users.Me))
	mux.HandleFunc("DELETE /users/me", requireWrite(users.DeleteMe))
	mux.HandleFunc("PUT /users/me/username", requireWrite(users.SetUsername))
	mux.HandleFunc("GET /users/public/{id}", users.PublicByID)
	mux.HandleFunc("GET /users/name/{username}", users.PublicByUsername)
	mux.HandleFunc("POST /users/{id}/moderator", requireWrite(users.SetModerator))
	mux.HandleFunc("POST /users/{id}/content-manager", requireWrite(users.SetContentManager))

	// ============================================================================
	// LISTINGS
	// ============================================================================

	mux.HandleFunc("GET /listings", listings.List)
	mux.HandleFunc("GET /listings/upvoted", requireAuth(listings.Upvoted))
	mux.HandleFunc("GET /listings/featured", listings.Featured)
	mux.HandleFunc("PUT /listings/featured", requireWrite(listings.SetFeatured))
	mux.HandleFunc("GET /listings/by/{username}/{slug}", listings.GetBySlug)
	mux.HandleFunc("POST /listings", requireWrite(listings.Add))
	mux.HandleFunc("GET /listings/{id}", listings.Get)
	mux.HandleFunc("PATCH /listings/{id}", requireWrite(listings.Edit))
	mux.HandleFunc("DELETE /listings/{id}", requireWrite(listings.Delete))
	mux.HandleFunc("POST /listings/{id}/view", listings.View)

	// Votes
	mux.HandleFunc("GET /listings/{id}/vote", requireAuth(listings.GetVote))
	mux.HandleFunc("POST /listings/{id}/vote", requireWrite(listings.Vote))
	mux.HandleFunc("DELETE /listings/{id}/vote", requireWrite(listings.RemoveVote))

	// Tags
	mux.HandleFunc("GET /listings/{id}/tags", listings.Tags)
	mux.HandleFunc("PUT /listings/{id}/tags", requireWrite(listings.SetTags))

	// ============================================================================
	// ARTIFACTS
	// ============================================================================

	mux.HandleFunc("POST /artifacts/upload/{listing_id}", requireWrite(artifacts.Upload))
	mux.HandleFunc("POST /artifacts/presigned/{listing_id}", requireWrite(artifacts.Presigned))
	mux.HandleFunc("GET /artifacts/list/{listing_id}", artifacts.List)
	mux.HandleFunc("GET /artifacts/info/{id}", artifacts.Info)
	mux.HandleFunc("GET /artifacts/download/{id}", artifacts.Download)
	mux.HandleFunc("PUT /artifacts/{id}", requireWrite(artifacts.Edit))
	mux.HandleFunc("DELETE /artifacts/{id}", requireWrite(artifacts.Delete))
	mux.HandleFunc("POST /artifacts/main/{id}", requireWrite(artifacts.SetMain))

	// ============================================================================
	// ROBOT CLASSES
	// ============================================================================

	mux.HandleFunc("GET /robots", classes.List)
	mux.HandleFunc("GET /robots/user/{id}", classes.ListByUser)
	mux.HandleFunc("GET /robots/name/{name}", classes.GetByName)
	mux.HandleFunc("GET /robots/id/{id}", classes.GetByID)
	mux.HandleFunc("PUT /robots/{name}", requireWrite(classes.Add))
	mux.HandleFunc("POST /robots/{name}", requireWrite(classes.Update))
	mux.HandleFunc("DELETE /robots/{name}", requireWrite(classes.Delete))
	mux.HandleFunc("PUT /robots/urdf/{name}", requireWrite(classes.UploadURDF))
	mux.HandleFunc("GET /robots/urdf/{name}", classes.DownloadURDF)
	mux.HandleFunc("PUT /robots/kernel/{name}", requireWrite(classes.UploadKernel))
	mux.HandleFunc("GET /robots/kernel/{name}", classes.DownloadKernel)

	// ============================================================================
	// ROBOTS
	// ============================================================================

	mux.HandleFunc("GET /robot", requireAuth(robots.List))
	mux.HandleFunc("GET /robot/user/{id}", robots.ListByUser)
	mux.HandleFunc("GET /robot/name/{name}", requireAuth(robots.GetByName))
	mux.HandleFunc("GET /robot/id/{id}", requireAuth(robots.GetByID))
	mux.HandleFunc("PUT /robot/{name}", requireWrite(robots.Add))
	mux.HandleFunc("POST /robot/{name}", requireWrite(robots.Update))
	mux.HandleFunc("DELETE /robot/{name}", requireWrite(robots.Delete))

	// ============================================================================
	// FALLBACK
	// ============================================================================

	mux.HandleFunc("/{path...}", handler.NotFound)

	// Global middleware - executed in order (top to bottom)
	handler := middleware.Chain(
		mux,
		middleware.RequestLogging,
		middleware.Authenticate(app.AuthService),
		middleware.Metrics, // Innermost so the matched route pattern is visible
	)

	return handler
}
