package handler

import (
	"net/http"

	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/service"
)

type SEOHandler struct {
	responder
	sitemapService *service.SitemapService
	appURL         string
}

func NewSEOHandler(sitemapService *service.SitemapService, cfg *config.Config) *SEOHandler {
	return &SEOHandler{
		responder:      responder{trusted: cfg.Trusted()},
		sitemapService: sitemapService,
		appURL:         cfg.AppURL,
	}
}

// Robots serves robots.txt. API routes are not for crawlers.
func (h *SEOHandler) Robots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("User-agent: *\nDisallow: /auth/\nDisallow: /users/\nAllow: /\nSitemap: " + h.appURL + "/sitemap.xml\n"))
}

// Sitemap generates and serves the sitemap.xml dynamically
func (h *SEOHandler) Sitemap(w http.ResponseWriter, r *http.Request) {
	sitemap, err := h.sitemapService.GenerateSitemap(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write(sitemap)
}
