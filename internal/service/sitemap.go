package service

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"
	"time"
)

// publicRoutes defines the static pages included in the sitemap
var publicRoutes = []struct {
	Path       string
	Priority   string
	ChangeFreq string
}{
	{"/", "1.0", "daily"},
	{"/browse", "0.9", "daily"},
	{"/robots", "0.6", "weekly"},
}

type SitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

type Sitemap struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []SitemapURL `xml:"url"`
}

type SitemapService struct {
	listings *ListingService
	baseURL  string
}

func NewSitemapService(listings *ListingService, baseURL string) *SitemapService {
	return &SitemapService{
		listings: listings,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

// GenerateSitemap lists the static pages and every listing page.
func (s *SitemapService) GenerateSitemap(ctx context.Context) ([]byte, error) {
	sitemap := Sitemap{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
	}

	today := time.Now().UTC().Format(time.DateOnly)
	for _, route := range publicRoutes {
		sitemap.URLs = append(sitemap.URLs, SitemapURL{
			Loc:        s.baseURL + route.Path,
			LastMod:    today,
			ChangeFreq: route.ChangeFreq,
			Priority:   route.Priority,
		})
	}

	listings, err := s.listings.All(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := s.listings.WithUsernames(ctx, listings)
	if err != nil {
		return nil, err
	}
	for _, l := range infos {
		if l.Username == "" {
			continue
		}
		sitemap.URLs = append(sitemap.URLs, SitemapURL{
			Loc:        s.baseURL + "/item/" + url.PathEscape(l.Username) + "/" + url.PathEscape(l.Slug),
			LastMod:    time.Unix(l.UpdatedAt, 0).UTC().Format(time.DateOnly),
			ChangeFreq: "weekly",
			Priority:   "0.7",
		})
	}

	output, err := xml.MarshalIndent(sitemap, "", "  ")
	if err != nil {
		return nil, err
	}
	return []byte(xml.Header + string(output)), nil
}
