package handler

import (
	"context"
	"net/http"

	"github.com/robolist/robolist/internal/config"
	"github.com/robolist/robolist/internal/markdown"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/service"
	"golang.org/x/sync/errgroup"
)

type ListingHandler struct {
	responder
	listingService  *service.ListingService
	artifactService *service.ArtifactService
	markdown        *markdown.Parser
}

func NewListingHandler(listingService *service.ListingService, artifactService *service.ArtifactService, cfg *config.Config) *ListingHandler {
	return &ListingHandler{
		responder:       responder{trusted: cfg.Trusted()},
		listingService:  listingService,
		artifactService: artifactService,
		markdown:        markdown.NewParser(),
	}
}

type listingsPage struct {
	Listings []service.ListingInfo `json:"listings"`
	HasNext  bool                  `json:"has_next"`
}

// listingDetail is a listing with everything its page shows.
type listingDetail struct {
	service.ListingInfo
	DescriptionHTML string                 `json:"description_html,omitempty"`
	Artifacts       []service.ArtifactInfo `json:"artifacts"`
	Tags            []string               `json:"tags"`
	UserVote        *bool                  `json:"user_vote"`
	CanEdit         bool                   `json:"can_edit"`
}

func (h *ListingHandler) page(w http.ResponseWriter, r *http.Request, listings []model.Listing, hasNext bool) {
	infos, err := h.listingService.WithUsernames(r.Context(), listings)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listingsPage{Listings: infos, HasNext: hasNext})
}

// List serves GET /listings?page=&sort=&search=&user_id=.
func (h *ListingHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		h.error(w, r, err)
		return
	}

	q := r.URL.Query()
	if userID := q.Get("user_id"); userID != "" {
		if userID == "me" && actor(r) != nil {
			userID = actor(r).ID
		}
		listings, hasNext, err := h.listingService.UserListings(r.Context(), userID, page)
		if err != nil {
			h.error(w, r, err)
			return
		}
		h.page(w, r, listings, hasNext)
		return
	}

	sort, err := service.ParseListingSort(q.Get("sort"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	listings, hasNext, err := h.listingService.List(r.Context(), service.ListQuery{
		Page:   page,
		Sort:   sort,
		Search: q.Get("search"),
	})
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.page(w, r, listings, hasNext)
}

func (h *ListingHandler) Upvoted(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		h.error(w, r, err)
		return
	}
	listings, hasNext, err := h.listingService.UpvotedListings(r.Context(), actor(r).ID, page)
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.page(w, r, listings, hasNext)
}

type featuredRequest struct {
	ListingIDs []string `json:"listing_ids" validate:"max=32"`
}

func (h *ListingHandler) Featured(w http.ResponseWriter, r *http.Request) {
	ids, err := h.listingService.Featured(r.Context())
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"listing_ids": ids})
}

func (h *ListingHandler) SetFeatured(w http.ResponseWriter, r *http.Request) {
	var req featuredRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	ids, err := h.listingService.SetFeatured(r.Context(), actor(r), req.ListingIDs)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"listing_ids": ids})
}

func (h *ListingHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req service.NewListing
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	listing, err := h.listingService.Add(r.Context(), actor(r), req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listingService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.detail(w, r, listing)
}

func (h *ListingHandler) GetBySlug(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listingService.GetByUsernameSlug(r.Context(), r.PathValue("username"), r.PathValue("slug"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	h.detail(w, r, listing)
}

func (h *ListingHandler) detail(w http.ResponseWriter, r *http.Request, listing *model.Listing) {
	d, err := h.loadDetail(r.Context(), actor(r), listing)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *ListingHandler) loadDetail(ctx context.Context, viewer *model.User, listing *model.Listing) (*listingDetail, error) {
	html, err := h.markdown.Render(listing.Description)
	if err != nil {
		return nil, err
	}
	d := &listingDetail{DescriptionHTML: html}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		infos, err := h.listingService.WithUsernames(gctx, []model.Listing{*listing})
		if err != nil {
			return err
		}
		d.ListingInfo = infos[0]
		return nil
	})
	g.Go(func() error {
		var err error
		d.Artifacts, err = h.artifactService.ListForListing(gctx, listing.ID)
		return err
	})
	g.Go(func() error {
		var err error
		d.Tags, err = h.listingService.GetTags(gctx, listing.ID)
		return err
	})
	if viewer != nil {
		d.CanEdit = listing.CanWrite(viewer)
		g.Go(func() error {
			vote, err := h.listingService.GetUserVote(gctx, viewer.ID, listing.ID)
			if err != nil {
				return err
			}
			if vote != nil {
				d.UserVote = &vote.IsUpvote
			}
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (h *ListingHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req service.ListingEdit
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	listing, err := h.listingService.Edit(r.Context(), actor(r), r.PathValue("id"), req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *ListingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.listingService.Delete(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *ListingHandler) View(w http.ResponseWriter, r *http.Request) {
	err := h.listingService.IncrementViews(r.Context(), r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Vote serves POST /listings/{id}/vote?upvote=true|false. A missing upvote
// parameter counts as an upvote.
func (h *ListingHandler) Vote(w http.ResponseWriter, r *http.Request) {
	upvote, err := boolParam(r, "upvote")
	if err != nil {
		h.error(w, r, err)
		return
	}
	if upvote == nil {
		up := true
		upvote = &up
	}
	h.vote(w, r, upvote)
}

func (h *ListingHandler) RemoveVote(w http.ResponseWriter, r *http.Request) {
	h.vote(w, r, nil)
}

func (h *ListingHandler) vote(w http.ResponseWriter, r *http.Request, upvote *bool) {
	id := r.PathValue("id")
	listing, err := h.listingService.HandleVote(r.Context(), actor(r).ID, id, upvote)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"score":     listing.Score,
		"upvotes":   listing.Upvotes,
		"downvotes": listing.Downvotes,
		"user_vote": upvote,
	})
}

func (h *ListingHandler) GetVote(w http.ResponseWriter, r *http.Request) {
	vote, err := h.listingService.GetUserVote(r.Context(), actor(r).ID, r.PathValue("id"))
	if err != nil {
		h.error(w, r, err)
		return
	}
	var upvote *bool
	if vote != nil {
		upvote = &vote.IsUpvote
	}
	writeJSON(w, http.StatusOK, map[string]*bool{"user_vote": upvote})
}

func (h *ListingHandler) Tags(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, err := h.listingService.Get(r.Context(), id)
	if err != nil {
		h.error(w, r, err)
		return
	}
	tags, err := h.listingService.GetTags(r.Context(), id)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": tags})
}

type tagsRequest struct {
	Tags []string `json:"tags" validate:"max=32"`
}

func (h *ListingHandler) SetTags(w http.ResponseWriter, r *http.Request) {
	var req tagsRequest
	err := decodeJSON(w, r, &req)
	if err != nil {
		h.error(w, r, err)
		return
	}
	tags := req.Tags
	listing, err := h.listingService.Edit(r.Context(), actor(r), r.PathValue("id"), service.ListingEdit{Tags: &tags})
	if err != nil {
		h.error(w, r, err)
		return
	}
	names, err := h.listingService.GetTags(r.Context(), listing.ID)
	if err != nil {
		h.error(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": names})
}
