package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/metrics"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/repository"
	"github.com/robolist/robolist/internal/store"
	"github.com/robolist/robolist/internal/validation"
	"golang.org/x/sync/errgroup"
)

var (
	listingSlugUnique = store.Unique{"user_id", "slug"}
	tagUnique         = store.Unique{"listing_id", "name"}
	voteUnique        = store.Unique{"user_id", "listing_id"}
)

var listingSearchFields = []string{"name", "description"}

type ListingSort string

const (
	SortNewest      ListingSort = "newest"
	SortMostViewed  ListingSort = "most_viewed"
	SortMostUpvoted ListingSort = "most_upvoted"
)

func (s ListingSort) key() func(model.Listing) int64 {
	switch s {
	case SortMostViewed:
		return func(l model.Listing) int64 { return l.Views }
	case SortMostUpvoted:
		return func(l model.Listing) int64 { return l.Score }
	default:
		return func(l model.Listing) int64 { return l.CreatedAt }
	}
}

func ParseListingSort(s string) (ListingSort, error) {
	switch ListingSort(s) {
	case "", SortNewest:
		return SortNewest, nil
	case SortMostViewed, SortMostUpvoted:
		return ListingSort(s), nil
	}
	return "", fmt.Errorf("unknown sort %q: %w", s, apperr.ErrInvalidInput)
}

func listingName(l model.Listing) string { return l.Name }

type ListingService struct {
	listings  *repository.Repository[model.Listing]
	tags      *repository.Repository[model.ListingTag]
	votes     *repository.Repository[model.ListingVote]
	featured  *repository.Repository[model.FeaturedListings]
	artifacts *ArtifactService
	users     *UserService
}

func NewListingService(s store.Store, artifacts *ArtifactService, users *UserService) *ListingService {
	return &ListingService{
		listings:  repository.New[model.Listing](s, model.KindListing),
		tags:      repository.New[model.ListingTag](s, model.KindListingTag),
		votes:     repository.New[model.ListingVote](s, model.KindListingVote),
		featured:  repository.New[model.FeaturedListings](s, model.KindFeaturedListings),
		artifacts: artifacts,
		users:     users,
	}
}

// ListingInfo is a listing rendered with its owner's username.
type ListingInfo struct {
	model.Listing
	Username string `json:"username,omitempty"`
}

type NewListing struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Slug        string   `json:"slug"`
	ChildIDs    []string `json:"child_ids"`
	OnshapeURL  string   `json:"onshape_url"`
	Tags        []string `json:"tags"`
}

func (s *ListingService) Add(ctx context.Context, actor *model.User, in NewListing) (*model.Listing, error) {
	err := validation.ValidateListingName(in.Name)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateDescription(in.Description)
	if err != nil {
		return nil, err
	}
	slug, err := listingSlug(in.Slug, in.Name)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	listing := &model.Listing{
		ID:          uuid.New().String(),
		UserID:      actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Name:        in.Name,
		Slug:        slug,
		ChildIDs:    nonNil(in.ChildIDs),
		Description: in.Description,
		OnshapeURL:  in.OnshapeURL,
	}
	err = s.listings.Add(ctx, listing, listingSlugUnique)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("you already have a listing with slug %q: %w", slug, apperr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add listing: %w", err)
	}

	if len(in.Tags) > 0 {
		err = s.SetTags(ctx, listing.ID, in.Tags)
		if err != nil {
			return nil, err
		}
	}

	slog.Info("listing created", "listing_id", listing.ID, "user_id", actor.ID)
	return listing, nil
}

// listingSlug normalizes an explicit slug or derives one from the name.
func listingSlug(slug, name string) (string, error) {
	if slug == "" {
		slug = name
	}
	out := slugify(slug)
	if out == "" {
		return "", fmt.Errorf("slug %q has no usable characters: %w", slug, apperr.ErrInvalidInput)
	}
	return out, nil
}

func (s *ListingService) Get(ctx context.Context, id string) (*model.Listing, error) {
	return s.listings.Get(ctx, id)
}

func (s *ListingService) GetByUsernameSlug(ctx context.Context, username, slug string) (*model.Listing, error) {
	user, err := s.users.ByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	listing, err := s.listings.ListBy(ctx, "user_id", user.ID, store.Filter{
		Equals: map[string]any{"slug": slug},
	})
	if err != nil {
		return nil, err
	}
	if len(listing) == 0 {
		return nil, fmt.Errorf("listing %s/%s not found: %w", username, slug, apperr.ErrNotFound)
	}
	return &listing[0], nil
}

// ListingEdit holds optional changes. Nil fields are left untouched.
type ListingEdit struct {
	Name        *string   `json:"name"`
	Description *string   `json:"description"`
	Slug        *string   `json:"slug"`
	ChildIDs    *[]string `json:"child_ids"`
	OnshapeURL  *string   `json:"onshape_url"`
	Tags        *[]string `json:"tags"`
}

// Edit applies changes by the owner, an admin or a moderator. Field and tag
// changes are written concurrently.
func (s *ListingService) Edit(ctx context.Context, actor *model.User, id string, edit ListingEdit) (*model.Listing, error) {
	listing, err := s.writable(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	upd := store.NewUpdate()
	if edit.Name != nil {
		err = validation.ValidateListingName(*edit.Name)
		if err != nil {
			return nil, err
		}
		upd.Set("name", *edit.Name)
	}
	if edit.Description != nil {
		err = validation.ValidateDescription(*edit.Description)
		if err != nil {
			return nil, err
		}
		upd.Set("description", *edit.Description)
	}
	if edit.Slug != nil {
		name := listing.Name
		if edit.Name != nil {
			name = *edit.Name
		}
		slug, err := listingSlug(*edit.Slug, name)
		if err != nil {
			return nil, err
		}
		upd.Set("slug", slug)
	}
	if edit.ChildIDs != nil {
		upd.Set("child_ids", nonNil(*edit.ChildIDs))
	}
	if edit.OnshapeURL != nil {
		upd.Set("onshape_url", *edit.OnshapeURL)
	}
	if edit.Tags != nil {
		for _, t := range *edit.Tags {
			err = validation.ValidateTag(t)
			if err != nil {
				return nil, err
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if !upd.IsEmpty() {
		upd.Set("updated_at", time.Now().Unix())
		g.Go(func() error {
			return s.listings.Update(gctx, id, upd, listingSlugUnique)
		})
	}
	if edit.Tags != nil {
		g.Go(func() error {
			return s.SetTags(gctx, id, *edit.Tags)
		})
	}
	err = g.Wait()
	if err != nil {
		return nil, err
	}
	return s.listings.Get(ctx, id)
}

// Delete removes a listing. Artifacts, tags and votes are removed first,
// concurrently; the listing row goes last.
func (s *ListingService) Delete(ctx context.Context, actor *model.User, id string) error {
	_, err := s.writable(ctx, actor, id)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.artifacts.DeleteForListing(gctx, id)
	})
	g.Go(func() error {
		tags, err := s.tags.ListBy(gctx, "listing_id", id, store.Filter{})
		if err != nil {
			return err
		}
		return deleteAll(gctx, s.tags, tags, func(t model.ListingTag) string { return t.ID })
	})
	g.Go(func() error {
		votes, err := s.votes.ListBy(gctx, "listing_id", id, store.Filter{})
		if err != nil {
			return err
		}
		return deleteAll(gctx, s.votes, votes, func(v model.ListingVote) string { return v.ID })
	})
	err = g.Wait()
	if err != nil {
		slog.Error("failed to delete listing children", "error", err, "listing_id", id)
		return err
	}

	err = s.listings.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete listing %s: %w", id, err)
	}
	slog.Info("listing deleted", "listing_id", id, "by", actor.ID)
	return nil
}

func (s *ListingService) writable(ctx context.Context, actor *model.User, id string) (*model.Listing, error) {
	listing, err := s.listings.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !listing.CanWrite(actor) {
		return nil, fmt.Errorf("cannot modify listing %s: %w", id, apperr.ErrNotAllowed)
	}
	return listing, nil
}

type ListQuery struct {
	Page   int
	Sort   ListingSort
	Search string
}

// List returns one page of listings, optionally filtered by a search term.
func (s *ListingService) List(ctx context.Context, q ListQuery) ([]model.Listing, bool, error) {
	filter := store.Filter{}
	if q.Search != "" {
		filter.Search = q.Search
		filter.SearchFields = listingSearchFields
	}
	listings, err := s.listings.List(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	page, hasNext := repository.Paginate(listings, q.Page, q.Sort.key(), listingName)
	return page, hasNext, nil
}

// All returns every listing, newest first.
func (s *ListingService) All(ctx context.Context) ([]model.Listing, error) {
	listings, err := s.listings.List(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(listings, func(a, b model.Listing) int {
		return cmp.Compare(b.CreatedAt, a.CreatedAt)
	})
	return listings, nil
}

// UserListings returns one page of a user's listings, newest first.
func (s *ListingService) UserListings(ctx context.Context, userID string, page int) ([]model.Listing, bool, error) {
	listings, err := s.listings.ListBy(ctx, "user_id", userID, store.Filter{})
	if err != nil {
		return nil, false, err
	}
	out, hasNext := repository.Paginate(listings, page, SortNewest.key(), listingName)
	return out, hasNext, nil
}

// UpvotedListings returns one page of the listings a user upvoted, newest
// first. has_next counts upvotes, including those on listings since removed.
func (s *ListingService) UpvotedListings(ctx context.Context, userID string, page int) ([]model.Listing, bool, error) {
	votes, err := s.votes.ListBy(ctx, "user_id", userID, store.Filter{
		Equals: map[string]any{"is_upvote": true},
	})
	if err != nil {
		return nil, false, err
	}
	ids := make([]string, 0, len(votes))
	for _, v := range votes {
		ids = append(ids, v.ListingID)
	}
	listings, err := s.listings.BatchGet(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, false, err
	}
	out, _ := repository.Paginate(listings, page, SortNewest.key(), listingName)
	return out, len(ids) > max(page, 1)*repository.PageSize, nil
}

func (s *ListingService) IncrementViews(ctx context.Context, id string) error {
	return s.listings.Update(ctx, id, store.NewUpdate().Add("views", 1))
}

// ByIDs fetches listings in the given order, skipping missing ones.
func (s *ListingService) ByIDs(ctx context.Context, ids []string) ([]model.Listing, error) {
	return s.listings.BatchGet(ctx, ids)
}

// WithUsernames attaches owner usernames to listings.
func (s *ListingService) WithUsernames(ctx context.Context, listings []model.Listing) ([]ListingInfo, error) {
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.UserID)
	}
	names, err := s.users.Usernames(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ListingInfo, 0, len(listings))
	for _, l := range listings {
		out = append(out, ListingInfo{Listing: l, Username: names[l.UserID]})
	}
	return out, nil
}

// voteDelta adjusts the counters of a listing for one vote being added
// (sign 1) or removed (sign -1). Removal requires the counter to be positive.
func voteDelta(upd *store.Update, isUpvote bool, sign int64) *store.Update {
	counter, score := "downvotes", -sign
	if isUpvote {
		counter, score = "upvotes", sign
	}
	upd.Add(counter, sign).Add("score", score)
	if sign < 0 {
		upd.RequireAtLeast(counter, 1)
	}
	return upd
}

// HandleVote moves the caller's vote on a listing to the desired state: an
// upvote, a downvote, or none when vote is nil. It returns the listing with
// the counters written by this vote.
func (s *ListingService) HandleVote(ctx context.Context, userID, listingID string, vote *bool) (*model.Listing, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	existing, err := s.GetUserVote(ctx, userID, listingID)
	if err != nil {
		return nil, err
	}

	switch {
	case vote == nil && existing == nil:
		return nil, fmt.Errorf("cannot remove a vote that does not exist: %w", apperr.ErrInvalidInput)

	case vote == nil:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return s.votes.Delete(gctx, existing.ID)
		})
		g.Go(func() error {
			updated, err := s.updateCounters(gctx, listingID, voteDelta(store.NewUpdate(), existing.IsUpvote, -1))
			listing = updated
			return err
		})
		metrics.VotesTotal.WithLabelValues("remove").Inc()
		err = g.Wait()
		if err != nil {
			return nil, err
		}
		return listing, nil

	case existing == nil:
		err = s.votes.Add(ctx, &model.ListingVote{
			ID:        uuid.New().String(),
			UserID:    userID,
			ListingID: listingID,
			IsUpvote:  *vote,
			CreatedAt: time.Now().Unix(),
		}, voteUnique)
		if errors.Is(err, apperr.ErrConflict) {
			// A concurrent request recorded the vote first.
			return s.listings.Get(ctx, listingID)
		}
		if err != nil {
			return nil, err
		}
		metrics.VotesTotal.WithLabelValues("add").Inc()
		return s.updateCounters(ctx, listingID, voteDelta(store.NewUpdate(), *vote, 1))

	case existing.IsUpvote == *vote:
		return listing, nil

	default:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return s.votes.Update(gctx, existing.ID, store.NewUpdate().Set("is_upvote", *vote))
		})
		g.Go(func() error {
			updated, err := s.updateCounters(gctx, listingID, flipDelta(existing.IsUpvote))
			listing = updated
			return err
		})
		metrics.VotesTotal.WithLabelValues("flip").Inc()
		err = g.Wait()
		if err != nil {
			return nil, err
		}
		return listing, nil
	}
}

// flipDelta moves one vote from the wasUpvote counter to the other.
func flipDelta(wasUpvote bool) *store.Update {
	return voteDelta(voteDelta(store.NewUpdate(), wasUpvote, -1), !wasUpvote, 1)
}

// updateCounters applies upd and returns the listing as written. A counter
// already at zero leaves the listing unchanged, and it is read back instead.
func (s *ListingService) updateCounters(ctx context.Context, listingID string, upd *store.Update) (*model.Listing, error) {
	var listing model.Listing
	err := s.listings.Update(ctx, listingID, upd.Returning(&listing))
	if errors.Is(err, store.ErrConditionFailed) {
		slog.Warn("listing vote counter already at zero", "listing_id", listingID)
		return s.listings.Get(ctx, listingID)
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetUserVote returns the user's vote on a listing, or nil. Duplicate vote
// rows are removed, keeping the oldest, and their counts reversed.
func (s *ListingService) GetUserVote(ctx context.Context, userID, listingID string) (*model.ListingVote, error) {
	votes, err := s.votes.ListBy(ctx, "listing_id", listingID, store.Filter{
		Equals: map[string]any{"user_id": userID},
	})
	if err != nil {
		return nil, err
	}
	if len(votes) == 0 {
		return nil, nil
	}
	slices.SortFunc(votes, func(a, b model.ListingVote) int {
		return cmp.Or(cmp.Compare(a.CreatedAt, b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	if len(votes) > 1 {
		slog.Warn("removing duplicate votes", "listing_id", listingID, "user_id", userID, "count", len(votes))
		g, gctx := errgroup.WithContext(ctx)
		for _, dup := range votes[1:] {
			g.Go(func() error {
				err := s.votes.Delete(gctx, dup.ID)
				if err != nil {
					return err
				}
				_, err = s.updateCounters(gctx, listingID, voteDelta(store.NewUpdate(), dup.IsUpvote, -1))
				return err
			})
		}
		err = g.Wait()
		if err != nil {
			return nil, err
		}
	}
	return &votes[0], nil
}

// GetTags returns the tag names of a listing in order.
func (s *ListingService) GetTags(ctx context.Context, listingID string) ([]string, error) {
	tags, err := s.tags.ListBy(ctx, "listing_id", listingID, store.Filter{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	slices.Sort(names)
	return slices.Compact(names), nil
}

// SetTags makes the listing's tags equal to names. Tags already present are
// left as they are; additions and removals run concurrently.
func (s *ListingService) SetTags(ctx context.Context, listingID string, names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		err := validation.ValidateTag(n)
		if err != nil {
			return err
		}
		want[n] = true
	}

	existing, err := s.tags.ListBy(ctx, "listing_id", listingID, store.Filter{})
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t.Name] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	for name := range want {
		if have[name] {
			continue
		}
		g.Go(func() error {
			err := s.tags.Add(gctx, &model.ListingTag{
				ID:        uuid.New().String(),
				ListingID: listingID,
				Name:      name,
			}, tagUnique)
			if errors.Is(err, apperr.ErrConflict) {
				return nil
			}
			return err
		})
	}
	for _, t := range existing {
		if want[t.Name] {
			continue
		}
		g.Go(func() error {
			return s.tags.Delete(gctx, t.ID)
		})
	}
	return g.Wait()
}

// Featured returns the featured listing ids in display order.
func (s *ListingService) Featured(ctx context.Context) ([]string, error) {
	f, err := s.featured.Find(ctx, model.FeaturedListingsID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return []string{}, nil
	}
	return nonNil(f.ListingIDs), nil
}

// SetFeatured replaces the featured listings. Only content managers may call it.
func (s *ListingService) SetFeatured(ctx context.Context, actor *model.User, ids []string) ([]string, error) {
	if !actor.IsContentManager() {
		return nil, fmt.Errorf("only content managers can feature listings: %w", apperr.ErrNotAllowed)
	}
	ids = uniqueStrings(ids)
	found, err := s.listings.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(found) != len(ids) {
		return nil, fmt.Errorf("featured listings must exist: %w", apperr.ErrNotFound)
	}

	err = s.featured.Update(ctx, model.FeaturedListingsID, store.NewUpdate().Set("listing_ids", ids))
	if errors.Is(err, apperr.ErrNotFound) {
		err = s.featured.Add(ctx, &model.FeaturedListings{ID: model.FeaturedListingsID, ListingIDs: ids})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set featured listings: %w", err)
	}
	return ids, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
