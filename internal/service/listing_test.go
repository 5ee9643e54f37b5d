package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/repository"
	"github.com/robolist/robolist/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestListingService_AddAndSlugs(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	other := env.newUser(t, "other@example.com")

	l, err := env.listings.Add(ctx, owner, NewListing{Name: "Stompy Pro", Tags: []string{"humanoid"}})
	require.NoError(t, err)
	assert.Equal(t, "stompy-pro", l.Slug)
	assert.Equal(t, []string{}, l.ChildIDs)

	_, err = env.listings.Add(ctx, owner, NewListing{Name: "Stompy  PRO!"})
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = env.listings.Add(ctx, other, NewListing{Name: "Stompy Pro"})
	require.NoError(t, err)

	got, err := env.listings.GetByUsernameSlug(ctx, owner.Username, "stompy-pro")
	require.NoError(t, err)
	assert.Equal(t, l.ID, got.ID)

	_, err = env.listings.GetByUsernameSlug(ctx, owner.Username, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.listings.Add(ctx, owner, NewListing{Name: ""})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	tags, err := env.listings.GetTags(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"humanoid"}, tags)
}

func TestListingService_Edit(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	stranger := env.newUser(t, "stranger@example.com")
	mod := env.newUser(t, "mod@example.com", model.PermissionMod)
	l := env.newListing(t, owner, "Arm")

	_, err := env.listings.Edit(ctx, stranger, l.ID, ListingEdit{Name: ptr("Hijacked")})
	assert.ErrorIs(t, err, apperr.ErrNotAllowed)

	got, err := env.listings.Edit(ctx, owner, l.ID, ListingEdit{
		Name:        ptr("Arm v2"),
		Description: ptr("six axis"),
		Slug:        ptr("Arm v2"),
		Tags:        ptr([]string{"arm", "six-axis"}),
	})
	require.NoError(t, err)
	assert.Equal(t, "Arm v2", got.Name)
	assert.Equal(t, "arm-v2", got.Slug)
	assert.Equal(t, "six axis", got.Description)

	tags, err := env.listings.GetTags(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"arm", "six-axis"}, tags)

	got, err = env.listings.Edit(ctx, mod, l.ID, ListingEdit{ChildIDs: ptr([]string{"c1"})})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, got.ChildIDs)

	// An empty slug is regenerated from the name set in the same edit.
	got, err = env.listings.Edit(ctx, owner, l.ID, ListingEdit{Name: ptr("Wrist Camera"), Slug: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "wrist-camera", got.Slug)
}

func TestListingService_VoteIdempotent(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	voter := env.newUser(t, "voter@example.com")
	l := env.newListing(t, owner, "Gripper")

	env.vote(t, voter.ID, l.ID, ptr(true))
	env.vote(t, voter.ID, l.ID, ptr(true))

	got, err := env.listings.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Upvotes)
	assert.Equal(t, int64(1), got.Score)

	votes, err := env.listings.votes.ListBy(ctx, "listing_id", l.ID, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, votes, 1)
}

func TestListingService_VoteToggleSymmetry(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	voter := env.newUser(t, "voter@example.com")
	l := env.newListing(t, owner, "Gripper")

	up := env.vote(t, voter.ID, l.ID, ptr(true))
	assert.Equal(t, int64(1), up.Upvotes)
	assert.Equal(t, int64(1), up.Score)

	down := env.vote(t, voter.ID, l.ID, ptr(false))
	assert.Equal(t, int64(0), down.Upvotes)
	assert.Equal(t, int64(1), down.Downvotes)
	assert.Equal(t, int64(-1), down.Score)

	got, err := env.listings.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Upvotes)
	assert.Equal(t, int64(1), got.Downvotes)
	assert.Equal(t, int64(-1), got.Score)

	vote, err := env.listings.GetUserVote(ctx, voter.ID, l.ID)
	require.NoError(t, err)
	require.NotNil(t, vote)
	assert.False(t, vote.IsUpvote)

	removed := env.vote(t, voter.ID, l.ID, nil)
	assert.Equal(t, int64(0), removed.Downvotes)
	assert.Equal(t, int64(0), removed.Score)

	got, err = env.listings.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Upvotes)
	assert.Equal(t, int64(0), got.Downvotes)
	assert.Equal(t, int64(0), got.Score)

	vote, err = env.listings.GetUserVote(ctx, voter.ID, l.ID)
	require.NoError(t, err)
	assert.Nil(t, vote)

	_, err = env.listings.HandleVote(ctx, voter.ID, l.ID, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	assert.ErrorContains(t, err, "cannot remove a vote that does not exist")

	_, err = env.listings.HandleVote(ctx, voter.ID, "missing", ptr(true))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListingService_RemoveVoteWithCounterAtZero(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	voter := env.newUser(t, "voter@example.com")
	l := env.newListing(t, owner, "Gripper")

	// A vote row whose counter update never landed.
	require.NoError(t, env.listings.votes.Add(ctx, &model.ListingVote{
		ID: "v1", UserID: voter.ID, ListingID: l.ID, IsUpvote: true, CreatedAt: 100,
	}))

	got := env.vote(t, voter.ID, l.ID, nil)
	assert.Equal(t, l.ID, got.ID)
	assert.Equal(t, int64(0), got.Upvotes)
	assert.Equal(t, int64(0), got.Score)

	vote, err := env.listings.GetUserVote(ctx, voter.ID, l.ID)
	require.NoError(t, err)
	assert.Nil(t, vote)
}

func TestListingService_DuplicateVotesAreHealed(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	voter := env.newUser(t, "voter@example.com")
	l := env.newListing(t, owner, "Gripper")

	for i, id := range []string{"v1", "v2"} {
		require.NoError(t, env.listings.votes.Add(ctx, &model.ListingVote{
			ID: id, UserID: voter.ID, ListingID: l.ID, IsUpvote: true, CreatedAt: int64(100 + i),
		}))
	}
	require.NoError(t, env.listings.listings.Update(ctx, l.ID, store.NewUpdate().Add("upvotes", 2).Add("score", 2)))

	vote, err := env.listings.GetUserVote(ctx, voter.ID, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", vote.ID)

	votes, err := env.listings.votes.ListBy(ctx, "listing_id", l.ID, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, votes, 1)

	got, err := env.listings.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Upvotes)
	assert.Equal(t, int64(1), got.Score)
}

func TestListingService_SetTagsIsSetDifference(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	l := env.newListing(t, owner, "Hand")

	require.NoError(t, env.listings.SetTags(ctx, l.ID, []string{"a", "b"}))
	before, err := env.listings.tags.ListBy(ctx, "listing_id", l.ID, store.Filter{Equals: map[string]any{"name": "b"}})
	require.NoError(t, err)
	require.Len(t, before, 1)

	require.NoError(t, env.listings.SetTags(ctx, l.ID, []string{"b", "c"}))

	tags, err := env.listings.GetTags(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, tags)

	after, err := env.listings.tags.ListBy(ctx, "listing_id", l.ID, store.Filter{Equals: map[string]any{"name": "b"}})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)

	require.NoError(t, env.listings.SetTags(ctx, l.ID, nil))
	tags, err = env.listings.GetTags(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestListingService_DeleteCascades(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	voter := env.newUser(t, "voter@example.com")
	l := env.newListing(t, owner, "Quadruped")

	_, err := env.artifacts.Upload(ctx, owner, l.ID, []UploadFile{
		uploadFile("leg.stl", "application/octet-stream", []byte("solid leg\nendsolid leg\n")),
		uploadFile("photo.png", "image/png", pngBytes(t, 40, 30)),
	})
	require.NoError(t, err)
	require.NoError(t, env.listings.SetTags(ctx, l.ID, []string{"legged", "quadruped"}))
	env.vote(t, voter.ID, l.ID, ptr(true))
	require.Len(t, env.blobs.Keys(), 3)

	assert.ErrorIs(t, env.listings.Delete(ctx, voter, l.ID), apperr.ErrNotAllowed)
	require.NoError(t, env.listings.Delete(ctx, owner, l.ID))

	_, err = env.listings.Get(ctx, l.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	artifacts, err := env.artifacts.ListForListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, artifacts)
	tags, err := env.listings.GetTags(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, tags)
	assert.Empty(t, env.blobs.Keys())

	empty := env.newListing(t, owner, "Empty")
	require.NoError(t, env.listings.Delete(ctx, owner, empty.ID))

	// The slug is free again once the listing is gone.
	env.newListing(t, owner, "Quadruped")
}

func TestListingService_ListPagination(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")

	for i := range 25 {
		require.NoError(t, env.listings.listings.Add(ctx, &model.Listing{
			ID:        fmt.Sprintf("l%02d", i),
			UserID:    owner.ID,
			Name:      fmt.Sprintf("listing %02d", i),
			Slug:      fmt.Sprintf("listing-%02d", i),
			CreatedAt: int64(1000 + i),
			ChildIDs:  []string{},
		}))
	}

	page, hasNext, err := env.listings.List(ctx, ListQuery{Page: 1, Sort: SortNewest})
	require.NoError(t, err)
	require.Len(t, page, 20)
	assert.True(t, hasNext)
	assert.Equal(t, "l24", page[0].ID)
	assert.Equal(t, "l05", page[19].ID)

	page, hasNext, err = env.listings.List(ctx, ListQuery{Page: 2, Sort: SortNewest})
	require.NoError(t, err)
	require.Len(t, page, 5)
	assert.False(t, hasNext)
	assert.Equal(t, "l04", page[0].ID)
	assert.Equal(t, "l00", page[4].ID)

	page, _, err = env.listings.List(ctx, ListQuery{Page: 1, Search: "listing 1"})
	require.NoError(t, err)
	assert.Len(t, page, 10)

	require.NoError(t, env.listings.IncrementViews(ctx, "l03"))
	page, _, err = env.listings.List(ctx, ListQuery{Page: 1, Sort: SortMostViewed})
	require.NoError(t, err)
	assert.Equal(t, "l03", page[0].ID)
	assert.Equal(t, int64(1), page[0].Views)

	mine, hasNext, err := env.listings.UserListings(ctx, owner.ID, 2)
	require.NoError(t, err)
	assert.Len(t, mine, 5)
	assert.False(t, hasNext)
}

func TestListingService_UpvotedAndUsernames(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	voter := env.newUser(t, "voter@example.com")
	a := env.newListing(t, owner, "A")
	b := env.newListing(t, owner, "B")
	env.newListing(t, owner, "C")

	env.vote(t, voter.ID, a.ID, ptr(true))
	env.vote(t, voter.ID, b.ID, ptr(false))

	upvoted, hasNext, err := env.listings.UpvotedListings(ctx, voter.ID, 1)
	require.NoError(t, err)
	assert.False(t, hasNext)
	require.Len(t, upvoted, 1)
	assert.Equal(t, a.ID, upvoted[0].ID)

	infos, err := env.listings.WithUsernames(ctx, upvoted)
	require.NoError(t, err)
	assert.Equal(t, owner.Username, infos[0].Username)
}

func TestListingService_UpvotedNewestFirst(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	voter := env.newUser(t, "voter@example.com")
	fan := env.newUser(t, "fan@example.com")

	var ids []string
	for i := range repository.PageSize {
		l := env.newListing(t, owner, fmt.Sprintf("Listing %02d", i))
		require.NoError(t, env.listings.listings.Update(ctx, l.ID, store.NewUpdate().Set("created_at", int64(1000+i))))
		env.vote(t, voter.ID, l.ID, ptr(true))
		ids = append(ids, l.ID)
	}
	// The oldest listing has the highest score.
	env.vote(t, fan.ID, ids[0], ptr(true))

	upvoted, hasNext, err := env.listings.UpvotedListings(ctx, voter.ID, 1)
	require.NoError(t, err)
	require.Len(t, upvoted, repository.PageSize)
	assert.False(t, hasNext)
	assert.Equal(t, ids[len(ids)-1], upvoted[0].ID)
	assert.Equal(t, ids[0], upvoted[len(upvoted)-1].ID)

	// An upvote on a listing that no longer exists still counts toward has_next.
	require.NoError(t, env.listings.votes.Add(ctx, &model.ListingVote{
		ID: "stale", UserID: voter.ID, ListingID: "gone", IsUpvote: true, CreatedAt: 1,
	}))
	upvoted, hasNext, err = env.listings.UpvotedListings(ctx, voter.ID, 1)
	require.NoError(t, err)
	assert.Len(t, upvoted, repository.PageSize)
	assert.True(t, hasNext)
}

func TestListingService_Featured(t *testing.T) {
	env := newTestEnv(t, false)
	ctx := context.Background()
	owner := env.newUser(t, "owner@example.com")
	cm := env.newUser(t, "cm@example.com", model.PermissionContentManager)
	a := env.newListing(t, owner, "A")
	b := env.newListing(t, owner, "B")

	ids, err := env.listings.Featured(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = env.listings.SetFeatured(ctx, owner, []string{a.ID})
	assert.ErrorIs(t, err, apperr.ErrNotAllowed)

	_, err = env.listings.SetFeatured(ctx, cm, []string{a.ID, "missing"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.listings.SetFeatured(ctx, cm, []string{b.ID, a.ID})
	require.NoError(t, err)
	_, err = env.listings.SetFeatured(ctx, cm, []string{a.ID})
	require.NoError(t, err)

	ids, err = env.listings.Featured(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, ids)
}

func TestFlipDelta(t *testing.T) {
	upd := flipDelta(true)
	assert.ElementsMatch(t, []string{"upvotes", "score", "downvotes"}, upd.Fields())

	for field, want := range map[string]int64{"upvotes": -1, "downvotes": 1, "score": -2} {
		got, ok := upd.Delta(field)
		assert.True(t, ok, field)
		assert.Equal(t, want, got, field)
	}

	got, _ := flipDelta(false).Delta("score")
	assert.Equal(t, int64(2), got)
}
