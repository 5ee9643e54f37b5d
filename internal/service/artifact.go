package service

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/metrics"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/repository"
	"github.com/robolist/robolist/internal/storage"
	"github.com/robolist/robolist/internal/store"
	"github.com/robolist/robolist/internal/validation"
	"golang.org/x/sync/errgroup"
)

type ArtifactConfig struct {
	// BaseURL serves blobs publicly. When empty, presigned download URLs are used.
	BaseURL       string
	PresignExpiry time.Duration
	Limits        validation.UploadLimits
}

type ArtifactService struct {
	artifacts *repository.Repository[model.Artifact]
	listings  *repository.Repository[model.Listing]
	storage   storage.Storage
	cfg       ArtifactConfig
}

func NewArtifactService(s store.Store, blobs storage.Storage, cfg ArtifactConfig) *ArtifactService {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = time.Hour
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ArtifactService{
		artifacts: repository.New[model.Artifact](s, model.KindArtifact),
		listings:  repository.New[model.Listing](s, model.KindListing),
		storage:   blobs,
		cfg:       cfg,
	}
}

// ArtifactURLs holds download URLs. Small is set for images only.
type ArtifactURLs struct {
	Large string `json:"large"`
	Small string `json:"small,omitempty"`
}

type ArtifactInfo struct {
	model.Artifact
	URLs ArtifactURLs `json:"urls"`
}

// UploadFile is one file of a multipart upload.
type UploadFile struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

// Upload stores files as artifacts of a listing the actor may edit.
func (s *ArtifactService) Upload(ctx context.Context, actor *model.User, listingID string, files []UploadFile) ([]ArtifactInfo, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("no files provided: %w", apperr.ErrInvalidInput)
	}
	_, err := s.writableListing(ctx, actor, listingID)
	if err != nil {
		return nil, err
	}

	// Every file is checked before anything is stored.
	uploads := make([]*validation.Upload, len(files))
	for i, f := range files {
		uploads[i], err = validation.ValidateUpload(f.Body, f.Filename, f.ContentType, f.Size, s.cfg.Limits)
		if err != nil {
			return nil, err
		}
	}

	infos := make([]ArtifactInfo, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			a, err := s.put(gctx, actor, listingID, f, uploads[i])
			if err != nil {
				return err
			}
			info, err := s.info(gctx, a)
			if err != nil {
				return err
			}
			infos[i] = *info
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *ArtifactService) put(ctx context.Context, actor *model.User, listingID string, f UploadFile, up *validation.Upload) (*model.Artifact, error) {
	a := &model.Artifact{
		ID:           uuid.New().String(),
		UserID:       actor.ID,
		ListingID:    listingID,
		Name:         artifactName(f.Filename, up.Type),
		ArtifactType: up.Type,
		Timestamp:    time.Now().Unix(),
	}

	if up.Type.IsImage() {
		img, err := decodeImage(f.Body)
		if err != nil {
			return nil, err
		}
		variants, err := imageVariants(img)
		if err != nil {
			return nil, err
		}
		a.Sizes = model.ArtifactSizes
		for _, size := range a.Sizes {
			key, err := a.Key(size)
			if err != nil {
				return nil, err
			}
			err = s.storage.Upload(ctx, key, bytes.NewReader(variants[size]), model.DownloadContentType(a.ArtifactType), a.Name)
			if err != nil {
				return nil, err
			}
		}
	} else {
		key, err := a.Key(model.SizeLarge)
		if err != nil {
			return nil, err
		}
		err = s.storage.Upload(ctx, key, f.Body, up.ContentType, a.Name)
		if err != nil {
			return nil, err
		}
	}

	err := s.artifacts.Add(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to add artifact: %w", err)
	}
	metrics.ArtifactUploadsTotal.WithLabelValues(string(a.ArtifactType), "direct").Inc()
	metrics.ArtifactUploadBytesTotal.WithLabelValues(string(a.ArtifactType)).Add(float64(f.Size))
	slog.Info("artifact uploaded", "artifact_id", a.ID, "listing_id", listingID, "type", a.ArtifactType)
	return a, nil
}

// artifactName strips directories from the client filename. Images are
// stored as PNG, so their extension is replaced.
func artifactName(filename string, t model.ArtifactType) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if t.IsImage() {
		name = strings.TrimSuffix(name, path.Ext(name)) + ".png"
	}
	return name
}

type PresignedArtifact struct {
	Artifact  model.Artifact `json:"artifact"`
	UploadURL string         `json:"upload_url"`
}

// PresignedUpload registers an artifact and returns a URL the client PUTs the
// file to. Images must be uploaded directly so their variants can be rendered.
func (s *ArtifactService) PresignedUpload(ctx context.Context, actor *model.User, listingID, filename, contentType string) (*PresignedArtifact, error) {
	_, err := s.writableListing(ctx, actor, listingID)
	if err != nil {
		return nil, err
	}

	t, err := model.ClassifyArtifact(contentType, filename)
	if err != nil {
		return nil, err
	}
	if t.IsImage() {
		return nil, fmt.Errorf("images must be uploaded directly: %w", apperr.ErrInvalidInput)
	}
	err = model.CheckContentType(contentType, t)
	if err != nil {
		return nil, err
	}

	a := &model.Artifact{
		ID:           uuid.New().String(),
		UserID:       actor.ID,
		ListingID:    listingID,
		Name:         artifactName(filename, t),
		ArtifactType: t,
		Timestamp:    time.Now().Unix(),
	}
	key, err := a.Key(model.SizeLarge)
	if err != nil {
		return nil, err
	}
	url, err := s.storage.PresignUpload(ctx, key, contentType, a.Name, s.cfg.PresignExpiry)
	if err != nil {
		return nil, err
	}

	err = s.artifacts.Add(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to add artifact: %w", err)
	}
	metrics.ArtifactUploadsTotal.WithLabelValues(string(t), "presigned").Inc()
	return &PresignedArtifact{Artifact: *a, UploadURL: url}, nil
}

func (s *ArtifactService) Get(ctx context.Context, id string) (*model.Artifact, error) {
	return s.artifacts.Get(ctx, id)
}

func (s *ArtifactService) Info(ctx context.Context, id string) (*ArtifactInfo, error) {
	a, err := s.artifacts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.info(ctx, a)
}

// URL returns a public or presigned download URL for one size of the artifact.
func (s *ArtifactService) URL(ctx context.Context, a *model.Artifact, size model.ArtifactSize) (string, error) {
	key, err := a.Key(size)
	if err != nil {
		return "", err
	}
	if s.cfg.BaseURL != "" {
		return s.cfg.BaseURL + "/" + key, nil
	}
	return s.storage.PresignDownload(ctx, key, s.cfg.PresignExpiry)
}

func (s *ArtifactService) info(ctx context.Context, a *model.Artifact) (*ArtifactInfo, error) {
	info := &ArtifactInfo{Artifact: *a}
	var err error
	info.URLs.Large, err = s.URL(ctx, a, model.SizeLarge)
	if err != nil {
		return nil, err
	}
	if a.ArtifactType.IsImage() {
		info.URLs.Small, err = s.URL(ctx, a, model.SizeSmall)
		if err != nil {
			return nil, err
		}
	}
	return info, nil
}

// ListForListing returns the artifacts of a listing, newest first.
func (s *ArtifactService) ListForListing(ctx context.Context, listingID string) ([]ArtifactInfo, error) {
	artifacts, err := s.artifacts.ListBy(ctx, "listing_id", listingID, store.Filter{})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(artifacts, func(a, b model.Artifact) int {
		return cmp.Or(cmp.Compare(b.Timestamp, a.Timestamp), cmp.Compare(a.ID, b.ID))
	})

	infos := make([]ArtifactInfo, 0, len(artifacts))
	for i := range artifacts {
		info, err := s.info(ctx, &artifacts[i])
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

type ArtifactEdit struct {
	Name        *string
	Description *string
}

// Edit renames or redescribes an artifact. A rename moves the stored blobs
// to the keys derived from the new name.
func (s *ArtifactService) Edit(ctx context.Context, actor *model.User, id string, edit ArtifactEdit) (*model.Artifact, error) {
	a, err := s.artifacts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.CanWrite(actor) {
		return nil, fmt.Errorf("cannot edit artifact %s: %w", id, apperr.ErrNotAllowed)
	}

	upd := store.NewUpdate()
	if edit.Description != nil {
		err = validation.ValidateDescription(*edit.Description)
		if err != nil {
			return nil, err
		}
		upd.Set("description", *edit.Description)
	}

	renamed := *a
	if edit.Name != nil && *edit.Name != a.Name {
		name := *edit.Name
		err = validation.ValidateResourceName(name)
		if err != nil {
			return nil, err
		}
		if !strings.EqualFold(path.Ext(name), path.Ext(a.Name)) {
			return nil, fmt.Errorf("artifact name must keep the %q extension: %w", path.Ext(a.Name), apperr.ErrInvalidInput)
		}
		renamed.Name = name
		err = s.moveBlobs(ctx, a, &renamed)
		if err != nil {
			return nil, err
		}
		upd.Set("name", name)
	}

	if upd.IsEmpty() {
		return a, nil
	}
	err = s.artifacts.Update(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	return s.artifacts.Get(ctx, id)
}

func (s *ArtifactService) moveBlobs(ctx context.Context, from, to *model.Artifact) error {
	oldKeys, err := from.Keys()
	if err != nil {
		return err
	}
	newKeys, err := to.Keys()
	if err != nil {
		return err
	}

	contentType := model.DownloadContentType(from.ArtifactType)
	for i, oldKey := range oldKeys {
		body, err := s.storage.Download(ctx, oldKey)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		err = s.storage.Upload(ctx, newKeys[i], body, contentType, to.Name)
		closeErr := body.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			slog.Warn("failed to close blob", "error", closeErr, "key", oldKey)
		}
		err = s.storage.Delete(ctx, oldKey)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetMain makes an image artifact the main image of its listing.
func (s *ArtifactService) SetMain(ctx context.Context, actor *model.User, id string) (*model.Artifact, error) {
	a, err := s.artifacts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.ArtifactType.IsImage() {
		return nil, fmt.Errorf("only images can be the main artifact: %w", apperr.ErrInvalidInput)
	}
	_, err = s.writableListing(ctx, actor, a.ListingID)
	if err != nil {
		return nil, err
	}

	siblings, err := s.artifacts.ListBy(ctx, "listing_id", a.ListingID, store.Filter{
		Equals: map[string]any{"is_main": true},
	})
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sib := range siblings {
		if sib.ID == id {
			continue
		}
		g.Go(func() error {
			return s.artifacts.Update(gctx, sib.ID, store.NewUpdate().Set("is_main", false))
		})
	}
	g.Go(func() error {
		return s.artifacts.Update(gctx, id, store.NewUpdate().Set("is_main", true))
	})
	err = g.Wait()
	if err != nil {
		return nil, err
	}

	a.IsMain = true
	return a, nil
}

func (s *ArtifactService) Delete(ctx context.Context, actor *model.User, id string) error {
	a, err := s.artifacts.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.CanWrite(actor) {
		return fmt.Errorf("cannot delete artifact %s: %w", id, apperr.ErrNotAllowed)
	}
	return s.remove(ctx, a)
}

// DeleteForListing removes every artifact of a listing.
func (s *ArtifactService) DeleteForListing(ctx context.Context, listingID string) error {
	artifacts, err := s.artifacts.ListBy(ctx, "listing_id", listingID, store.Filter{})
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := range artifacts {
		g.Go(func() error {
			return s.remove(gctx, &artifacts[i])
		})
	}
	return g.Wait()
}

// remove deletes the blobs, then the row.
func (s *ArtifactService) remove(ctx context.Context, a *model.Artifact) error {
	keys, err := a.Keys()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			return s.storage.Delete(gctx, key)
		})
	}
	err = g.Wait()
	if err != nil {
		slog.Error("failed to delete artifact blobs", "error", err, "artifact_id", a.ID)
		return err
	}

	err = s.artifacts.Delete(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", a.ID, err)
	}
	slog.Info("artifact deleted", "artifact_id", a.ID, "listing_id", a.ListingID)
	return nil
}

// Download streams one size of an artifact. The caller closes the reader.
func (s *ArtifactService) Download(ctx context.Context, id string, size model.ArtifactSize) (io.ReadCloser, *model.Artifact, error) {
	a, err := s.artifacts.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if size == "" {
		size = model.SizeLarge
	}
	key, err := a.Key(size)
	if err != nil {
		return nil, nil, err
	}

	body, err := s.storage.Download(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("artifact %s has no stored file: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	return body, a, nil
}

func (s *ArtifactService) writableListing(ctx context.Context, actor *model.User, listingID string) (*model.Listing, error) {
	listing, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !listing.CanWrite(actor) {
		return nil, fmt.Errorf("cannot modify listing %s: %w", listingID, apperr.ErrNotAllowed)
	}
	return listing, nil
}
