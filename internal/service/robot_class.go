package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/robolist/robolist/internal/apperr"
	"github.com/robolist/robolist/internal/model"
	"github.com/robolist/robolist/internal/repository"
	"github.com/robolist/robolist/internal/storage"
	"github.com/robolist/robolist/internal/store"
	"github.com/robolist/robolist/internal/validation"
	"golang.org/x/sync/errgroup"
)

var classNameUnique = store.Unique{"name"}

// PresignedUpload is a URL the client PUTs a file to with ContentType.
type PresignedUpload struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// BlobDownload is a download URL with the stored checksum.
type BlobDownload struct {
	URL     string `json:"url"`
	MD5Hash string `json:"md5_hash"`
}

type RobotClassService struct {
	classes       *repository.Repository[model.RobotClass]
	storage       storage.Storage
	presignExpiry time.Duration
}

func NewRobotClassService(s store.Store, blobs storage.Storage, presignExpiry time.Duration) *RobotClassService {
	if presignExpiry <= 0 {
		presignExpiry = time.Hour
	}
	return &RobotClassService{
		classes:       repository.New[model.RobotClass](s, model.KindRobotClass),
		storage:       blobs,
		presignExpiry: presignExpiry,
	}
}

func (s *RobotClassService) Add(ctx context.Context, actor *model.User, name, description string, metadata *model.RobotClassMetadata) (*model.RobotClass, error) {
	err := validation.ValidateResourceName(name)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateDescription(description)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateMetadata(metadata)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	rc := &model.RobotClass{
		ID:          uuid.New().String(),
		UserID:      actor.ID,
		Name:        name,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.classes.Add(ctx, rc, classNameUnique)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("robot class %q already exists: %w", name, apperr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add robot class: %w", err)
	}
	slog.Info("robot class created", "class_id", rc.ID, "name", name)
	return rc, nil
}

// List returns every robot class, by name.
func (s *RobotClassService) List(ctx context.Context) ([]model.RobotClass, error) {
	classes, err := s.classes.List(ctx, store.Filter{})
	if err != nil {
		return nil, err
	}
	sortClasses(classes)
	return classes, nil
}

func (s *RobotClassService) ListByUser(ctx context.Context, userID string) ([]model.RobotClass, error) {
	classes, err := s.classes.ListBy(ctx, "user_id", userID, store.Filter{})
	if err != nil {
		return nil, err
	}
	sortClasses(classes)
	return classes, nil
}

func sortClasses(classes []model.RobotClass) {
	slices.SortFunc(classes, func(a, b model.RobotClass) int {
		return cmp.Compare(a.Name, b.Name)
	})
}

func (s *RobotClassService) GetByName(ctx context.Context, name string) (*model.RobotClass, error) {
	rc, err := s.classes.FindBy(ctx, "name", name)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		return nil, fmt.Errorf("robot class %q not found: %w", name, apperr.ErrNotFound)
	}
	return rc, nil
}

func (s *RobotClassService) GetByID(ctx context.Context, id string) (*model.RobotClass, error) {
	return s.classes.Get(ctx, id)
}

type RobotClassEdit struct {
	NewName     *string                   `json:"new_class_name"`
	Description *string                   `json:"new_description"`
	Metadata    *model.RobotClassMetadata `json:"new_metadata"`
}

func (s *RobotClassService) Update(ctx context.Context, actor *model.User, name string, edit RobotClassEdit) (*model.RobotClass, error) {
	rc, err := s.owned(ctx, actor, name)
	if err != nil {
		return nil, err
	}

	upd := store.NewUpdate()
	if edit.NewName != nil && *edit.NewName != rc.Name {
		err = validation.ValidateResourceName(*edit.NewName)
		if err != nil {
			return nil, err
		}
		upd.Set("name", *edit.NewName)
	}
	if edit.Description != nil {
		err = validation.ValidateDescription(*edit.Description)
		if err != nil {
			return nil, err
		}
		upd.Set("description", *edit.Description)
	}
	if edit.Metadata != nil {
		err = validation.ValidateMetadata(edit.Metadata)
		if err != nil {
			return nil, err
		}
		upd.Set("metadata", edit.Metadata)
	}
	if upd.IsEmpty() {
		return rc, nil
	}

	upd.Set("updated_at", time.Now().Unix())
	err = s.classes.Update(ctx, rc.ID, upd, classNameUnique)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("robot class %q already exists: %w", *edit.NewName, apperr.ErrConflict)
	}
	if err != nil {
		return nil, err
	}
	return s.classes.Get(ctx, rc.ID)
}

// Delete removes the class with its URDF bundle and kernel image.
func (s *RobotClassService) Delete(ctx context.Context, actor *model.User, name string) error {
	rc, err := s.owned(ctx, actor, name)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range []string{rc.URDFKey(), rc.KernelKey()} {
		g.Go(func() error {
			return s.storage.Delete(gctx, key)
		})
	}
	err = g.Wait()
	if err != nil {
		slog.Error("failed to delete robot class blobs", "error", err, "class_id", rc.ID)
		return err
	}

	err = s.classes.Delete(ctx, rc.ID)
	if err != nil {
		return fmt.Errorf("failed to delete robot class %s: %w", rc.ID, err)
	}
	slog.Info("robot class deleted", "class_id", rc.ID, "name", rc.Name)
	return nil
}

// UploadURDF presigns an upload of the class URDF bundle, which must be a
// compressed archive.
func (s *RobotClassService) UploadURDF(ctx context.Context, actor *model.User, name, filename, contentType string) (*PresignedUpload, error) {
	rc, err := s.owned(ctx, actor, name)
	if err != nil {
		return nil, err
	}

	t, err := model.ClassifyArtifact(contentType, "")
	if err != nil {
		return nil, err
	}
	if !t.IsCompressed() {
		return nil, fmt.Errorf("urdf bundle must be a tgz or zip archive, got %s: %w", contentType, apperr.ErrInvalidInput)
	}
	return s.presignUpload(ctx, rc.URDFKey(), filename, contentType)
}

func (s *RobotClassService) DownloadURDF(ctx context.Context, name string) (*BlobDownload, error) {
	rc, err := s.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.presignDownload(ctx, rc.URDFKey(), "urdf")
}

// UploadKernel presigns an upload of the class kernel image.
func (s *RobotClassService) UploadKernel(ctx context.Context, actor *model.User, name, filename, contentType string) (*PresignedUpload, error) {
	rc, err := s.owned(ctx, actor, name)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return s.presignUpload(ctx, rc.KernelKey(), filename, contentType)
}

func (s *RobotClassService) DownloadKernel(ctx context.Context, name string) (*BlobDownload, error) {
	rc, err := s.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.presignDownload(ctx, rc.KernelKey(), "kernel")
}

func (s *RobotClassService) presignUpload(ctx context.Context, key, filename, contentType string) (*PresignedUpload, error) {
	if filename == "" {
		return nil, fmt.Errorf("filename must be provided: %w", apperr.ErrInvalidInput)
	}
	url, err := s.storage.PresignUpload(ctx, key, contentType, filename, s.presignExpiry)
	if err != nil {
		return nil, err
	}
	return &PresignedUpload{URL: url, ContentType: contentType}, nil
}

func (s *RobotClassService) presignDownload(ctx context.Context, key, what string) (*BlobDownload, error) {
	hash, err := s.storage.Hash(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("no %s uploaded for this robot class: %w", what, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	url, err := s.storage.PresignDownload(ctx, key, s.presignExpiry)
	if err != nil {
		return nil, err
	}
	return &BlobDownload{URL: url, MD5Hash: hash}, nil
}

func (s *RobotClassService) owned(ctx context.Context, actor *model.User, name string) (*model.RobotClass, error) {
	rc, err := s.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if rc.UserID != actor.ID && !actor.IsAdmin() {
		return nil, fmt.Errorf("you are not the owner of robot class %q: %w", name, apperr.ErrNotAllowed)
	}
	return rc, nil
}
