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
	"github.com/robolist/robolist/internal/store"
	"github.com/robolist/robolist/internal/validation"
)

var robotNameUnique = store.Unique{"user_id", "name"}

type RobotService struct {
	robots  *repository.Repository[model.Robot]
	classes *RobotClassService
}

func NewRobotService(s store.Store, classes *RobotClassService) *RobotService {
	return &RobotService{
		robots:  repository.New[model.Robot](s, model.KindRobot),
		classes: classes,
	}
}

// RobotInfo is a robot with the name of its class.
type RobotInfo struct {
	ID          string `json:"id"`
	RobotName   string `json:"robot_name"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
	ClassName   string `json:"class_name"`
}

func robotInfo(r *model.Robot, rc *model.RobotClass) *RobotInfo {
	return &RobotInfo{
		ID:          r.ID,
		RobotName:   r.Name,
		Description: r.Description,
		UserID:      r.UserID,
		ClassName:   rc.Name,
	}
}

// Add registers a robot of the named class. Robot names are unique per owner.
func (s *RobotService) Add(ctx context.Context, actor *model.User, name, className, description string) (*RobotInfo, error) {
	err := validation.ValidateResourceName(name)
	if err != nil {
		return nil, err
	}
	err = validation.ValidateDescription(description)
	if err != nil {
		return nil, err
	}
	rc, err := s.classes.GetByName(ctx, className)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	robot := &model.Robot{
		ID:          uuid.New().String(),
		UserID:      actor.ID,
		ClassID:     rc.ID,
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.robots.Add(ctx, robot, robotNameUnique)
	if errors.Is(err, apperr.ErrConflict) {
		return nil, fmt.Errorf("robot %q already exists: %w", name, apperr.ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add robot: %w", err)
	}
	slog.Info("robot created", "robot_id", robot.ID, "class_id", rc.ID, "user_id", actor.ID)
	return robotInfo(robot, rc), nil
}

// List returns every robot, or only those of userID when it is set.
func (s *RobotService) List(ctx context.Context, userID string) ([]RobotInfo, error) {
	var (
		robots []model.Robot
		err    error
	)
	if userID == "" {
		robots, err = s.robots.List(ctx, store.Filter{})
	} else {
		robots, err = s.robots.ListBy(ctx, "user_id", userID, store.Filter{})
	}
	if err != nil {
		return nil, err
	}
	slices.SortFunc(robots, func(a, b model.Robot) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})

	classNames := map[string]string{}
	out := make([]RobotInfo, 0, len(robots))
	for i := range robots {
		r := &robots[i]
		name, ok := classNames[r.ClassID]
		if !ok {
			rc, err := s.classes.GetByID(ctx, r.ClassID)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			if rc != nil {
				name = rc.Name
			}
			classNames[r.ClassID] = name
		}
		out = append(out, RobotInfo{
			ID:          r.ID,
			RobotName:   r.Name,
			Description: r.Description,
			UserID:      r.UserID,
			ClassName:   name,
		})
	}
	return out, nil
}

// GetByID returns one of the actor's robots.
func (s *RobotService) GetByID(ctx context.Context, actor *model.User, id string) (*RobotInfo, error) {
	r, err := s.robots.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.UserID != actor.ID {
		return nil, fmt.Errorf("robot %q not found: %w", id, apperr.ErrNotFound)
	}
	return s.withClass(ctx, r)
}

// GetByName returns the actor's robot with the given name.
func (s *RobotService) GetByName(ctx context.Context, actor *model.User, name string) (*RobotInfo, error) {
	r, err := s.byName(ctx, actor, name)
	if err != nil {
		return nil, err
	}
	return s.withClass(ctx, r)
}

type RobotEdit struct {
	NewName     *string `json:"new_robot_name"`
	Description *string `json:"new_description"`
}

func (s *RobotService) Update(ctx context.Context, actor *model.User, name string, edit RobotEdit) (*RobotInfo, error) {
	r, err := s.byName(ctx, actor, name)
	if err != nil {
		return nil, err
	}

	upd := store.NewUpdate()
	if edit.NewName != nil && *edit.NewName != r.Name {
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
	if !upd.IsEmpty() {
		upd.Set("updated_at", time.Now().Unix())
		err = s.robots.Update(ctx, r.ID, upd, robotNameUnique)
		if errors.Is(err, apperr.ErrConflict) {
			return nil, fmt.Errorf("robot %q already exists: %w", *edit.NewName, apperr.ErrConflict)
		}
		if err != nil {
			return nil, err
		}
	}

	r, err = s.robots.Get(ctx, r.ID)
	if err != nil {
		return nil, err
	}
	return s.withClass(ctx, r)
}

func (s *RobotService) Delete(ctx context.Context, actor *model.User, name string) error {
	r, err := s.byName(ctx, actor, name)
	if err != nil {
		return err
	}
	err = s.robots.Delete(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("failed to delete robot %s: %w", r.ID, err)
	}
	slog.Info("robot deleted", "robot_id", r.ID, "user_id", actor.ID)
	return nil
}

func (s *RobotService) byName(ctx context.Context, actor *model.User, name string) (*model.Robot, error) {
	robots, err := s.robots.ListBy(ctx, "user_id", actor.ID, store.Filter{
		Equals: map[string]any{"name": name},
	})
	if err != nil {
		return nil, err
	}
	if len(robots) == 0 {
		return nil, fmt.Errorf("robot %q not found: %w", name, apperr.ErrNotFound)
	}
	return &robots[0], nil
}

func (s *RobotService) withClass(ctx context.Context, r *model.Robot) (*RobotInfo, error) {
	rc, err := s.classes.GetByID(ctx, r.ClassID)
	if err != nil {
		return nil, fmt.Errorf("robot class of robot %q: %w", r.Name, err)
	}
	return robotInfo(r, rc), nil
}
