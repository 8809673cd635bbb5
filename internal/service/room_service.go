package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/repository"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

type roomRepository interface {
	List(ctx context.Context) ([]models.Room, error)
	Create(ctx context.Context, room *models.Room) error
}

// CreateRoomRequest captures fields for registering a room.
type CreateRoomRequest struct {
	ID       string `json:"id" validate:"omitempty,max=64"`
	Code     string `json:"code" validate:"required,max=32"`
	Capacity int    `json:"capacity" validate:"gte=0,lte=10000"`
}

// RoomService manages the rooms considered by free-room lookups.
type RoomService struct {
	repo      roomRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoomService creates a RoomService.
func NewRoomService(repo roomRepository, validate *validator.Validate, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{repo: repo, validator: validate, logger: logger}
}

// List returns every room.
func (s *RoomService) List(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return rooms, nil
}

// Create registers a room. The id defaults to the code so entries can reference rooms by code.
func (s *RoomService) Create(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	room := &models.Room{
		ID:       strings.TrimSpace(req.ID),
		Code:     strings.ToUpper(strings.TrimSpace(req.Code)),
		Capacity: req.Capacity,
	}
	if room.ID == "" {
		room.ID = room.Code
	}
	if err := s.repo.Create(ctx, room); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "room already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	s.logger.Info("room created", zap.String("id", room.ID), zap.String("code", room.Code))
	return room, nil
}
