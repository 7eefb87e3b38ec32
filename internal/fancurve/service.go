package fancurve

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/nerrad567/airsense-core/internal/location"
)

// RoomLookup confirms a room exists and lists what its sensors measure.
type RoomLookup interface {
	GetRoom(ctx context.Context, id int64) (*location.Room, error)
	GetRoomParameters(ctx context.Context, roomID int64) ([]string, error)
}

// Service reads and updates curves for the admin API.
type Service struct {
	repo  Repository
	rooms RoomLookup
}

// NewService creates a curve service.
func NewService(repo Repository, rooms RoomLookup) *Service {
	return &Service{repo: repo, rooms: rooms}
}

// checkTarget returns location.ErrRoomNotFound for unknown rooms and
// ErrUnknownParameter when none of the room's sensors measures parameter.
func (s *Service) checkTarget(ctx context.Context, roomID int64, parameter string) error {
	if _, err := s.rooms.GetRoom(ctx, roomID); err != nil {
		return err
	}
	params, err := s.rooms.GetRoomParameters(ctx, roomID)
	if err != nil {
		return err
	}
	if !slices.Contains(params, parameter) {
		return fmt.Errorf("%w: %q", ErrUnknownParameter, parameter)
	}
	return nil
}

// Get returns the curve for a room and parameter, provisioning DefaultCurve
// when none exists. Only parameters measured in the room are accepted, so
// arbitrary names never reach the settings table.
func (s *Service) Get(ctx context.Context, roomID int64, parameter string) (*Curve, error) {
	if err := s.checkTarget(ctx, roomID, parameter); err != nil {
		return nil, err
	}

	curve, err := s.repo.GetCurve(ctx, roomID, parameter)
	if err == nil {
		return curve, nil
	}
	if !errors.Is(err, ErrCurveNotFound) {
		return nil, err
	}

	if err := s.repo.InsertCurveIfAbsent(ctx, roomID, parameter, DefaultCurve()); err != nil {
		return nil, fmt.Errorf("provisioning default curve: %w", err)
	}
	// Read back: a concurrent first read may have won the insert.
	return s.repo.GetCurve(ctx, roomID, parameter)
}

// Update validates and stores a curve. Returns ErrInvalidCurve,
// location.ErrRoomNotFound or ErrUnknownParameter on bad input.
func (s *Service) Update(ctx context.Context, roomID int64, parameter string, curve Curve) error {
	if err := Validate(curve); err != nil {
		return err
	}
	if err := s.checkTarget(ctx, roomID, parameter); err != nil {
		return err
	}
	return s.repo.UpsertCurve(ctx, roomID, parameter, curve)
}
