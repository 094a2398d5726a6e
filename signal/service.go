package signal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

var ErrInvalid = errors.New("signal: invalid input")

// Store is the persistence the service needs; *Repository implements it.
type Store interface {
	List(ctx context.Context, claimID string, onlyOpen bool) ([]Record, error)
	Create(ctx context.Context, params CreateParams) (Record, error)
	Resolve(ctx context.Context, signalID, actorID string) (Record, error)
}

type Service struct {
	store  Store
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

func (s *Service) List(ctx context.Context, claimID string, onlyOpen bool) ([]Record, error) {
	if claimID == "" {
		return nil, fmt.Errorf("%w: missing claim id", ErrInvalid)
	}
	return s.store.List(ctx, claimID, onlyOpen)
}

// Raise stores a signal produced by the detector.
func (s *Service) Raise(ctx context.Context, params CreateParams) (Record, error) {
	params.Kind = strings.TrimSpace(params.Kind)
	params.Severity = Severity(strings.ToLower(string(params.Severity)))
	switch {
	case params.ClaimID == "":
		return Record{}, fmt.Errorf("%w: missing claim id", ErrInvalid)
	case params.Kind == "":
		return Record{}, fmt.Errorf("%w: missing kind", ErrInvalid)
	case !params.Severity.Valid():
		return Record{}, fmt.Errorf("%w: unknown severity %q", ErrInvalid, params.Severity)
	}

	rec, err := s.store.Create(ctx, params)
	if err != nil {
		return Record{}, err
	}
	if rec.Severity == SeverityCritical {
		s.logger.Warn("critical signal raised", zap.String("claim_id", rec.ClaimID), zap.String("signal_id", rec.ID), zap.String("kind", rec.Kind))
	}
	return rec, nil
}

func (s *Service) Resolve(ctx context.Context, signalID, actorID string) (Record, error) {
	if signalID == "" {
		return Record{}, fmt.Errorf("%w: missing signal id", ErrInvalid)
	}
	rec, err := s.store.Resolve(ctx, signalID, actorID)
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("signal resolved", zap.String("claim_id", rec.ClaimID), zap.String("signal_id", rec.ID))
	return rec, nil
}
