package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hivelearn/relay/internal/quota/domain"
)

type service struct {
	ledger domain.Ledger
}

// Service exposes quota inspection and administration on top of the ledger.
type Service interface {
	Get(ctx context.Context, tenantID uuid.UUID) (domain.Quota, error)
	SetLimits(ctx context.Context, tenantID uuid.UUID, l domain.Limits) error
}

func New(ledger domain.Ledger) Service {
	return &service{ledger: ledger}
}

func (s *service) Get(ctx context.Context, tenantID uuid.UUID) (domain.Quota, error) {
	return s.ledger.Get(ctx, tenantID)
}

func (s *service) SetLimits(ctx context.Context, tenantID uuid.UUID, l domain.Limits) error {
	if l.Daily < 0 || l.Monthly < 0 {
		return errors.New("limits must be zero or positive")
	}
	return s.ledger.SetLimits(ctx, tenantID, l)
}
