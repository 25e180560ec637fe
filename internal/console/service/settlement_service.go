package service

import (
	"context"
	"log/slog"

	"github.com/switchdesk-settlements-console/internal/clients/settlements"
	"github.com/switchdesk-settlements-console/internal/domain/settlement"
)

// SettlementAdminServiceImpl implements the SettlementAdminService interface.
// It is a thin passthrough to the switch's settlement service.
type SettlementAdminServiceImpl struct {
	logger  *slog.Logger
	gateway SettlementGateway
}

// NewSettlementAdminService creates a new settlement administration service
func NewSettlementAdminService(logger *slog.Logger, gateway SettlementGateway) SettlementAdminService {
	return &SettlementAdminServiceImpl{
		logger:  logger,
		gateway: gateway,
	}
}

func (s *SettlementAdminServiceImpl) GetSettlement(ctx context.Context, id int64) (*settlement.Settlement, error) {
	return s.gateway.GetSettlement(ctx, id)
}

func (s *SettlementAdminServiceImpl) ListSettlements(ctx context.Context, filter settlements.ListFilter) ([]settlement.Settlement, error) {
	return s.gateway.ListSettlements(ctx, filter)
}

func (s *SettlementAdminServiceImpl) CreateSettlement(ctx context.Context, reason string, windowIDs []int64) (*settlement.Settlement, error) {
	stl, err := s.gateway.CreateSettlement(ctx, reason, windowIDs)
	if err != nil {
		s.logger.Error("Failed to create settlement", "window_ids", windowIDs, "error", err)
		return nil, err
	}

	s.logger.Info("Settlement created", "settlement_id", stl.ID, "window_ids", windowIDs)
	return stl, nil
}

func (s *SettlementAdminServiceImpl) ListWindows(ctx context.Context, state string) ([]settlement.Window, error) {
	return s.gateway.ListWindows(ctx, state)
}

func (s *SettlementAdminServiceImpl) CloseWindow(ctx context.Context, windowID int64, reason string) (*settlement.Window, error) {
	win, err := s.gateway.CloseWindow(ctx, windowID, reason)
	if err != nil {
		s.logger.Error("Failed to close settlement window", "window_id", windowID, "error", err)
		return nil, err
	}

	s.logger.Info("Settlement window closed", "window_id", windowID)
	return win, nil
}
