package gateway

import (
	"context"

	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/shopspring/decimal"
)

// The player actions below are shared by the JSON routes and the RPC service.
// Accepted actions push a StateChanged frame to every socket.

// SelectColor parses and applies a color selection.
func (s *Service) SelectColor(ctx context.Context, raw string) (ActionResponse, error) {
	color, err := models.ParseColor(raw)
	if err == nil {
		err = s.game.SelectColor(ctx, color)
	}
	return s.actionResponse(err == nil, err), err
}

// SelectStake applies a stake selection.
func (s *Service) SelectStake(ctx context.Context, amount decimal.Decimal) (ActionResponse, error) {
	err := s.game.SelectStake(ctx, amount)
	return s.actionResponse(err == nil, err), err
}

// PlaceBet turns the selection into the round's bet. A rejected bet is not an
// error; Accepted is false.
func (s *Service) PlaceBet(ctx context.Context) ActionResponse {
	return s.actionResponse(s.game.PlaceBet(ctx), nil)
}

// ResetSelection clears the selection.
func (s *Service) ResetSelection(ctx context.Context) ActionResponse {
	s.game.ResetSelection(ctx)
	return s.actionResponse(true, nil)
}

func (s *Service) actionResponse(accepted bool, err error) ActionResponse {
	if accepted {
		s.broadcastSnapshot(string(MessageTypeStateChanged))
	}
	return ActionResponse{
		Accepted: accepted,
		Error:    errString(err),
		State:    s.Snapshot(),
	}
}
