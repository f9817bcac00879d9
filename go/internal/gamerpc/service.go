// Package gamerpc serves the player actions as a Connect GameService, next to
// the JSON routes and WebSocket of package gateway.
package gamerpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/mcdev12/colorclash/go/internal/gateway"
	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Actions defines what the RPC layer needs from the gateway
type Actions interface {
	Snapshot() gateway.Snapshot
	SelectColor(ctx context.Context, color string) (gateway.ActionResponse, error)
	SelectStake(ctx context.Context, amount decimal.Decimal) (gateway.ActionResponse, error)
	PlaceBet(ctx context.Context) gateway.ActionResponse
	ResetSelection(ctx context.Context) gateway.ActionResponse
}

// Service implements GameService
type Service struct {
	actions Actions
}

// NewService creates a new game RPC service
func NewService(actions Actions) *Service {
	return &Service{actions: actions}
}

// GetState returns the current Snapshot
func (s *Service) GetState(_ context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return respond(s.actions.Snapshot())
}

// SelectColor selects the color to bet on
func (s *Service) SelectColor(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	resp, err := s.actions.SelectColor(ctx, req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return respond(resp)
}

// SelectStake selects the stake; the value is a decimal string such as "5"
func (s *Service) SelectStake(ctx context.Context, req *connect.Request[wrapperspb.StringValue]) (*connect.Response[structpb.Struct], error) {
	amount, err := decimal.NewFromString(req.Msg.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid stake %q: %w", req.Msg.GetValue(), err))
	}
	resp, err := s.actions.SelectStake(ctx, amount)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return respond(resp)
}

// PlaceBet places the selected bet. A rejected bet answers accepted=false.
func (s *Service) PlaceBet(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return respond(s.actions.PlaceBet(ctx))
}

// ResetSelection clears the color and stake selection
func (s *Service) ResetSelection(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	return respond(s.actions.ResetSelection(ctx))
}

func respond(v any) (*connect.Response[structpb.Struct], error) {
	msg, err := toStruct(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// toStruct carries v's JSON form, so RPC and HTTP clients see the same fields.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("convert reply: %w", err)
	}
	return out, nil
}

// NewGameServiceHandler builds an HTTP handler for GameService. It returns the
// path to mount it on.
func NewGameServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	getState := connect.NewUnaryHandler(
		GameServiceGetStateProcedure,
		svc.GetState,
		connect.WithSchema(gameServiceMethods.ByName("GetState")),
		connect.WithIdempotency(connect.IdempotencyNoSideEffects),
		connect.WithHandlerOptions(opts...),
	)
	selectColor := connect.NewUnaryHandler(
		GameServiceSelectColorProcedure,
		svc.SelectColor,
		connect.WithSchema(gameServiceMethods.ByName("SelectColor")),
		connect.WithHandlerOptions(opts...),
	)
	selectStake := connect.NewUnaryHandler(
		GameServiceSelectStakeProcedure,
		svc.SelectStake,
		connect.WithSchema(gameServiceMethods.ByName("SelectStake")),
		connect.WithHandlerOptions(opts...),
	)
	placeBet := connect.NewUnaryHandler(
		GameServicePlaceBetProcedure,
		svc.PlaceBet,
		connect.WithSchema(gameServiceMethods.ByName("PlaceBet")),
		connect.WithHandlerOptions(opts...),
	)
	resetSelection := connect.NewUnaryHandler(
		GameServiceResetSelectionProcedure,
		svc.ResetSelection,
		connect.WithSchema(gameServiceMethods.ByName("ResetSelection")),
		connect.WithHandlerOptions(opts...),
	)

	return "/" + GameServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case GameServiceGetStateProcedure:
			getState.ServeHTTP(w, r)
		case GameServiceSelectColorProcedure:
			selectColor.ServeHTTP(w, r)
		case GameServiceSelectStakeProcedure:
			selectStake.ServeHTTP(w, r)
		case GameServicePlaceBetProcedure:
			placeBet.ServeHTTP(w, r)
		case GameServiceResetSelectionProcedure:
			resetSelection.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
