package gamerpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/mcdev12/colorclash/go/internal/gateway"
	"github.com/mcdev12/colorclash/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeActions struct {
	balance decimal.Decimal
	color   string
	stake   decimal.Decimal
	bets    int
}

func (f *fakeActions) Snapshot() gateway.Snapshot {
	return gateway.Snapshot{Balance: f.balance, CurrentRound: 3}
}

func (f *fakeActions) SelectColor(_ context.Context, color string) (gateway.ActionResponse, error) {
	if _, err := models.ParseColor(color); err != nil {
		return gateway.ActionResponse{Error: err.Error(), State: f.Snapshot()}, err
	}
	f.color = color
	return gateway.ActionResponse{Accepted: true, State: f.Snapshot()}, nil
}

func (f *fakeActions) SelectStake(_ context.Context, amount decimal.Decimal) (gateway.ActionResponse, error) {
	if !amount.IsPositive() {
		err := errors.New("invalid stake")
		return gateway.ActionResponse{Error: err.Error(), State: f.Snapshot()}, err
	}
	f.stake = amount
	return gateway.ActionResponse{Accepted: true, State: f.Snapshot()}, nil
}

func (f *fakeActions) PlaceBet(context.Context) gateway.ActionResponse {
	f.bets++
	return gateway.ActionResponse{Accepted: f.bets == 1, State: f.Snapshot()}
}

func (f *fakeActions) ResetSelection(context.Context) gateway.ActionResponse {
	f.color = ""
	return gateway.ActionResponse{Accepted: true, State: f.Snapshot()}
}

func newServer(t *testing.T, actions Actions) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle(NewGameServiceHandler(NewService(actions)))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestDescriptorRegistered(t *testing.T) {
	d, err := protoregistry.GlobalFiles.FindDescriptorByName(GameServiceName)
	require.NoError(t, err)
	svc, ok := d.(protoreflect.ServiceDescriptor)
	require.True(t, ok)
	require.Equal(t, 5, svc.Methods().Len())

	m := svc.Methods().ByName("SelectStake")
	require.NotNil(t, m)
	assert.Equal(t, protoreflect.FullName("google.protobuf.StringValue"), m.Input().FullName())
	assert.Equal(t, protoreflect.FullName("google.protobuf.Struct"), m.Output().FullName())
}

func TestGetState(t *testing.T) {
	url := newServer(t, &fakeActions{balance: decimal.NewFromInt(100)})
	client := connect.NewClient[emptypb.Empty, structpb.Struct](http.DefaultClient, url+GameServiceGetStateProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	fields := resp.Msg.GetFields()
	assert.Equal(t, "100", fields["balance"].GetStringValue())
	assert.Equal(t, float64(3), fields["current_round"].GetNumberValue())
}

func TestSelectAndPlaceBet(t *testing.T) {
	ctx := context.Background()
	actions := &fakeActions{balance: decimal.NewFromInt(100)}
	url := newServer(t, actions)

	selectColor := connect.NewClient[wrapperspb.StringValue, structpb.Struct](http.DefaultClient, url+GameServiceSelectColorProcedure)
	resp, err := selectColor.CallUnary(ctx, connect.NewRequest(wrapperspb.String("green")))
	require.NoError(t, err)
	assert.True(t, resp.Msg.GetFields()["accepted"].GetBoolValue())
	assert.Equal(t, "green", actions.color)

	selectStake := connect.NewClient[wrapperspb.StringValue, structpb.Struct](http.DefaultClient, url+GameServiceSelectStakeProcedure)
	_, err = selectStake.CallUnary(ctx, connect.NewRequest(wrapperspb.String("5")))
	require.NoError(t, err)
	assert.True(t, actions.stake.Equal(decimal.NewFromInt(5)))

	placeBet := connect.NewClient[emptypb.Empty, structpb.Struct](http.DefaultClient, url+GameServicePlaceBetProcedure)
	resp, err = placeBet.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	assert.True(t, resp.Msg.GetFields()["accepted"].GetBoolValue())

	resp, err = placeBet.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err, "a rejected bet is a normal reply")
	assert.False(t, resp.Msg.GetFields()["accepted"].GetBoolValue())
	require.NotNil(t, resp.Msg.GetFields()["state"].GetStructValue())

	reset := connect.NewClient[emptypb.Empty, structpb.Struct](http.DefaultClient, url+GameServiceResetSelectionProcedure)
	_, err = reset.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	require.NoError(t, err)
	assert.Empty(t, actions.color)
}

func TestInvalidSelections(t *testing.T) {
	ctx := context.Background()
	url := newServer(t, &fakeActions{})

	selectColor := connect.NewClient[wrapperspb.StringValue, structpb.Struct](http.DefaultClient, url+GameServiceSelectColorProcedure)
	_, err := selectColor.CallUnary(ctx, connect.NewRequest(wrapperspb.String("purple")))
	require.Error(t, err)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	selectStake := connect.NewClient[wrapperspb.StringValue, structpb.Struct](http.DefaultClient, url+GameServiceSelectStakeProcedure)
	_, err = selectStake.CallUnary(ctx, connect.NewRequest(wrapperspb.String("five")))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = selectStake.CallUnary(ctx, connect.NewRequest(wrapperspb.String("-1")))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}
