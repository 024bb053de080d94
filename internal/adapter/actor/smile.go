package actor

import (
	"context"
	"errors"
	"fmt"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/util/actorutil"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

var ErrSwitchNotSupported = errors.New("gateway has no switches")

// SmileActor owns the client of one Smile gateway (P1, Anna or Adam).
type SmileActor struct {
	gatewayActor
	client  plugwise.SmileClient
	variant plugwise.Variant
}

func NewSmileActor(gatewayId string, client plugwise.SmileClient, logger *zap.Logger) *SmileActor {
	act := &SmileActor{
		gatewayActor: newGatewayActor(gatewayId, logger),
		client:       client,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *SmileActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *SmileActor) StartingReceive(ctx actor.Context) {
	state.startingReceive(ctx, state.start, state.stop, state.DefaultReceive)
}

func (state *SmileActor) start(ctx context.Context) error {
	if err := state.client.Connect(ctx); err != nil {
		return err
	}
	variant, err := plugwise.SmileVariant(state.client.Info())
	if err != nil {
		state.stop()
		return err
	}
	state.variant = variant
	return nil
}

func (state *SmileActor) stop() {
	disconnect(state.logger, state.client.Disconnect)
}

func (state *SmileActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("smile@default: ActorHealthRequest")
		ctx.Respond(state.healthResponse())
	case domain.GetGatewayInfoRequest:
		state.logger.Debug("smile@default: GetGatewayInfoRequest")
		info := state.client.Info()
		actorutil.ForRequest(msg).Respond(ctx, domain.GetGatewayInfoResponse{
			GatewayId: state.gatewayId,
			Variant:   state.variant,
			Device:    domain.GatewayDevice(state.gatewayId, "", info.Name, fmt.Sprintf("Smile %s", info.Name), info.Version),
			Scopes:    []domain.Scope{{Name: info.Name}},
		})
	case domain.RefreshRequest:
		state.logger.Debug("smile@default: RefreshRequest")
		runClientTask(&state.gatewayActor, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), callTimeout(msg.Timeout), state.refresh,
			func(err error) domain.RefreshResponse {
				return domain.RefreshResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
			}, state.stop)
	case domain.SetSwitchRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.SetSwitchResponse{ActorResponseMixIn: domain.ErrorResponse(ErrSwitchNotSupported)})
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("smile@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// refresh asks the gateway for a full update and collects the snapshot of
// every device it lists.
func (state *SmileActor) refresh(ctx context.Context) (*domain.RefreshResponse, error) {
	if err := state.client.FullUpdateDevice(ctx); err != nil {
		return nil, err
	}
	devices, err := state.client.GetDevices(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.RefreshResponse{
		Devices:   devices,
		Snapshots: plugwise.CollectSnapshots(state.variant, state.client, devices),
	}, nil
}
