package actor

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/util/actorutil"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const RELAY_FIELD = "relay"

// StickActor owns the USB stick client and the nodes it loaded at start. Node
// calls run concurrently, each under its own request timeout; the client
// serializes access to the USB port.
type StickActor struct {
	gatewayActor
	client   plugwise.StickClient
	cacheDir string
	nodes    map[string]plugwise.StickNode
	macs     []string
}

func NewStickActor(gatewayId string, client plugwise.StickClient, cacheDir string, logger *zap.Logger) *StickActor {
	act := &StickActor{
		gatewayActor: newGatewayActor(gatewayId, logger),
		client:       client,
		cacheDir:     cacheDir,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func StickCacheFolder(cacheDir, gatewayId string) string {
	return filepath.Join(cacheDir, fmt.Sprintf("plugwisecache-%s", gatewayId))
}

func (state *StickActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *StickActor) StartingReceive(ctx actor.Context) {
	state.startingReceive(ctx, state.start, state.stop, state.DefaultReceive)
}

func (state *StickActor) start(ctx context.Context) error {
	state.client.SetCacheFolder(StickCacheFolder(state.cacheDir, state.gatewayId))
	if err := state.client.Connect(ctx); err != nil {
		return err
	}
	if err := state.client.Initialize(ctx); err != nil {
		state.stop()
		return err
	}
	if err := state.client.Setup(ctx, true, false); err != nil {
		state.stop()
		return err
	}
	state.loadNodes(ctx)
	return nil
}

// loadNodes loads every available node. Nodes that fail to load are skipped.
func (state *StickActor) loadNodes(ctx context.Context) {
	state.nodes = map[string]plugwise.StickNode{}
	state.macs = nil
	for mac, node := range state.client.Nodes() {
		if !node.Available() {
			state.logger.Info("node not available", zap.String("mac", mac))
			continue
		}
		if err := node.Load(ctx); err != nil {
			state.logger.Warn("node load failed", zap.String("mac", mac), zap.Error(err))
			continue
		}
		state.nodes[mac] = node
		state.macs = append(state.macs, mac)
	}
	slices.Sort(state.macs)
	state.logger.Info("stick nodes loaded", zap.Strings("macs", state.macs))
}

func (state *StickActor) stop() {
	disconnect(state.logger, state.client.Disconnect)
}

func (state *StickActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("stick@default: ActorHealthRequest")
		ctx.Respond(state.healthResponse())
	case domain.GetGatewayInfoRequest:
		state.logger.Debug("stick@default: GetGatewayInfoRequest")
		scopes := make([]domain.Scope, 0, len(state.macs))
		for _, mac := range state.macs {
			scopes = append(scopes, domain.Scope{Id: mac, Name: state.nodes[mac].Name()})
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.GetGatewayInfoResponse{
			GatewayId: state.gatewayId,
			Variant:   plugwise.StickVariant{},
			Device:    domain.GatewayDevice(state.gatewayId, "", "Stick", "Stick", ""),
			Scopes:    scopes,
		})
	case domain.RefreshRequest:
		state.logger.Debug("stick@default: RefreshRequest", zap.String("scope", msg.Scope))
		node, ok := state.nodes[msg.Scope]
		if !ok {
			actorutil.ForRequest(msg).Respond(ctx, domain.RefreshResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("unknown node %q", msg.Scope)),
			})
			return
		}
		runConcurrentTask(&state.gatewayActor, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), callTimeout(msg.Timeout),
			func(c context.Context) (*domain.RefreshResponse, error) {
				data, err := node.Update(c)
				if err != nil {
					return nil, err
				}
				return &domain.RefreshResponse{
					Devices:   []plugwise.DeviceRef{{Id: node.Mac(), Name: node.Name()}},
					Snapshots: plugwise.SnapshotSet{node.Mac(): data},
				}, nil
			},
			func(err error) domain.RefreshResponse {
				return domain.RefreshResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
			})
	case domain.SetSwitchRequest:
		state.logger.Debug("stick@default: SetSwitchRequest", zap.String("node", msg.DeviceId), zap.Bool("on", msg.On))
		node, ok := state.nodes[msg.DeviceId]
		if !ok || msg.Field != RELAY_FIELD {
			actorutil.ForRequest(msg).Respond(ctx, domain.SetSwitchResponse{
				ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("no switch %q on node %q", msg.Field, msg.DeviceId)),
			})
			return
		}
		runConcurrentTask(&state.gatewayActor, ctx, actorutil.ForRequest(msg).ReplyTo(ctx), callTimeout(msg.Timeout),
			func(c context.Context) (*domain.SetSwitchResponse, error) {
				if err := node.SetRelay(c, msg.On); err != nil {
					return nil, err
				}
				return &domain.SetSwitchResponse{}, nil
			},
			func(err error) domain.SetSwitchResponse {
				return domain.SetSwitchResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
			})
	case backgroundTaskResult:
		state.deliverResult(ctx, msg)
	case *actor.Stopping:
		state.stop()
	default:
		state.logger.Debug("stick@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
