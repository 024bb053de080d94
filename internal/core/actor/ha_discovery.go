package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/plugwise2mqtt/internal/config"
	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

var ErrMQTTNotHealthy = errors.New("MQTT actor is not healthy")

// HADiscoveryActor announces the bridge and, as coordinators become ready,
// their entities to Home Assistant.
type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	stash     *actorutil.Stash
	mqttActor *actor.PID
	announced map[string]bool

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		announced: map[string]bool{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(ErrMQTTNotHealthy)
		}
		bridgeDevice := domain.BridgeDevice(state.config.MQTT.BaseTopic)
		ctx.Request(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: domain.BridgeSensors(bridgeDevice),
		})
		state.behavior.Become(state.ReadyReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) ReadyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.EntitiesReadyEvent:
		if state.announced[msg.CoordinatorId] {
			return
		}
		state.logger.Info("hadiscovery@ready announcing entities", zap.String("coordinator", msg.CoordinatorId),
			zap.Int("sensors", len(msg.Sensors)), zap.Int("switches", len(msg.Switches)))
		ctx.Request(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:  msg.Sensors,
			Switches: msg.Switches,
		})
		state.announced[msg.CoordinatorId] = true
	case domain.PublishDiscoveryResponse:
		if msg.HasResponseError() {
			state.logger.Error("hadiscovery@ready publish failed", zap.Error(msg.GetResponseError()))
		}
	default:
		state.logger.Debug("hadiscovery@ready: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}
