package actor

import (
	"fmt"
	"slices"
	"strings"
	"time"

	adactor "github.com/berfenger/plugwise2mqtt/internal/adapter/actor"
	"github.com/berfenger/plugwise2mqtt/internal/config"
	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/metrics"
	. "github.com/berfenger/plugwise2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const (
	GATEWAY_INFO_TIMEOUT     = 5 * time.Second
	GATEWAY_INFO_RETRY_DELAY = 5 * time.Second
	HEALTH_CHECK_TIMEOUT     = 500 * time.Millisecond
)

type MQTTActorProvider func(*eventstream.EventStream) *adactor.MQTTActor

// GatewayActorProvider builds the actor that owns the client of a gateway.
type GatewayActorProvider func(config.GatewayConfig) actor.Actor

type MasterOfPuppetsActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	currentHealthCheck   healthCheckResult
	eventStream          *eventstream.EventStream
	scheduler            *scheduler.TimerScheduler
	mqttActor            *actor.PID
	haDiscoveryActor     *actor.PID
	gatewayActors        map[string]*actor.PID
	coordinators         map[string]*actor.PID
	statuses             map[string]domain.CoordinatorStatus
	switchCoordinators   map[string]string
	gatewayActorProvider GatewayActorProvider
	mqttActorProvider    MQTTActorProvider
	metrics              *metrics.Collector
	logger               *zap.Logger
}

type healthCheckResult struct {
	expected       int
	unhealthy      []string
	checksReceived int
	respondTo      *actor.PID
}

type retryGatewayInfo struct {
	GatewayId string
}

// MasterProps spawns the master under a backoff strategy. The master
// supervises every other actor with it, so failing gateways, MQTT sessions and
// coordinators that are not ready are restarted with a growing delay.
func MasterProps(config config.Config, gatewayActorProvider GatewayActorProvider, mqttActorProvider MQTTActorProvider,
	collector *metrics.Collector, logger *zap.Logger) *actor.Props {
	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
	return actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(config, gatewayActorProvider, mqttActorProvider, collector, logger)
	}, actor.WithSupervisor(supervisor))
}

func NewMasterOfPuppetsActor(config config.Config, gatewayActorProvider GatewayActorProvider, mqttActorProvider MQTTActorProvider,
	collector *metrics.Collector, logger *zap.Logger) *MasterOfPuppetsActor {
	act := &MasterOfPuppetsActor{
		config:               config,
		behavior:             actor.NewBehavior(),
		stash:                &Stash{},
		logger:               ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:          eventstream.NewEventStream(),
		gatewayActors:        map[string]*actor.PID{},
		coordinators:         map[string]*actor.PID{},
		statuses:             map[string]domain.CoordinatorStatus{},
		switchCoordinators:   map[string]string{},
		gatewayActorProvider: gatewayActorProvider,
		mqttActorProvider:    mqttActorProvider,
		metrics:              collector,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterOfPuppetsActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterOfPuppetsActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			haDiscPID, err := state.startHADiscoveryActor(ctx)
			if err != nil {
				panic(err)
			}
			state.haDiscoveryActor = haDiscPID
		}

		// start one actor per gateway, coordinators follow once the gateway reports its scopes
		for _, gw := range state.config.Gateways {
			pid, err := state.startGatewayActor(ctx, gw)
			if err != nil {
				panic(err)
			}
			state.gatewayActors[gw.Id] = pid
			state.requestGatewayInfo(ctx, gw.Id)
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.startHealthCheck(ctx)
	case domain.GetGatewayInfoResponse:
		if msg.HasResponseError() {
			state.logger.Warn("master@default gateway not ready, retrying", zap.String("gateway", msg.GatewayId), zap.Error(msg.GetResponseError()))
			state.scheduler.RequestOnce(GATEWAY_INFO_RETRY_DELAY, ctx.Self(), retryGatewayInfo{GatewayId: msg.GatewayId})
			return
		}
		state.startCoordinators(ctx, msg)
	case retryGatewayInfo:
		state.requestGatewayInfo(ctx, msg.GatewayId)
	case domain.CoordinatorStatusEvent:
		state.statuses[msg.Status.Id] = msg.Status
	case adactor.MQTTReady:
		state.replayAvailability(ctx)
	case domain.EntitiesReadyEvent:
		state.logger.Debug("master@default entities ready", zap.String("coordinator", msg.CoordinatorId),
			zap.Int("sensors", len(msg.Sensors)), zap.Int("switches", len(msg.Switches)))
		for _, sw := range msg.Switches {
			state.switchCoordinators[sw.Id] = msg.CoordinatorId
		}
		if state.haDiscoveryActor != nil {
			ctx.Send(state.haDiscoveryActor, msg)
		}
	case adactor.ParsedCommand:
		// redirect parsedCommand to the coordinator owning the entity
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command == nil {
			return
		}
		cmd, err := ParsedMQTTCommandToSwitch(*msg.Command)
		if err != nil {
			state.logger.Warn("master@default invalid command", zap.Error(err))
			return
		}
		coordinator, ok := state.coordinators[state.switchCoordinators[cmd.EntityId]]
		if !ok {
			state.logger.Warn("master@default command for unknown entity", zap.String("entity", cmd.EntityId))
			return
		}
		ctx.Send(coordinator, cmd)
	case domain.ListCoordinatorsRequest:
		ForRequest(msg).Respond(ctx, domain.ListCoordinatorsResponse{Coordinators: state.coordinatorStatuses()})
	case *actor.Terminated:
		state.logger.Warn("master@default child terminated", zap.String("child", msg.Who.Id))
	default:
		state.logger.Debug("master@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *MasterOfPuppetsActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		ctx.CancelReceiveTimeout()
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		if !msg.Healthy {
			state.currentHealthCheck.unhealthy = append(state.currentHealthCheck.unhealthy, msg.Id)
		}
		if state.currentHealthCheck.allReceived() {
			ctx.CancelReceiveTimeout()
			state.currentHealthCheck.respond(ctx)
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterOfPuppetsActor) startHealthCheck(ctx actor.Context) {
	state.currentHealthCheck = healthCheckResult{
		expected:  1 + len(state.gatewayActors),
		respondTo: ctx.Sender(),
	}
	state.askHealth(ctx, state.mqttActor, domain.ACTOR_ID_MQTT)
	for id, pid := range state.gatewayActors {
		state.askHealth(ctx, pid, domain.GatewayActorId(id))
	}
	ctx.SetReceiveTimeout(1 * time.Second)
	state.behavior.BecomeStacked(state.HealthCheckReceive)
}

func (state *MasterOfPuppetsActor) askHealth(ctx actor.Context, pid *actor.PID, id string) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, HEALTH_CHECK_TIMEOUT), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
		}
	})
}

func (state *MasterOfPuppetsActor) requestGatewayInfo(ctx actor.Context, gatewayId string) {
	pid, ok := state.gatewayActors[gatewayId]
	if !ok {
		return
	}
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.GetGatewayInfoRequest{}, GATEWAY_INFO_TIMEOUT), func(err error) any {
		return domain.GetGatewayInfoResponse{
			ActorResponseMixIn: domain.ErrorResponse(err),
			GatewayId:          gatewayId,
		}
	})
}

// startCoordinators spawns one coordinator per scope reported by a gateway.
// Scopes that already have one are left alone.
func (state *MasterOfPuppetsActor) startCoordinators(ctx actor.Context, info domain.GetGatewayInfoResponse) {
	gw, ok := state.config.Gateway(info.GatewayId)
	if !ok {
		state.logger.Error("master@default info for unknown gateway", zap.String("gateway", info.GatewayId))
		return
	}
	for _, scope := range info.Scopes {
		cfg := CoordinatorConfig{
			Id:           domain.CoordinatorId(gw.Id, scope.Id),
			GatewayId:    gw.Id,
			Scope:        scope,
			Variant:      info.Variant,
			Gateway:      info.Device,
			ScanInterval: gw.ScanInterval(info.Variant.DefaultScanInterval()),
			Timeout:      gw.Timeout(),
		}
		if _, exists := state.coordinators[cfg.Id]; exists {
			continue
		}
		pid, err := state.startCoordinatorActor(ctx, cfg)
		if err != nil {
			state.logger.Error("master@default cannot start coordinator", zap.String("coordinator", cfg.Id), zap.Error(err))
			continue
		}
		state.coordinators[cfg.Id] = pid
		state.logger.Info("master@default coordinator started", zap.String("coordinator", cfg.Id),
			zap.String("variant", info.Variant.Kind().String()), zap.Duration("interval", cfg.ScanInterval))
	}
}

// replayAvailability republishes the last known availability of every
// coordinator to a freshly (re)connected MQTT session.
func (state *MasterOfPuppetsActor) replayAvailability(ctx actor.Context) {
	state.logger.Debug("master@default mqtt ready, replaying availability", zap.Int("coordinators", len(state.statuses)))
	for _, st := range state.coordinatorStatuses() {
		if st.LastUpdate.IsZero() {
			continue
		}
		ctx.Send(state.mqttActor, domain.PublishSensorUpdateRequest{
			Retain: true,
			Event: domain.AvailabilityUpdateEvent{
				SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: st.Id},
				Online:                 st.LastUpdateSuccess,
			},
		})
	}
}

func (state *MasterOfPuppetsActor) coordinatorStatuses() []domain.CoordinatorStatus {
	out := make([]domain.CoordinatorStatus, 0, len(state.coordinators))
	for id := range state.coordinators {
		st, ok := state.statuses[id]
		if !ok {
			st = domain.CoordinatorStatus{Id: id}
		}
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b domain.CoordinatorStatus) int {
		return strings.Compare(a.Id, b.Id)
	})
	return out
}

func (state *MasterOfPuppetsActor) startGatewayActor(ctx actor.Context, gw config.GatewayConfig) (*actor.PID, error) {
	gatewayProps := actor.PropsFromProducer(func() actor.Actor {
		return state.gatewayActorProvider(gw)
	})
	return ctx.SpawnNamed(gatewayProps, domain.GatewayActorId(gw.Id))
}

func (state *MasterOfPuppetsActor) startCoordinatorActor(ctx actor.Context, cfg CoordinatorConfig) (*actor.PID, error) {
	gatewayPID := state.gatewayActors[cfg.GatewayId]
	coordinatorProps := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(cfg, gatewayPID, state.eventStream, state.metrics, state.logger)
	})
	return ctx.SpawnNamed(coordinatorProps, fmt.Sprintf("coordinator_%s", cfg.Id))
}

func (state *MasterOfPuppetsActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {
	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	})
	return ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
}

func (state *MasterOfPuppetsActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {
	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider(state.eventStream)
	})
	return ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.expected
}

func (state *healthCheckResult) allHealthy() bool {
	return state.allReceived() && len(state.unhealthy) == 0
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if !resp.Healthy {
		resp.State = fmt.Sprintf("unhealthy: %s", strings.Join(state.unhealthy, ","))
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
