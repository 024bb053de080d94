package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/core/service"
	"github.com/berfenger/plugwise2mqtt/internal/metrics"
	. "github.com/berfenger/plugwise2mqtt/internal/util/actorutil"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

var ErrNotReady = errors.New("coordinator not ready")

type CoordinatorConfig struct {
	Id           string
	GatewayId    string
	Scope        domain.Scope
	Variant      plugwise.Variant
	Gateway      domain.Device
	ScanInterval time.Duration
	Timeout      time.Duration
}

// CoordinatorActor polls one gateway scope on a fixed interval. It is the only
// writer of the cached snapshot set and of its entities.
type CoordinatorActor struct {
	behavior   actor.Behavior
	stash      *Stash
	scheduler  *scheduler.TimerScheduler
	cancelTick scheduler.CancelFunc

	config       CoordinatorConfig
	gatewayActor *actor.PID
	eventStream  *eventstream.EventStream
	metrics      *metrics.Collector

	snapshots         plugwise.SnapshotSet
	entities          *service.EntitySet
	lastUpdateSuccess bool
	lastUpdate        time.Time
	lastSuccess       time.Time
	lastError         error

	refreshing     bool
	refreshStarted time.Time
	refreshAgain   bool

	logger *zap.Logger
}

type coordinatorTick struct {
}

func NewCoordinatorActor(config CoordinatorConfig, gatewayActor *actor.PID, eventStream *eventstream.EventStream,
	collector *metrics.Collector, logger *zap.Logger) *CoordinatorActor {
	act := &CoordinatorActor{
		config:       config,
		gatewayActor: gatewayActor,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		logger:       ActorLogger(fmt.Sprintf("coordinator_%s", config.Id), logger),
		eventStream:  eventStream,
		metrics:      collector,
		entities:     service.NewEntitySet(nil),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *CoordinatorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *CoordinatorActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("coordinator@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.requestRefresh(ctx)
	case domain.RefreshResponse:
		state.refreshing = false
		state.recordRefresh(msg.GetResponseError())
		if msg.HasResponseError() {
			// not ready: let the supervisor retry the setup later
			state.logger.Warn("coordinator@starting first refresh failed", zap.Error(msg.GetResponseError()))
			state.notifyStatus(ctx)
			panic(fmt.Errorf("%w: %w", ErrNotReady, msg.GetResponseError()))
		}
		state.setup(ctx, msg)
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case domain.GetCoordinatorStatusRequest:
		ForRequest(msg).Respond(ctx, domain.GetCoordinatorStatusResponse{Status: state.status()})
	case *actor.Restarting, *actor.Stopping:
	default:
		state.logger.Debug("coordinator@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

// setup builds the entities from the first snapshot set and starts ticking.
func (state *CoordinatorActor) setup(ctx actor.Context, resp domain.RefreshResponse) {
	pc := service.ProjectionContext{
		GatewayId:     state.config.GatewayId,
		CoordinatorId: state.config.Id,
		Gateway:       state.config.Gateway,
	}
	state.snapshots = resp.Snapshots
	state.entities = service.NewEntitySet(service.ProjectEntities(state.config.Variant, pc, resp.Devices, resp.Snapshots))
	state.metrics.SetEntities(state.config.Id, state.entities.Len())
	state.logger.Info("coordinator ready", zap.Int("entities", state.entities.Len()), zap.Duration("interval", state.config.ScanInterval))

	sensors, switches := state.entities.Discovery(state.config.Id)
	state.notifyParent(ctx, domain.EntitiesReadyEvent{
		CoordinatorId: state.config.Id,
		Sensors:       sensors,
		Switches:      switches,
	})

	state.applySuccess(ctx, resp)
	state.cancelTick = state.scheduler.SendRepeatedly(state.config.ScanInterval, state.config.ScanInterval, ctx.Self(), coordinatorTick{})
}

func (state *CoordinatorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		ctx.Respond(domain.ActorHealthResponse{
			Id:      state.config.Id,
			Healthy: true,
			State:   state.stateName(),
		})
	case coordinatorTick:
		if state.refreshing {
			state.logger.Debug("coordinator@default tick skipped, refresh in progress")
			return
		}
		state.requestRefresh(ctx)
	case domain.RefreshResponse:
		state.refreshing = false
		state.recordRefresh(msg.GetResponseError())
		if msg.HasResponseError() {
			state.applyFailure(ctx, msg.GetResponseError())
		} else {
			state.applySuccess(ctx, msg)
		}
		if state.refreshAgain {
			state.refreshAgain = false
			state.requestRefresh(ctx)
		}
	case domain.SwitchCommand:
		state.switchEntity(ctx, msg)
	case domain.SetSwitchResponse:
		state.metrics.ObserveSwitchCommand(state.config.Id, msg.GetResponseError())
		if msg.HasResponseError() {
			state.logger.Error("coordinator@default switch command failed", zap.Error(msg.GetResponseError()))
			return
		}
		if state.refreshing {
			state.refreshAgain = true
			return
		}
		state.requestRefresh(ctx)
	case domain.GetCoordinatorStatusRequest:
		ForRequest(msg).Respond(ctx, domain.GetCoordinatorStatusResponse{Status: state.status()})
	case *actor.Stopping:
		if state.cancelTick != nil {
			state.cancelTick()
		}
	default:
		state.logger.Debug("coordinator@default ignored", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *CoordinatorActor) requestRefresh(ctx actor.Context) {
	state.refreshing = true
	state.refreshStarted = time.Now()
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.gatewayActor, domain.RefreshRequest{
		Scope:   state.config.Scope.Id,
		Timeout: state.config.Timeout,
	}, state.config.Timeout), func(err error) any {
		return domain.RefreshResponse{ActorResponseMixIn: domain.ErrorResponse(fmt.Errorf("refresh: %w", err))}
	})
}

func (state *CoordinatorActor) recordRefresh(err error) {
	state.lastUpdate = time.Now()
	state.metrics.ObserveRefresh(state.config.Id, state.lastUpdate.Sub(state.refreshStarted), err)
}

// applySuccess replaces the snapshot set and updates every entity from it.
func (state *CoordinatorActor) applySuccess(ctx actor.Context, resp domain.RefreshResponse) {
	state.snapshots = resp.Snapshots
	state.lastUpdateSuccess = true
	state.lastSuccess = state.lastUpdate
	state.lastError = nil
	for _, ev := range state.entities.Apply(state.snapshots) {
		state.eventStream.Publish(ev)
	}
	state.publishAvailability(true)
	state.notifyStatus(ctx)
}

// applyFailure keeps the previous snapshot set; entities become unavailable.
func (state *CoordinatorActor) applyFailure(ctx actor.Context, err error) {
	state.logger.Warn("coordinator@default refresh failed", zap.Error(err))
	state.lastUpdateSuccess = false
	state.lastError = err
	state.publishAvailability(false)
	state.notifyStatus(ctx)
}

// publishAvailability runs after every refresh. The topic is retained, so
// subscribers that join late still catch up on the next refresh.
func (state *CoordinatorActor) publishAvailability(online bool) {
	state.eventStream.Publish(domain.AvailabilityUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: state.config.Id},
		Online:                 online,
	})
}

func (state *CoordinatorActor) switchEntity(ctx actor.Context, cmd domain.SwitchCommand) {
	e, ok := state.entities.Get(cmd.EntityId)
	if !ok || e.Capability.Platform != domain.PlatformSwitch {
		state.logger.Warn("coordinator@default unknown switch", zap.String("entity", cmd.EntityId))
		return
	}
	state.logger.Info("coordinator@default switch", zap.String("entity", cmd.EntityId), zap.Bool("on", cmd.On))
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.gatewayActor, domain.SetSwitchRequest{
		Scope:    state.config.Scope.Id,
		DeviceId: e.DeviceId,
		Field:    e.Capability.Field,
		On:       cmd.On,
		Timeout:  state.config.Timeout,
	}, state.config.Timeout), func(err error) any {
		return domain.SetSwitchResponse{ActorResponseMixIn: domain.ErrorResponse(err)}
	})
}

func (state *CoordinatorActor) stateName() string {
	if state.refreshing {
		return "refreshing"
	}
	return "idle"
}

func (state *CoordinatorActor) status() domain.CoordinatorStatus {
	st := domain.CoordinatorStatus{
		Id:                state.config.Id,
		GatewayId:         state.config.GatewayId,
		Scope:             state.config.Scope.Id,
		Variant:           state.config.Variant.Kind().String(),
		ScanInterval:      state.config.ScanInterval,
		LastUpdateSuccess: state.lastUpdateSuccess,
		LastUpdate:        state.lastUpdate,
		LastSuccess:       state.lastSuccess,
		Devices:           len(state.snapshots),
		Entities:          state.entities.Statuses(state.lastUpdateSuccess),
	}
	if state.lastError != nil {
		st.LastError = state.lastError.Error()
	}
	return st
}

func (state *CoordinatorActor) notifyStatus(ctx actor.Context) {
	state.notifyParent(ctx, domain.CoordinatorStatusEvent{Status: state.status()})
}

func (state *CoordinatorActor) notifyParent(ctx actor.Context, msg any) {
	if ctx.Parent() != nil {
		ctx.Send(ctx.Parent(), msg)
	}
}
