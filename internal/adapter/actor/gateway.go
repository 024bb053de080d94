package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

const (
	// SETUP_TIMEOUT bounds connecting and initializing a gateway client.
	SETUP_TIMEOUT = 30 * time.Second

	STATE_IDLE       = "idle"
	STATE_REFRESHING = "refreshing"
)

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

// gatewayActor holds what the Smile and Stick actors share: a behavior stack,
// a stash for messages received while a client call is running, and the
// client call runners. runClientTask calls run one at a time inside the actor;
// runConcurrentTask calls run side by side.
type gatewayActor struct {
	gatewayId string
	behavior  actor.Behavior
	stash     *actorutil.Stash
	logger    *zap.Logger
	state     string
	inFlight  int
}

func newGatewayActor(gatewayId string, logger *zap.Logger) gatewayActor {
	return gatewayActor{
		gatewayId: gatewayId,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.GatewayActorId(gatewayId), logger),
		state:     STATE_IDLE,
	}
}

func (g *gatewayActor) healthResponse() domain.ActorHealthResponse {
	state := g.state
	if g.inFlight > 0 {
		state = STATE_REFRESHING
	}
	return domain.ActorHealthResponse{
		Id:      domain.GatewayActorId(g.gatewayId),
		Healthy: true,
		State:   state,
	}
}

// callTimeout is the timeout a request asked for, or SETUP_TIMEOUT.
func callTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return SETUP_TIMEOUT
	}
	return requested
}

// startingReceive stashes everything but lifecycle messages until start
// succeeds. A failing start panics so the supervisor can retry with backoff.
func (g *gatewayActor) startingReceive(ctx actor.Context, start func(context.Context) error, stop func(), ready actor.ReceiveFunc) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		g.logger.Debug("gateway@starting started")
		setupCtx, cancel := context.WithTimeout(context.Background(), SETUP_TIMEOUT)
		defer cancel()
		if err := start(setupCtx); err != nil {
			g.logger.Warn("gateway not ready", zap.Error(err))
			panic(err)
		}
		g.logger.Info("gateway ready")
		g.behavior.Become(ready)
		g.stash.UnstashAll(ctx)
	case *actor.Restarting:
		stop()
	case *actor.Stopping, *actor.Stopped:
	default:
		g.logger.Debug("gateway@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		g.stash.Stash(ctx, msg)
	}
}

// runClientTask runs fn under timeout and delivers its response, or the
// response built by onError, to replyTo once the actor is back to idle.
func runClientTask[T any](g *gatewayActor, ctx actor.Context, replyTo *actor.PID, timeout time.Duration,
	fn func(context.Context) (*T, error), onError func(error) T, stop func()) {
	g.state = STATE_REFRESHING
	actorutil.MapBackgroundTask(actorutil.NewContextTask(ctx, fn).WithTimeout(timeout),
		mapTaskResult[T](replyTo)).Recover(func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: onError(err),
			replyTo: replyTo,
		}
	}).PipeTo(ctx.Self())
	g.behavior.BecomeStacked(func(ctx actor.Context) { g.waitingReceive(ctx, stop) })
}

// runConcurrentTask runs fn under timeout without blocking the mailbox. The
// result comes back as a backgroundTaskResult for deliverResult.
func runConcurrentTask[T any](g *gatewayActor, ctx actor.Context, replyTo *actor.PID, timeout time.Duration,
	fn func(context.Context) (*T, error), onError func(error) T) {
	g.inFlight++
	actorutil.MapBackgroundTask(actorutil.NewContextTask(ctx, fn).WithTimeout(timeout),
		mapTaskResult[T](replyTo)).Recover(func(err error) backgroundTaskResult {
		return backgroundTaskResult{
			message: onError(err),
			replyTo: replyTo,
		}
	}).PipeToAsync(ctx.Self())
}

func (g *gatewayActor) deliverResult(ctx actor.Context, msg backgroundTaskResult) {
	g.inFlight--
	if msg.replyTo != nil {
		ctx.Send(msg.replyTo, msg.message)
	}
}

func (g *gatewayActor) waitingReceive(ctx actor.Context, stop func()) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		g.logger.Debug("gateway@waiting backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		if msg.replyTo != nil {
			ctx.Send(msg.replyTo, msg.message)
		}
		g.state = STATE_IDLE
		g.behavior.UnbecomeStacked()
		g.stash.UnstashAll(ctx)
	case domain.ActorHealthRequest:
		ctx.Respond(g.healthResponse())
	case *actor.Stopping:
		stop()
	default:
		g.logger.Debug("gateway@waiting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		g.stash.Stash(ctx, msg)
	}
}

func mapTaskResult[T any](replyTo *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: replyTo,
		}
	}
}

func disconnect(logger *zap.Logger, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("disconnect failed", zap.Error(err))
	}
}
