package actor

import (
	"errors"
	"sync"
	"testing"
	"time"

	adactor "github.com/berfenger/plugwise2mqtt/internal/adapter/actor"
	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/metrics"
	"github.com/berfenger/plugwise2mqtt/internal/util/actorutil"
	"github.com/berfenger/plugwise2mqtt/pkg/plugwise"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// coordinatorProbe parents a coordinator, records what it reports upwards and
// forwards everything else to it.
type coordinatorProbe struct {
	props  *actor.Props
	child  *actor.PID
	events chan any
}

func (p *coordinatorProbe) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		p.child = ctx.Spawn(p.props)
	case domain.CoordinatorStatusEvent, domain.EntitiesReadyEvent:
		p.events <- msg
	case *actor.Stopping, *actor.Stopped, *actor.Restarting, *actor.Terminated:
	default:
		ctx.Forward(p.child)
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []any
}

func (r *eventRecorder) record(evt any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) availability() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bool
	for _, evt := range r.events {
		if a, ok := evt.(domain.AvailabilityUpdateEvent); ok {
			out = append(out, a.Online)
		}
	}
	return out
}

func (r *eventRecorder) lastSwitch(id string) (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if s, ok := r.events[i].(domain.SwitchSensorUpdateEvent); ok && s.Id == id {
			return s.Value, true
		}
	}
	return false, false
}

type coordinatorFixture struct {
	root        *actor.RootContext
	probe       *actor.PID
	events      chan any
	recorder    *eventRecorder
	eventStream *eventstream.EventStream
}

func testActorRoot(t *testing.T) *actor.RootContext {
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	t.Cleanup(as.Shutdown)
	return as.Root.WithGuardian(actor.NewExponentialBackoffStrategy(10*time.Second, 100*time.Millisecond))
}

func spawnCoordinator(t *testing.T, root *actor.RootContext, gateway *actor.PID, cfg CoordinatorConfig) *coordinatorFixture {
	logger := zap.Must(zap.NewDevelopment())
	es := eventstream.NewEventStream()
	rec := &eventRecorder{}
	sub := es.Subscribe(rec.record)
	t.Cleanup(func() { es.Unsubscribe(sub) })

	collector := metrics.NewCollector("plugwise")
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewCoordinatorActor(cfg, gateway, es, collector, logger)
	})
	probe := &coordinatorProbe{props: props, events: make(chan any, 64)}
	pid := root.Spawn(actor.PropsFromProducer(func() actor.Actor { return probe },
		actor.WithSupervisor(actor.NewExponentialBackoffStrategy(10*time.Second, 100*time.Millisecond))))
	t.Cleanup(func() { root.Stop(pid) })

	return &coordinatorFixture{root: root, probe: pid, events: probe.events, recorder: rec, eventStream: es}
}

func (f *coordinatorFixture) status(t *testing.T) domain.CoordinatorStatus {
	resp, err := actorutil.Ask[domain.GetCoordinatorStatusResponse](f.root, f.probe, domain.GetCoordinatorStatusRequest{}, 2*time.Second)
	require.NoError(t, err)
	return resp.Status
}

func (f *coordinatorFixture) waitEntitiesReady(t *testing.T, within time.Duration) domain.EntitiesReadyEvent {
	deadline := time.After(within)
	for {
		select {
		case evt := <-f.events:
			if ready, ok := evt.(domain.EntitiesReadyEvent); ok {
				return ready
			}
		case <-deadline:
			t.Fatal("entities were never ready")
			return domain.EntitiesReadyEvent{}
		}
	}
}

func thermostatCoordinatorConfig(interval, timeout time.Duration) CoordinatorConfig {
	return CoordinatorConfig{
		Id:           "adam",
		GatewayId:    "adam",
		Variant:      plugwise.ThermostatVariant{},
		Gateway:      domain.GatewayDevice("adam", "", "Adam", "Smile Adam", "3.0.15"),
		ScanInterval: interval,
		Timeout:      timeout,
	}
}

func spawnSmileGateway(t *testing.T, root *actor.RootContext, client plugwise.SmileClient) *actor.PID {
	logger := zap.Must(zap.NewDevelopment())
	pid := root.Spawn(actor.PropsFromProducer(func() actor.Actor { return adactor.NewSmileActor("adam", client, logger) }))
	t.Cleanup(func() { root.Stop(pid) })
	return pid
}

func entityState(st domain.CoordinatorStatus, id string) (domain.EntityStatus, bool) {
	for _, e := range st.Entities {
		if e.Id == id {
			return e, true
		}
	}
	return domain.EntityStatus{}, false
}

func TestCoordinatorSetup(t *testing.T) {
	root := testActorRoot(t)
	gateway := spawnSmileGateway(t, root, plugwise.CreateTestThermostatClient())
	f := spawnCoordinator(t, root, gateway, thermostatCoordinatorConfig(time.Minute, time.Second))

	ready := f.waitEntitiesReady(t, 5*time.Second)
	assert.Equal(t, "adam", ready.CoordinatorId)
	assert.Len(t, ready.Sensors, 5)
	assert.Empty(t, ready.Switches)

	st := f.status(t)
	assert.True(t, st.LastUpdateSuccess)
	assert.Equal(t, 2, st.Devices)
	assert.Equal(t, "thermostat", st.Variant)
	boiler, ok := entityState(st, "adam_ctrl01_boiler_temperature")
	require.True(t, ok)
	assert.True(t, boiler.Available)
	assert.Equal(t, 54.2, boiler.State)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]bool{true}, f.recorder.availability())
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCoordinatorTimeoutKeepsSnapshot(t *testing.T) {
	root := testActorRoot(t)
	client := plugwise.CreateTestThermostatClient()
	gateway := spawnSmileGateway(t, root, client)
	f := spawnCoordinator(t, root, gateway, thermostatCoordinatorConfig(100*time.Millisecond, 100*time.Millisecond))
	f.waitEntitiesReady(t, 5*time.Second)

	client.SetDelay(400 * time.Millisecond)
	require.Eventually(t, func() bool {
		return !f.status(t).LastUpdateSuccess
	}, 3*time.Second, 50*time.Millisecond)

	st := f.status(t)
	assert.Equal(t, 2, st.Devices)
	assert.NotEmpty(t, st.LastError)
	for _, e := range st.Entities {
		assert.False(t, e.Available, e.Id)
		assert.Nil(t, e.State, e.Id)
	}

	client.SetDelay(0)
	require.Eventually(t, func() bool {
		return f.status(t).LastUpdateSuccess
	}, 3*time.Second, 50*time.Millisecond)

	boiler, ok := entityState(f.status(t), "adam_ctrl01_boiler_temperature")
	require.True(t, ok)
	assert.Equal(t, 54.2, boiler.State)

	require.Eventually(t, func() bool {
		seen := f.recorder.availability()
		return len(seen) > 0 && seen[len(seen)-1]
	}, 2*time.Second, 20*time.Millisecond)
	seen := f.recorder.availability()
	assert.True(t, seen[0])
	assert.Contains(t, seen, false)
}

func TestCoordinatorAvailabilityReachesLateSubscriber(t *testing.T) {
	root := testActorRoot(t)
	gateway := spawnSmileGateway(t, root, plugwise.CreateTestThermostatClient())
	f := spawnCoordinator(t, root, gateway, thermostatCoordinatorConfig(100*time.Millisecond, time.Second))
	f.waitEntitiesReady(t, 5*time.Second)

	late := &eventRecorder{}
	sub := f.eventStream.Subscribe(late.record)
	defer f.eventStream.Unsubscribe(sub)

	assert.Eventually(t, func() bool {
		seen := late.availability()
		return len(seen) > 0 && seen[len(seen)-1]
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCoordinatorNotReadyRetries(t *testing.T) {
	root := testActorRoot(t)
	client := plugwise.CreateTestThermostatClient()
	client.SetRefreshError(errors.New("gateway unreachable"))
	gateway := spawnSmileGateway(t, root, client)
	f := spawnCoordinator(t, root, gateway, thermostatCoordinatorConfig(time.Minute, time.Second))

	select {
	case evt := <-f.events:
		st, ok := evt.(domain.CoordinatorStatusEvent)
		require.True(t, ok)
		assert.False(t, st.Status.LastUpdateSuccess)
		assert.Empty(t, st.Status.Entities)
	case <-time.After(5 * time.Second):
		t.Fatal("no status reported")
	}

	client.SetRefreshError(nil)
	ready := f.waitEntitiesReady(t, 5*time.Second)
	assert.Len(t, ready.Sensors, 5)
	assert.GreaterOrEqual(t, client.Refreshes(), 2)
}

func stickCoordinatorConfig(mac, name string, interval, timeout time.Duration) CoordinatorConfig {
	return CoordinatorConfig{
		Id:           domain.CoordinatorId("stick", mac),
		GatewayId:    "stick",
		Scope:        domain.Scope{Id: mac, Name: name},
		Variant:      plugwise.StickVariant{},
		Gateway:      domain.GatewayDevice("stick", "", "Stick", "Stick", ""),
		ScanInterval: interval,
		Timeout:      timeout,
	}
}

func TestCoordinatorHungSiblingNode(t *testing.T) {
	root := testActorRoot(t)
	logger := zap.Must(zap.NewDevelopment())
	circle := plugwise.NewTestStickNode("000D6F0000AAAAAA", "Circle+", true, plugwise.Snapshot{
		"available": true,
		"power_1s":  12.5,
		"relay":     true,
	})
	scan := plugwise.NewTestStickNode("000D6F0000BBBBBB", "Scan", true, plugwise.Snapshot{
		"available": true,
		"motion":    false,
	})
	client := plugwise.NewTestStickClient(circle, scan)
	gateway := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewStickActor("stick", client, t.TempDir(), logger)
	}))
	t.Cleanup(func() { root.Stop(gateway) })

	hung := spawnCoordinator(t, root, gateway, stickCoordinatorConfig("000D6F0000AAAAAA", "Circle+", 200*time.Millisecond, 300*time.Millisecond))
	healthy := spawnCoordinator(t, root, gateway, stickCoordinatorConfig("000D6F0000BBBBBB", "Scan", 200*time.Millisecond, 300*time.Millisecond))
	hung.waitEntitiesReady(t, 5*time.Second)
	healthy.waitEntitiesReady(t, 5*time.Second)

	circle.SetHang(true)
	require.Eventually(t, func() bool {
		return !hung.status(t).LastUpdateSuccess
	}, 3*time.Second, 50*time.Millisecond)

	// several refresh rounds while the other node hangs
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st := healthy.status(t)
		require.True(t, st.LastUpdateSuccess, st.LastError)
		time.Sleep(50 * time.Millisecond)
	}
	assert.NotContains(t, healthy.recorder.availability(), false)
}

func TestCoordinatorSwitch(t *testing.T) {
	root := testActorRoot(t)
	logger := zap.Must(zap.NewDevelopment())
	circle := plugwise.NewTestStickNode("000D6F0000AAAAAA", "Circle+", true, plugwise.Snapshot{
		"available": true,
		"power_1s":  12.5,
		"relay":     true,
	})
	client := plugwise.NewTestStickClient(circle)
	gateway := root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewStickActor("stick", client, t.TempDir(), logger)
	}))
	t.Cleanup(func() { root.Stop(gateway) })

	f := spawnCoordinator(t, root, gateway, stickCoordinatorConfig("000D6F0000AAAAAA", "Circle+", time.Minute, time.Second))
	ready := f.waitEntitiesReady(t, 5*time.Second)
	require.Len(t, ready.Switches, 1)

	relayId := "stick_000d6f0000aaaaaa_relay"
	require.Eventually(t, func() bool {
		on, ok := f.recorder.lastSwitch(relayId)
		return ok && on
	}, 2*time.Second, 20*time.Millisecond)

	f.root.Send(f.probe, domain.SwitchCommand{EntityId: relayId, On: false})
	require.Eventually(t, func() bool {
		on, ok := f.recorder.lastSwitch(relayId)
		return ok && !on
	}, 3*time.Second, 20*time.Millisecond)

	// unknown entities and sensors are not switched
	f.root.Send(f.probe, domain.SwitchCommand{EntityId: "stick_000d6f0000aaaaaa_power_1s", On: true})
	f.root.Send(f.probe, domain.SwitchCommand{EntityId: "nope", On: true})
	relay, ok := entityState(f.status(t), relayId)
	require.True(t, ok)
	assert.Equal(t, false, relay.State)
}
