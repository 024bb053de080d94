package actor

import (
	"testing"
	"time"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/mqtt"
	"github.com/berfenger/plugwise2mqtt/internal/util"
	"github.com/berfenger/plugwise2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEvent2MQTTMessage(t *testing.T) {
	cfg := util.LoadTestConfig()
	act := NewTestMQTTActor(&cfg, nil, zap.NewNop(), nil)
	act.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	msg, ok := act.stateMessage(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "adam_ctrl01_boiler_temperature"},
		Value:                  54.24,
		Decimals:               1,
	})
	require.True(t, ok)
	assert.Equal(t, "plugwise/sensor/adam_ctrl01_boiler_temperature/state", msg.topic)
	assert.Equal(t, "54.2", msg.message)

	msg, _ = act.stateMessage(domain.FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "p1_home_battery"},
		Value:                  84,
	})
	assert.Equal(t, "84", msg.message)

	msg, _ = act.stateMessage(domain.SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "stick_node_relay"},
		Value:                  true,
	})
	assert.Equal(t, "plugwise/switch/stick_node_relay/state", msg.topic)
	assert.Equal(t, mqtt.MQTT_PAYLOAD_ON, msg.message)
	assert.True(t, msg.retain)

	msg, _ = act.stateMessage(domain.AvailabilityUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "adam"},
		Online:                 false,
	})
	assert.Equal(t, "plugwise/coordinator/adam/availability", msg.topic)
	assert.Equal(t, mqtt.MQTT_PAYLOAD_OFFLINE, msg.message)
	assert.True(t, msg.retain)

	_, ok = act.stateMessage("not an event")
	assert.False(t, ok)
}

func TestMQTTActorRelaysEventStream(t *testing.T) {

	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	es := eventstream.NewEventStream()
	recorder := make(chan any, 8)

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, es, logger, recorder) })
	pid := as.Root.Spawn(props)
	defer as.Root.Stop(pid)

	resp, err := actorutil.Ask[domain.ActorHealthResponse](as.Root, pid, domain.ActorHealthRequest{}, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, resp.Healthy)

	es.Publish(domain.TextSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "adam_zone01_illuminance"},
		Value:                  "dark",
	})
	es.Publish("ignored")

	select {
	case got := <-recorder:
		assert.Equal(t, RecordedMessage{Topic: "plugwise/sensor/adam_zone01_illuminance/state", Payload: "dark"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not relayed")
	}
}

func TestMQTTActorPublishSensorUpdateRequest(t *testing.T) {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())
	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	recorder := make(chan any, 8)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, eventstream.NewEventStream(), logger, recorder) }))
	defer as.Root.Stop(pid)

	_, err := actorutil.Ask[domain.PublishSensorUpdateResponse](as.Root, pid, domain.PublishSensorUpdateRequest{
		Retain: true,
		Event: domain.FloatSensorUpdateEvent{
			SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: "p1_electricity_consumed_off_peak_cumulative"},
			Value:                  125,
			Decimals:               1,
		},
	}, 2*time.Second)
	require.NoError(t, err)

	select {
	case got := <-recorder:
		assert.Equal(t, RecordedMessage{
			Topic:   "plugwise/sensor/p1_electricity_consumed_off_peak_cumulative/state",
			Payload: "125.0",
			Retain:  true,
		}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("nothing published")
	}
}
