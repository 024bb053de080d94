package actorutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/berfenger/plugwise2mqtt/internal/core/domain"
	"github.com/berfenger/plugwise2mqtt/internal/mqtt"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParsedMQTTCommandToSwitch(t *testing.T) {
	cmd, err := ParsedMQTTCommandToSwitch(mqtt.ParsedMQTTCommand{
		EntityId: "stick_node_relay",
		Command:  mqtt.COMMAND_SWITCH,
		Payload:  mqtt.MQTT_PAYLOAD_ON,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SwitchCommand{EntityId: "stick_node_relay", On: true}, cmd)

	_, err = ParsedMQTTCommandToSwitch(mqtt.ParsedMQTTCommand{Command: "number"})
	assert.Error(t, err)
}

type taskResult struct {
	Value string
	Err   error
}

// taskActor runs one background task per message and forwards the outcome.
type taskActor struct {
	out chan taskResult
}

type runTask struct {
	fn      func() (*taskResult, error)
	timeout time.Duration
}

func (a *taskActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case runTask:
		NewContextTask(ctx, func(context.Context) (*taskResult, error) { return msg.fn() }).
			WithTimeout(msg.timeout).
			Recover(func(err error) taskResult { return taskResult{Err: err} }).
			PipeTo(ctx.Self())
	case taskResult:
		a.out <- msg
	}
}

func TestBackgroundTaskRecover(t *testing.T) {
	as := NewActorSystemWithZapLogger(zap.NewNop())
	out := make(chan taskResult, 3)
	pid := as.Root.Spawn(actor.PropsFromProducer(func() actor.Actor { return &taskActor{out: out} }))
	defer as.Root.Stop(pid)

	boom := errors.New("boom")
	as.Root.Send(pid, runTask{fn: func() (*taskResult, error) { return &taskResult{Value: "ok"}, nil }, timeout: time.Second})
	as.Root.Send(pid, runTask{fn: func() (*taskResult, error) { return nil, boom }, timeout: time.Second})
	as.Root.Send(pid, runTask{fn: func() (*taskResult, error) {
		time.Sleep(200 * time.Millisecond)
		return &taskResult{Value: "late"}, nil
	}, timeout: 20 * time.Millisecond})

	r := <-out
	assert.Equal(t, "ok", r.Value)
	r = <-out
	assert.ErrorIs(t, r.Err, boom)
	r = <-out
	assert.Error(t, r.Err)
	assert.Empty(t, r.Value)
}
