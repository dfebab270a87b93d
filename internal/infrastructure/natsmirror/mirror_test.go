package natsmirror

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/debugbridge/internal/domain/relay"
)

func startServer(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go ns.Start()
	require.True(t, ns.ReadyForConnections(10*time.Second), "nats server did not start")

	nc, err := Connect(ns.ClientURL(), "mirror-test", nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func TestSubject(t *testing.T) {
	m := New(nil, nil, Config{SubjectPrefix: "app"})

	tests := []struct {
		msg  relay.Message
		want string
	}{
		{relay.Message{Stream: "console", Name: "error"}, "app.console.error"},
		{relay.Message{Stream: "events", Name: "todo.saved"}, "app.events.todo_saved"},
		{relay.Message{Stream: "events", Name: "a b>*"}, "app.events.a_b__"},
		{relay.Message{Stream: "logs"}, "app.logs._"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Subject(tt.msg))
	}
}

func TestMirrorPublishesRelayMessages(t *testing.T) {
	nc := startServer(t)

	r := relay.New(relay.DefaultConfig(), nil)
	t.Cleanup(r.Close)

	received := make(chan *nats.Msg, 8)
	sub, err := nc.ChanSubscribe("debugbridge.>", received)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, nc.Flush())

	m := New(nc, r, Config{Streams: []string{relay.StreamConsole}})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Run subscribes asynchronously; keep publishing until one arrives
	var msg *nats.Msg
	require.Eventually(t, func() bool {
		_ = r.Publish(relay.StreamConsole, "warn", map[string]string{"message": "careful"})
		_ = r.Publish(relay.StreamEvents, "ignored", true)
		select {
		case msg = <-received:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, "debugbridge.console.warn", msg.Subject)
	var got relay.Message
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, relay.StreamConsole, got.Stream)
	assert.JSONEq(t, `{"message":"careful"}`, string(got.Payload))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mirror did not stop")
	}

	stats := m.Stats()
	assert.NotZero(t, stats.Published)
	assert.Equal(t, "closed", stats.Breaker)
}

func TestMirrorStopsWhenRelayCloses(t *testing.T) {
	nc := startServer(t)
	r := relay.New(relay.DefaultConfig(), nil)

	m := New(nc, r, Config{})
	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return r.Stats().Subscribers[relay.StreamLogs] == 1
	}, time.Second, 5*time.Millisecond)
	r.Close()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("mirror did not stop")
	}
}

func TestRunOnClosedRelay(t *testing.T) {
	r := relay.New(relay.DefaultConfig(), nil)
	r.Close()

	m := New(nil, r, Config{})
	assert.ErrorIs(t, m.Run(context.Background()), relay.ErrClosed)
}

func TestBreakerShedsAfterConnectionLoss(t *testing.T) {
	nc := startServer(t)
	m := New(nc, nil, Config{})
	nc.Close()

	msg := relay.Message{Stream: relay.StreamConsole, Name: "log", Payload: json.RawMessage(`{}`)}
	for i := 0; i < 5; i++ {
		m.publish(msg)
	}

	stats := m.Stats()
	assert.Equal(t, uint64(3), stats.Failed)
	assert.Equal(t, uint64(2), stats.Rejected)
	assert.Equal(t, uint64(0), stats.Published)
	assert.Equal(t, "open", stats.Breaker)
}
