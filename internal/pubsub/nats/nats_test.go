package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"lockstats/internal/config"
	"lockstats/internal/domain"
	"lockstats/internal/pubsub"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

// ------------------------ tests not real connection ------------------------
func TestConnect_NilConfig(t *testing.T) {
	client, err := Connect(nil, newTestLogger())

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "config is required", err.Error())
}

func TestConnect_EmptyURL(t *testing.T) {
	client, err := Connect(&config.NATSConfig{}, newTestLogger())

	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Equal(t, "nats url is required", err.Error())
}

func TestNilConnection(t *testing.T) {
	client := &Client{log: newTestLogger()}

	assert.False(t, client.Ready())
	assert.Equal(t, nats.DISCONNECTED, client.Status())
	assert.ErrorIs(t, client.Health(context.Background()), ErrNotConnected)
	assert.NoError(t, client.Close())
}

func TestNewBroadcaster_NilClient(t *testing.T) {
	_, err := NewBroadcaster(nil, "lockstats")
	assert.Error(t, err)
}

// ------------------------ tests in-memory nats connection ------------------------
func runTestWithInMemoryNATS(t *testing.T, testFunc func(*testing.T, *server.Server, string)) {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1 // random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	s := natsserver.RunServer(&opts)
	defer s.Shutdown()

	testFunc(t, s, s.ClientURL())
}

func connect(t *testing.T, url string) *Client {
	t.Helper()

	client, err := Connect(&config.NATSConfig{URL: url}, newTestLogger())
	require.NoError(t, err)
	require.Eventually(t, client.Ready, 2*time.Second, 10*time.Millisecond)
	return client
}

func TestConnect_CloseIdempotent(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client := connect(t, url)
		assert.Equal(t, nats.CONNECTED, client.Status())
		assert.NoError(t, client.Health(context.Background()))

		assert.NoError(t, client.Close())
		assert.NoError(t, client.Close())

		assert.False(t, client.Ready())
		assert.Equal(t, nats.CLOSED, client.Status())
	})
}

func TestBroadcaster_PublishesWithPrefix(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client := connect(t, url)
		defer client.Close()

		b, err := NewBroadcaster(client, "lockstats.buckets.")
		require.NoError(t, err)
		assert.Equal(t, "lockstats.buckets.daily_lock", b.Subject("daily_lock"))

		sub, err := client.Conn().SubscribeSync("lockstats.buckets.>")
		require.NoError(t, err)
		require.NoError(t, client.Conn().Flush())

		patch := &pubsub.BucketPatch{Kind: "daily_lock", ID: "1699920000", Time: 1699920000, Amount: "1000", AmountUSD: "2350", Count: 1}
		require.NoError(t, b.Publish(context.Background(), patch.Subject(), patch))

		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)
		assert.Equal(t, "lockstats.buckets.daily_lock", msg.Subject)

		var got pubsub.BucketPatch
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, *patch, got)
	})
}

func TestBroadcaster_ClosedConnection(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client := connect(t, url)
		b, err := NewBroadcaster(client, "x")
		require.NoError(t, err)

		require.NoError(t, client.Close())

		assert.ErrorIs(t, b.Publish(context.Background(), "daily_lock", struct{}{}), ErrNotConnected)
		assert.ErrorIs(t, b.Health(context.Background()), ErrNotConnected)
	})
}

// recordingProcessor fails the first failN calls of each movement with a transient error
type recordingProcessor struct {
	mu      sync.Mutex
	applied []string
	calls   map[string]int
	failN   int
}

func (p *recordingProcessor) Process(_ context.Context, ev *domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ev.Validate(); err != nil {
		return err
	}

	id := ev.MovementID()
	p.calls[id]++
	if p.calls[id] <= p.failN {
		return errors.New("store unavailable")
	}
	p.applied = append(p.applied, id)
	return nil
}

func (p *recordingProcessor) Applied() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.applied...)
}

func testNATSConfig(url string) *config.NATSConfig {
	return &config.NATSConfig{
		URL:           url,
		Stream:        "LOCKER_EVENTS_TEST",
		IngestSubject: "locker.events",
		Durable:       "lockstats-test",
		FetchWait:     100 * time.Millisecond,
		RetryDelay:    50 * time.Millisecond,
	}
}

func event(logIndex uint32) *domain.Event {
	return &domain.Event{
		Type:           domain.EventStaked,
		TxHash:         "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		LogIndex:       logIndex,
		BlockTimestamp: 1_700_000_000,
		User:           "0x1111111111111111111111111111111111111111",
		Amount:         "1000",
	}
}

func publishEvents(t *testing.T, client *Client, subject string, payloads ...[]byte) {
	t.Helper()

	js, err := client.Conn().JetStream()
	require.NoError(t, err)
	for _, p := range payloads {
		_, err = js.Publish(subject, p)
		require.NoError(t, err)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestNewConsumer_Validation(t *testing.T) {
	_, err := NewConsumer(nil, &config.NATSConfig{}, &recordingProcessor{}, newTestLogger())
	assert.Error(t, err)

	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client := connect(t, url)
		defer client.Close()

		_, err := NewConsumer(client, &config.NATSConfig{URL: url}, &recordingProcessor{}, newTestLogger())
		assert.Error(t, err)

		_, err = NewConsumer(client, testNATSConfig(url), nil, newTestLogger())
		assert.Error(t, err)
	})
}

func TestConsumer_ProcessesInOrderAndSettles(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client := connect(t, url)
		defer client.Close()

		cfg := testNATSConfig(url)
		proc := &recordingProcessor{calls: map[string]int{}, failN: 1}

		consumer, err := NewConsumer(client, cfg, proc, newTestLogger())
		require.NoError(t, err)

		malformed := event(99)
		malformed.User = "nobody"

		publishEvents(t, client, cfg.IngestSubject,
			mustJSON(t, event(0)),
			[]byte("{not json"),
			mustJSON(t, malformed),
			mustJSON(t, event(1)),
			mustJSON(t, event(2)),
		)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- consumer.Run(ctx) }()

		want := []string{event(0).MovementID(), event(1).MovementID(), event(2).MovementID()}
		require.Eventually(t, func() bool {
			return len(proc.Applied()) == len(want)
		}, 10*time.Second, 20*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
		}

		// every event failed once and was redelivered before the next one was handed out
		assert.Equal(t, want, proc.Applied())

		js, err := client.Conn().JetStream()
		require.NoError(t, err)
		info, err := js.ConsumerInfo(cfg.Stream, cfg.Durable)
		require.NoError(t, err)
		assert.Zero(t, info.NumAckPending)
		assert.Zero(t, info.NumPending)
	})
}

func TestEnsureStream_Idempotent(t *testing.T) {
	runTestWithInMemoryNATS(t, func(t *testing.T, s *server.Server, url string) {
		client := connect(t, url)
		defer client.Close()

		js, err := client.Conn().JetStream()
		require.NoError(t, err)

		require.NoError(t, ensureStream(js, "S1", "s1.events"))
		require.NoError(t, ensureStream(js, "S1", "s1.events"))

		info, err := js.StreamInfo("S1")
		require.NoError(t, err)
		assert.Equal(t, []string{"s1.events"}, info.Config.Subjects)
	})
}
