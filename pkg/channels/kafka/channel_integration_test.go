package kafka_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/docstates/pkg/channels/kafka"
	"github.com/dukex/docstates/pkg/eventbus"
	"github.com/dukex/docstates/pkg/events"
	"github.com/dukex/docstates/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaTc "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func startKafka(t *testing.T, ctx context.Context) []string {
	t.Helper()

	container, err := kafkaTc.Run(ctx, "confluentinc/confluent-local:7.7.0")
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	admin, err := sarama.NewClusterAdmin(brokers, sarama.NewConfig())
	require.NoError(t, err)

	defer func() { _ = admin.Close() }()

	err = admin.CreateTopic(events.Topic, &sarama.TopicDetail{NumPartitions: 3, ReplicationFactor: 1}, false)
	require.NoError(t, err)

	return brokers
}

func TestKafkaChannel_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers := startKafka(t, ctx)

	pub, sub, err := kafka.CreateChannel(watermill.NopLogger{}, brokers, "test")
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, slog.Default())

	defer func() { _ = bus.Close() }()

	received := make(chan *events.ActionFailed, 1)

	require.NoError(t, bus.Handle(events.ActionFailedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.ActionFailed)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	instance := &models.WorkflowInstance{ID: "i1", DocumentID: "doc-1", TemplateID: "tpl"}

	require.NoError(t, bus.Publish(ctx, instance.DocumentID, events.ActionFailed{
		BaseEvent:  events.NewBaseEvent(events.ActionFailedEvent, instance),
		StateID:    "review",
		ActionID:   "notify",
		ActionType: "http_request",
		Phase:      models.ActionOnEntry,
		Error:      "HTTPServerError; 503",
	}))

	select {
	case got := <-received:
		assert.Equal(t, "notify", got.ActionID)
		assert.Equal(t, models.ActionOnEntry, got.Phase)
		assert.Equal(t, "doc-1", got.DocumentID)
	case <-time.After(time.Minute):
		t.Fatal("event not delivered through kafka")
	}
}
