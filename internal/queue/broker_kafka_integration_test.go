//go:build integration

package queue_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"busybeaver/internal/platform/logger"
	"busybeaver/internal/queue"
	"busybeaver/pkg/platform/sentinel"
	"busybeaver/pkg/testutil/containers"
)

type KafkaBrokerSuite struct {
	suite.Suite
	redpanda *containers.RedpandaContainer
}

func TestKafkaBrokerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaBrokerSuite))
}

func (s *KafkaBrokerSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
}

func (s *KafkaBrokerSuite) newBroker() *queue.KafkaBroker {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	b, err := queue.NewKafkaBroker(ctx, queue.KafkaConfig{
		Brokers:       []string{s.redpanda.Broker},
		Topic:         "jobs-" + uuid.NewString(),
		ConsumerGroup: "workers-" + uuid.NewString(),
	})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = b.Close() })
	return b
}

func (s *KafkaBrokerSuite) TestWorkerConsumesProducedJobs() {
	broker := s.newBroker()
	records := queue.NewMemoryBroker()
	q, err := queue.New("kafka", broker, records, queue.WithLogger(logger.Discard()))
	s.Require().NoError(err)

	var calls atomic.Int32
	q.Register("tick", func(context.Context, *queue.Job) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = queue.NewWorker(q, queue.WithPollWait(500*time.Millisecond)).Run(ctx) }()

	job, err := q.Enqueue(context.Background(), "tick", nil)
	s.Require().NoError(err)

	s.Eventually(func() bool {
		stored, err := q.Job(context.Background(), job.ID)
		return err == nil && stored.Status == queue.StatusFinished
	}, 30*time.Second, 100*time.Millisecond)
	s.Equal(int32(1), calls.Load())
}

func (s *KafkaBrokerSuite) TestLengthIsUnsupported() {
	broker := s.newBroker()

	_, err := broker.Len(context.Background())
	s.ErrorIs(err, sentinel.ErrUnsupported)
	s.ErrorIs(broker.Purge(context.Background()), sentinel.ErrUnsupported)
}
