//go:build integration

package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "notary/pkg/platform/audit"
	"notary/pkg/platform/audit/outbox"
	auditpostgres "notary/pkg/platform/audit/store/postgres"
	"notary/pkg/testutil/containers"
)

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, []outbox.Entry) error {
	return errors.New("broker unavailable")
}

type RelaySuite struct {
	suite.Suite
	postgres  *containers.PostgresContainer
	redpanda  *containers.RedpandaContainer
	outbox    *auditpostgres.Store
	publisher *outbox.KafkaPublisher
	topic     string
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())
	s.outbox = auditpostgres.New(s.postgres.DB)
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))

	s.topic = "notary.audit." + uuid.NewString()
	publisher, err := outbox.NewKafkaPublisher([]string{s.redpanda.Broker}, s.topic)
	s.Require().NoError(err)
	s.publisher = publisher
	s.Require().NoError(publisher.EnsureTopic(context.Background(), 1, 1))
	// A second call sees TopicAlreadyExists and succeeds.
	s.Require().NoError(publisher.EnsureTopic(context.Background(), 1, 1))
}

func (s *RelaySuite) TearDownTest() {
	s.publisher.Close()
}

func (s *RelaySuite) appendEvents(docID string, actions ...audit.AuditEvent) {
	events := make([]audit.Event, 0, len(actions))
	for _, action := range actions {
		events = append(events, audit.Event{
			ID:          uuid.New(),
			Category:    action.Category(),
			Timestamp:   time.Now().UTC(),
			Action:      string(action),
			AggregateID: docID,
			ActorID:     "C",
		})
	}
	s.Require().NoError(s.outbox.Append(context.Background(), events...))
}

func (s *RelaySuite) consume(n int) []*kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < n {
		fetches := client.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out waiting for records")
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	return records
}

func header(r *kgo.Record, key string) string {
	for _, h := range r.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (s *RelaySuite) TestRelaysInOrderAndMarksPublished() {
	s.appendEvents("1", audit.EventDocumentCreated, audit.EventDocumentStatusChanged)
	s.appendEvents("1", audit.EventDocumentSigned)

	relay, err := outbox.NewRelay(s.postgres.DB, s.publisher, outbox.WithBatchSize(10))
	s.Require().NoError(err)

	n, err := relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(3, n)

	pending, err := relay.Pending(context.Background())
	s.Require().NoError(err)
	s.Equal(0, pending)

	records := s.consume(3)
	s.Require().Len(records, 3)
	for _, r := range records {
		s.Equal("1", string(r.Key))
		s.Equal("document", header(r, "aggregate_type"))
		s.NotEmpty(header(r, "event_id"))
	}
	s.Equal("document_created", header(records[0], "event_type"))
	s.Equal("document_status_changed", header(records[1], "event_type"))
	s.Equal("document_signed", header(records[2], "event_type"))

	event, err := auditpostgres.DecodePayload(records[0].Value)
	s.Require().NoError(err)
	s.Equal("document_created", event.Action)
	s.Equal(audit.CategoryCompliance, event.Category)

	n, err = relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RelaySuite) TestBatchesDrainAcrossCalls() {
	s.appendEvents("2", audit.EventDocumentCreated, audit.EventDocumentStatusChanged, audit.EventDocumentRevoked)

	relay, err := outbox.NewRelay(s.postgres.DB, s.publisher, outbox.WithBatchSize(2))
	s.Require().NoError(err)

	n, err := relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)
	n, err = relay.RelayOnce(context.Background())
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *RelaySuite) TestPublishFailureLeavesRowsPending() {
	s.appendEvents("3", audit.EventDocumentCreated)

	relay, err := outbox.NewRelay(s.postgres.DB, failingPublisher{})
	s.Require().NoError(err)

	_, err = relay.RelayOnce(context.Background())
	s.Require().Error(err)

	pending, err := relay.Pending(context.Background())
	s.Require().NoError(err)
	s.Equal(1, pending)
}

func (s *RelaySuite) TestRunStopsOnCancel() {
	s.appendEvents("4", audit.EventDocumentCreated)

	relay, err := outbox.NewRelay(s.postgres.DB, s.publisher, outbox.WithPollInterval(50*time.Millisecond))
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	s.Eventually(func() bool {
		pending, err := relay.Pending(context.Background())
		return err == nil && pending == 0
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("relay did not stop")
	}
}
