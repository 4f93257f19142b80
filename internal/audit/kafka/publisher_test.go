//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"medgate/internal/audit"
	"medgate/internal/domain"
	"medgate/pkg/testutil/containers"
)

func TestPublisherProducesAuditMessages(t *testing.T) {
	ctx := context.Background()
	rp := containers.NewRedpandaContainer(t)

	p, err := NewPublisher(ctx, []string{rp.Broker}, "medgate.audit.test")
	require.NoError(t, err)
	t.Cleanup(p.Close)

	e := audit.Entry{
		ID:               "entry-1",
		RunID:            "run-1",
		LocalID:          "rec-1",
		Category:         domain.CategoryDuplicate,
		Message:          "duplicate identity number",
		OriginalCategory: domain.CategoryEnriched,
		OriginalMessage:  "enriched; document stem Ivanova-MP",
		Timestamp:        time.Now().UTC(),
	}
	require.NoError(t, p.Append(ctx, e))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics("medgate.audit.test"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	t.Cleanup(consumer.Close)

	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, []byte("rec-1"), records[0].Key, "messages are keyed by record identifier")

	var got map[string]any
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, "duplicate", got["category"])
	assert.Equal(t, "duplicate", got["channel"])
	assert.Equal(t, "enriched", got["original_category"])
}

func TestNewPublisherToleratesExistingTopic(t *testing.T) {
	ctx := context.Background()
	rp := containers.NewRedpandaContainer(t)

	first, err := NewPublisher(ctx, []string{rp.Broker}, "medgate.audit.existing")
	require.NoError(t, err)
	first.Close()

	second, err := NewPublisher(ctx, []string{rp.Broker}, "medgate.audit.existing")
	require.NoError(t, err)
	second.Close()
}
