package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/marcusai/insights-backend/internal/aggregator"
)

const defaultPublishTimeout = 15 * time.Second

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return p.Publisher.Publish(ctx, msg)
}

// PubSubNotifier broadcasts generated reports on a Pub/Sub topic so dashboard
// sessions can refresh without polling.
type PubSubNotifier struct {
	pub     publisher
	timeout time.Duration
}

// NewPubSubNotifier wraps a topic publisher.
func NewPubSubNotifier(pub *gcppubsub.Publisher) (*PubSubNotifier, error) {
	if pub == nil {
		return nil, fmt.Errorf("publisher required")
	}
	return &PubSubNotifier{
		pub:     &gcpPublisher{Publisher: pub},
		timeout: defaultPublishTimeout,
	}, nil
}

// NotifyReportGenerated publishes the full report as JSON with routing
// attributes, waiting for the server ack.
func (n *PubSubNotifier) NotifyReportGenerated(ctx context.Context, report *aggregator.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	platforms := make([]string, 0, len(report.Platforms))
	for platform := range report.Platforms {
		platforms = append(platforms, platform.String())
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"window_start": report.Window.Start.Format("2006-01-02"),
			"window_end":   report.Window.End.Format("2006-01-02"),
			"generated_at": report.GeneratedAt.Format(time.RFC3339Nano),
			"platforms":    strings.Join(platforms, ","),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	result := n.pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publisher returned nil result")
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publishing report: %w", err)
	}
	return nil
}

var _ Notifier = (*PubSubNotifier)(nil)
