package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"citypulse/internal/types"
)

// Metrics records publish outcomes. The publisher treats metric emission as
// fire-and-forget; a metrics failure never affects delivery.
type Metrics interface {
	RecordPublish(ctx context.Context, domain types.Domain, status types.PublishStatus)
	RecordPublishLatency(ctx context.Context, domain types.Domain, elapsed time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits publish metrics to CloudWatch.
//
// Metrics emitted:
//   - NotificationPublish: Dims {Domain, Status} -- on every publish outcome
//   - NotificationPublishLatency: Dims {Domain} -- wall time per delivered intent
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

// RecordPublish emits one NotificationPublish datum.
func (m *CloudWatchMetrics) RecordPublish(ctx context.Context, domain types.Domain, status types.PublishStatus) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("NotificationPublish"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Domain"), Value: aws.String(string(domain))},
					{Name: aws.String("Status"), Value: aws.String(string(status))},
				},
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("failed to record publish metric",
			slog.String("domain", string(domain)),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}

// RecordPublishLatency emits one NotificationPublishLatency datum in
// milliseconds.
func (m *CloudWatchMetrics) RecordPublishLatency(ctx context.Context, domain types.Domain, elapsed time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("NotificationPublishLatency"),
				Value:      aws.Float64(float64(elapsed.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String("Domain"), Value: aws.String(string(domain))},
				},
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Warn("failed to record publish latency metric",
			slog.String("domain", string(domain)),
			slog.String("error", err.Error()))
	}
}

// NoopMetrics discards all metrics. Used when no namespace is configured.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordPublish(context.Context, types.Domain, types.PublishStatus) {}
func (NoopMetrics) RecordPublishLatency(context.Context, types.Domain, time.Duration) {}
