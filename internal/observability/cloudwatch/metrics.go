package cloudwatch

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// PutMetricData accepts at most 1000 datums and 30 dimensions per datum.
const (
	maxMetricData = 1000
	maxDimensions = 30
)

// MetricsAPI is the subset of the CloudWatch client used by MetricsExporter.
type MetricsAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsExporter publishes a snapshot of a Prometheus registry as
// CloudWatch metrics. Counters and gauges map to one datum each;
// histograms become a _sum and a _count datum.
type MetricsExporter struct {
	client     MetricsAPI
	namespace  string
	dimensions map[string]string
	now        func() time.Time
}

// NewMetricsExporter creates an exporter writing to namespace. Every datum
// carries dimensions in addition to its own labels.
func NewMetricsExporter(client MetricsAPI, namespace string, dimensions map[string]string) *MetricsExporter {
	return &MetricsExporter{
		client:     client,
		namespace:  namespace,
		dimensions: dimensions,
		now:        time.Now,
	}
}

// Export gathers every metric family and sends it with PutMetricData.
func (e *MetricsExporter) Export(ctx context.Context, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	ts := aws.Time(e.now())
	var data []cwtypes.MetricDatum
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			dims := e.toDimensions(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				data = append(data, datum(mf.GetName(), m.GetCounter().GetValue(), cwtypes.StandardUnitCount, dims, ts))
			case dto.MetricType_GAUGE:
				data = append(data, datum(mf.GetName(), m.GetGauge().GetValue(), cwtypes.StandardUnitNone, dims, ts))
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				data = append(data,
					datum(mf.GetName()+"_sum", h.GetSampleSum(), cwtypes.StandardUnitNone, dims, ts),
					datum(mf.GetName()+"_count", float64(h.GetSampleCount()), cwtypes.StandardUnitCount, dims, ts),
				)
			}
		}
	}

	for start := 0; start < len(data); start += maxMetricData {
		end := min(start+maxMetricData, len(data))
		_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(e.namespace),
			MetricData: data[start:end],
		})
		if err != nil {
			return fmt.Errorf("failed to put metric data: %w", err)
		}
	}
	return nil
}

func (e *MetricsExporter) toDimensions(labels []*dto.LabelPair) []cwtypes.Dimension {
	dims := make([]cwtypes.Dimension, 0, len(e.dimensions)+len(labels))
	for name, value := range e.dimensions {
		dims = append(dims, cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)})
	}
	for _, l := range labels {
		// CloudWatch rejects empty dimension values.
		if l.GetValue() == "" {
			continue
		}
		dims = append(dims, cwtypes.Dimension{Name: aws.String(l.GetName()), Value: aws.String(l.GetValue())})
	}
	if len(dims) > maxDimensions {
		dims = dims[:maxDimensions]
	}
	return dims
}

func datum(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension, ts *time.Time) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Dimensions: dims,
		Timestamp:  ts,
	}
}
