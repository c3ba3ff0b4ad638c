package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMetricsAPI struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeMetricsAPI) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, in)
	return &cloudwatch.PutMetricDataOutput{}, f.err
}

func findDatum(data []cwtypes.MetricDatum, name string) (cwtypes.MetricDatum, bool) {
	for _, d := range data {
		if aws.ToString(d.MetricName) == name {
			return d, true
		}
	}
	return cwtypes.MetricDatum{}, false
}

func TestMetricsExporter_Export(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "runs_total"}, []string{"status"})
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "duration_seconds"})
	reg.MustRegister(counter, hist)
	counter.WithLabelValues("succeeded").Add(2)
	hist.Observe(1.5)
	hist.Observe(2.5)

	api := &fakeMetricsAPI{}
	e := NewMetricsExporter(api, "SportsData/Pipeline", map[string]string{"env": "test"})
	e.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, e.Export(context.Background(), reg))
	require.Len(t, api.inputs, 1)
	assert.Equal(t, "SportsData/Pipeline", aws.ToString(api.inputs[0].Namespace))

	data := api.inputs[0].MetricData
	runs, ok := findDatum(data, "runs_total")
	require.True(t, ok)
	assert.Equal(t, 2.0, aws.ToFloat64(runs.Value))
	assert.Equal(t, cwtypes.StandardUnitCount, runs.Unit)
	assert.Len(t, runs.Dimensions, 2)

	sum, ok := findDatum(data, "duration_seconds_sum")
	require.True(t, ok)
	assert.Equal(t, 4.0, aws.ToFloat64(sum.Value))

	count, ok := findDatum(data, "duration_seconds_count")
	require.True(t, ok)
	assert.Equal(t, 2.0, aws.ToFloat64(count.Value))
}

func TestMetricsExporter_Batches(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "hits_total"}, []string{"n"})
	reg.MustRegister(counter)
	for i := 0; i < 1500; i++ {
		counter.WithLabelValues(fmt.Sprintf("k%d", i)).Inc()
	}

	api := &fakeMetricsAPI{}
	require.NoError(t, NewMetricsExporter(api, "ns", nil).Export(context.Background(), reg))

	require.Len(t, api.inputs, 2)
	assert.Len(t, api.inputs[0].MetricData, 1000)
	assert.Len(t, api.inputs[1].MetricData, 500)
}

func TestMetricsExporter_Error(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "c_total"})
	reg.MustRegister(c)
	c.Inc()

	api := &fakeMetricsAPI{err: errors.New("throttled")}
	err := NewMetricsExporter(api, "ns", nil).Export(context.Background(), reg)

	assert.ErrorContains(t, err, "throttled")
}
