package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	MetricHTTPRequests = "HTTPRequests"
	MetricHTTPErrors   = "HTTPErrors"
	MetricHTTPLatency  = "HTTPLatency"
	MetricHTTP4xx      = "HTTP4xxErrors"
	MetricHTTP5xx      = "HTTP5xxErrors"

	MetricPurchasesRecorded    = "PurchasesRecorded"
	MetricDatasetSalesRecorded = "DatasetSalesRecorded"
	MetricWebhookDuplicates    = "WebhookDuplicates"
	MetricWebhookRejected      = "WebhookRejected"
	MetricAllocationsCompleted = "AllocationsCompleted"
	MetricAllocationFailures   = "AllocationFailures"
	MetricCheckoutsCreated     = "CheckoutsCreated"
)

type metricsAPI interface {
	PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsClient publishes marketplace metrics to CloudWatch. A nil or
// disabled client accepts every call and sends nothing.
type MetricsClient struct {
	api       metricsAPI
	namespace string
	enabled   bool
}

func NewMetricsClient(cfg sdkaws.Config, namespace string, enabled bool) *MetricsClient {
	return newMetricsClient(cloudwatch.NewFromConfig(cfg), namespace, enabled)
}

func newMetricsClient(api metricsAPI, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "Marketplace"
	}
	return &MetricsClient{api: api, namespace: namespace, enabled: enabled}
}

func (m *MetricsClient) IsEnabled() bool {
	return m != nil && m.enabled
}

// PutMetric sends one data point. Dimensions are sorted by name.
func (m *MetricsClient) PutMetric(ctx context.Context, name string, value float64, unit types.StandardUnit, dimensions map[string]string) error {
	if !m.IsEnabled() {
		return nil
	}

	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dims := make([]types.Dimension, len(keys))
	for i, k := range keys {
		dims[i] = types.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(dimensions[k])}
	}

	_, err := m.api.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(m.namespace),
		MetricData: []types.MetricDatum{{
			MetricName: sdkaws.String(name),
			Value:      sdkaws.Float64(value),
			Unit:       unit,
			Timestamp:  sdkaws.Time(time.Now()),
			Dimensions: dims,
		}},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", name, err)
	}
	return nil
}

func (m *MetricsClient) RecordCount(ctx context.Context, name string, dimensions map[string]string) error {
	return m.PutMetric(ctx, name, 1, types.StandardUnitCount, dimensions)
}

func (m *MetricsClient) RecordLatency(ctx context.Context, name string, d time.Duration, dimensions map[string]string) error {
	return m.PutMetric(ctx, name, float64(d.Milliseconds()), types.StandardUnitMilliseconds, dimensions)
}
