// Package metrics records business counters to CloudWatch and HTTP metrics to Prometheus.
package metrics

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-storefront-ledger/internal/aws"
)

// Business metric names.
const (
	OrdersPlaced     = "OrdersPlaced"
	OrderRevenue     = "OrderRevenue"
	CouponsRedeemed  = "CouponsRedeemed"
	CheckoutRejected = "CheckoutRejected"
)

// Recorder receives business events.
type Recorder interface {
	Count(ctx context.Context, name string, value float64, dims map[string]string) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Count(context.Context, string, float64, map[string]string) error { return nil }

// CloudWatch publishes each event as one datum in a namespace.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewCloudWatch returns a CloudWatch recorder.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, nowFunc: time.Now}
}

func (c *CloudWatch) Count(ctx context.Context, name string, value float64, dims map[string]string) error {
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Value:      sdkaws.Float64(value),
		Unit:       cwtypes.StandardUnitCount,
		Timestamp:  sdkaws.Time(c.nowFunc()),
	}
	if name == OrderRevenue {
		datum.Unit = cwtypes.StandardUnitNone
	}
	for k, v := range dims {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(v),
		})
	}
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*CloudWatch)(nil)
)
