package cartstore

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/norun9/gomarketplace-cart/cartstore"

type storeMetrics struct {
	writes        metric.Int64Counter
	writeFailures metric.Int64Counter
	loadFailures  metric.Int64Counter
}

func newStoreMetrics(mp metric.MeterProvider, log logrus.FieldLogger) *storeMetrics {
	meter := mp.Meter(meterName)
	fallback := noop.NewMeterProvider().Meter(meterName)

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.WithError(err).Warnf("cartstore: creating counter %s", name)
			c, _ = fallback.Int64Counter(name)
		}
		return c
	}

	return &storeMetrics{
		writes:        counter("cart.persist.writes", "Cart records written to the key-value store"),
		writeFailures: counter("cart.persist.failures", "Cart record writes that failed"),
		loadFailures:  counter("cart.load.failures", "Cart record reads or decodes that failed at startup"),
	}
}

func (m *storeMetrics) recordWrite(ctx context.Context, key string, err error) {
	attrs := metric.WithAttributes(attribute.String("cart.key", key))
	m.writes.Add(ctx, 1, attrs)
	if err != nil {
		m.writeFailures.Add(ctx, 1, attrs)
	}
}
