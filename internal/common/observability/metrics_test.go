package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"office-affinity/internal/common/logger"
)

func TestNilObservabilityIsSafe(t *testing.T) {
	var o *Observability
	ctx, span := o.StartSpan(context.Background(), "noop")
	span.End()

	assert.NotNil(t, ctx)
	o.RecordSync(ctx, time.Millisecond, "demo", "synced")
	o.RecordGrouping(ctx, time.Millisecond, 3)
	o.Shutdown()
}

func TestNew_RecordsWithoutTracing(t *testing.T) {
	o := New(Options{ServiceName: "affinity-test", Logger: logger.NewTestLogger(t)})
	defer o.Shutdown()

	ctx, span := o.StartSpan(context.Background(), "grouping")
	o.RecordGrouping(ctx, 12*time.Millisecond, 2)
	o.RecordSync(ctx, 3*time.Millisecond, "connected", "synced")
	span.End()

	assert.Nil(t, o.tracerProvider)
	assert.NotNil(t, o.meterProvider)
}
