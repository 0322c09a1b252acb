package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/zonemap/internal/chunk"
	"github.com/sells-group/zonemap/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	collector := NewCollector(chunk.NewSlot(), NewMetrics(), nil)
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, StaleAfterSecs: 300}
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	collector := NewCollector(chunk.NewSlot(), nil, nil)
	checker := NewChecker(collector, NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.NotNil(t, checker)

	// Start and immediately cancel to verify it doesn't panic.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_Check(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < 3; i++ {
		m.ObserveCycle(chunk.OutcomeFailed, 9, 9, time.Millisecond)
	}
	collector := NewCollector(chunk.NewSlot(), m, nil)
	cfg := config.MonitoringConfig{FailureThreshold: 3}
	checker := NewChecker(collector, NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background(), zap.NewNop())
	if assert.Len(t, alerts, 1) {
		assert.Equal(t, AlertRefreshFailing, alerts[0].Type)
	}

	m.ObserveCycle(chunk.OutcomeCommitted, 9, 0, time.Millisecond)
	assert.Empty(t, checker.Check(context.Background(), zap.NewNop()))
}
