package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordTempRegistered("file", 1)
		m.RecordTempCleaned(0)
		m.RecordTempForgotten(0)
		m.RecordDeleteFailure()
		m.RecordRename("renamed")
		m.RecordOrphansSwept(3)
		m.RecordSpillMigration()
		m.RecordSpillWrite("memory", 10)
		m.RecordRunStarted()
		m.RecordRunFinished("completed", time.Second, true)
		m.RecordPumped("stdout", 10)

		timer := NewTimer(m)
		timer.Running()
		timer.Stop("completed")
	})

	assert.Empty(t, m.Snapshot().RunsByState)
}

func TestTempMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTempRegistered("file", 1)
	m.RecordTempRegistered("directory", 2)
	m.RecordTempCleaned(1)
	m.RecordDeleteFailure()
	m.RecordRename("copied")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TempRegistered.WithLabelValues("file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TempRegistered.WithLabelValues("directory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TempCleaned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TempActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TempDeleteFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TempRenames.WithLabelValues("copied")))
	assert.Equal(t, int64(1), m.Snapshot().TempActive)
}

func TestTimerRecordsRun(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	timer := NewTimer(m)
	timer.Running()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessActive))

	timer.Stop("interrupted")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ProcessActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProcessRuns.WithLabelValues("interrupted")))
	assert.Equal(t, int64(1), m.Snapshot().RunsByState["interrupted"])
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	require.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
