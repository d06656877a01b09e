package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestAccessMetricsObserveCounters(t *testing.T) {
	m := Access()

	before := testutil.ToFloat64(m.policiesAdmitted.WithLabelValues("admitted"))
	m.ObservePolicyAdmitted("admitted")
	require.Equal(t, before+1, testutil.ToFloat64(m.policiesAdmitted.WithLabelValues("admitted")))

	before = testutil.ToFloat64(m.decisions.WithLabelValues("1"))
	m.ObserveDecision(1)
	require.Equal(t, before+1, testutil.ToFloat64(m.decisions.WithLabelValues("1")))
}

func TestAccessMetricsObserveDecisionSecondsRecordsSample(t *testing.T) {
	m := Access()

	var before dto.Metric
	require.NoError(t, m.decisionSeconds.Write(&before))
	m.ObserveDecisionSeconds(0.01)
	var after dto.Metric
	require.NoError(t, m.decisionSeconds.Write(&after))
	require.Equal(t, before.GetHistogram().GetSampleCount()+1, after.GetHistogram().GetSampleCount())
}

func TestAccessMetricsNilReceiverIsNoop(t *testing.T) {
	var m *AccessMetrics
	require.NotPanics(t, func() {
		m.ObservePolicyAdmitted("admitted")
		m.ObserveDecision(1)
		m.ObserveDecisionSeconds(0.01)
	})
}
