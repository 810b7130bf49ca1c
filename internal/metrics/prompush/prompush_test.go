package prompush

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"meshjoin/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "job", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "meshjoin"},
		{name: "explicit job name is preserved", jobName: "nightly", gatewayURL: "http://pushgateway:9091", wantJobName: "nightly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, b)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantJobName, b.jobName)
			assert.Equal(t, tt.gatewayURL, b.gatewayURL)
		})
	}
}

func TestIncCounterRoutesByName(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://unused")
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 3, metrics.Labels{"step": "flush", "status": "success"})
	b.IncCounter(metrics.RecordsTotal, 5, metrics.Labels{"kind": "resolved"})
	b.IncCounter(metrics.BatchesTotal, 2, nil)
	b.IncCounter(metrics.BatchesTotal, 0.5, nil)
	b.IncCounter(metrics.RefreshesTotal, 1, metrics.Labels{"dimension": "product"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	assert.Equal(t, 3.0, testutil.ToFloat64(b.stepCounter.WithLabelValues("flush", "success")))
	assert.Equal(t, 5.0, testutil.ToFloat64(b.recordCounter.WithLabelValues("resolved")))
	assert.Equal(t, 2.5, testutil.ToFloat64(b.batchCounter))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.refreshCounter.WithLabelValues("product")))
}

func TestObserveHistogramIgnoresOtherNames(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("job", "http://unused")
	require.NoError(t, err)

	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "segment", "status": "success"})
	b.ObserveHistogram("other", 1, metrics.Labels{"step": "segment", "status": "success"})

	assert.Equal(t, 1, testutil.CollectAndCount(b.stepDuration))
}

func TestFlushPushesToGateway(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBackend("nightly", srv.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.BatchesTotal, 1, nil)

	require.NoError(t, b.Flush())
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, strings.Contains(path.Load().(string), "/metrics/job/nightly"))
}
