// ABOUTME: Tests for the Prometheus recorder
// ABOUTME: Uses testutil to read counters and scrapes the HTTP handler

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.StepCompleted()
	r.StepCompleted()
	r.PreconditionSatisfied("notes.Drawer.test_open")
	r.PreconditionErrored("notes.Search.test_rotation")
	r.PropertyFinished("notes.Drawer.test_open", "fail")
	r.PropertyFinished("notes.Drawer.test_open", "fail")
	r.PropertyFinished("notes.Drawer.test_open", "pass")
	r.ArtifactSynced("screenshot")
	r.ArtifactSyncFailed("artifact")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.steps))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.preconditionSatisfied.WithLabelValues("notes.Drawer.test_open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.preconditionErrors.WithLabelValues("notes.Search.test_rotation")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.propertyOutcomes.WithLabelValues("notes.Drawer.test_open", "fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.propertyOutcomes.WithLabelValues("notes.Drawer.test_open", "pass")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.artifactsSynced.WithLabelValues("screenshot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.artifactSyncFailures.WithLabelValues("artifact")))
}

func TestRecorder_IndependentRegistries(t *testing.T) {
	a := NewRecorder()
	b := NewRecorder()
	a.StepCompleted()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.steps))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.steps))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.StepCompleted()
	r.PropertyFinished("p", "error")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "coven_explore_steps_total 1")
	assert.Contains(t, string(body), `coven_explore_property_executions_total{outcome="error",property="p"} 1`)
}
