package stats

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// expvar map names are process-global, so the updater is constructed exactly
// once for the whole test run.
func TestStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")

	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")

	su.RegisterMetric("MessagesPersisted")
	su.Run()
	defer su.Stop()

	su.Incr("MessagesPersisted")
	su.Incr("MessagesPersisted")
	su.Decr("MessagesPersisted")

	assert.Eventually(t, func() bool {
		return su.vars.Get("MessagesPersisted").String() == "1"
	}, time.Second, 10*time.Millisecond, "expected counter to settle at 1")
}
