package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chatterbox/internal/apperror"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveOp(t *testing.T) {
	before := testutil.ToFloat64(Operations.WithLabelValues("post_message", "empty_content"))
	ObserveOp("post_message", apperror.ErrEmptyContent)
	ObserveOp("post_message", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(Operations.WithLabelValues("post_message", "empty_content")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(Operations.WithLabelValues("post_message", "ok")), 1.0)
}

func TestHandlerExposesCollectors(t *testing.T) {
	BroadcastEvents.WithLabelValues("new_message").Inc()
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `chatterbox_broadcast_events_total{event="new_message"}`)
	assert.Contains(t, string(body), "chatterbox_ws_clients")
}
