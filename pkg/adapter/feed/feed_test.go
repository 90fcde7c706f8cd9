package feed_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/adapter/feed"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

const feedPayload = `{
	"timestamp": "2026-08-30T06:00:00Z",
	"hostname": "web-01",
	"issue_count": 1,
	"max_severity": "warning",
	"issues": [
		{"type": "disk", "severity": "warning", "subject": "/var", "current": 92, "threshold": 90}
	]
}`

func TestCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedPayload))
	}))
	defer srv.Close()

	collector := gt.R1(feed.New(srv.URL)).NoError(t)
	gt.Equal(t, collector.Source(), types.SourceFeed)

	summary := gt.R1(collector.Collect(t.Context())).NoError(t)
	gt.Equal(t, summary.Hostname, "web-01")
	gt.Equal(t, summary.MaxSeverity, types.AlertSeverityWarning)
	gt.A(t, summary.Issues).Length(1)
}

func TestCollectRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	collector := gt.R1(feed.New(srv.URL)).NoError(t)
	_, err := collector.Collect(t.Context())
	gt.Error(t, err)
}

func TestCollectRejectsMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"issue_count": 2, "issues": []}`))
	}))
	defer srv.Close()

	collector := gt.R1(feed.New(srv.URL)).NoError(t)
	_, err := collector.Collect(t.Context())
	gt.Error(t, err)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := feed.New("")
	gt.Error(t, err)
}
