// Package feed polls an external HTTP endpoint that publishes alert
// summaries in the canonical JSON form.
package feed

import (
	"context"
	"net/http"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/alert"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/safe"
)

type Collector struct {
	url    string
	client *http.Client
}

var _ interfaces.Collector = &Collector{}

type Option func(*Collector)

// WithHTTPClient replaces the HTTP client, used by tests.
func WithHTTPClient(client *http.Client) Option {
	return func(x *Collector) {
		x.client = client
	}
}

func New(url string, opts ...Option) (*Collector, error) {
	if url == "" {
		return nil, goerr.New("feed URL is required", goerr.Tag(errs.TagConfiguration))
	}
	x := &Collector{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x, nil
}

func (x *Collector) Source() types.AlertSource {
	return types.SourceFeed
}

func (x *Collector) Collect(ctx context.Context) (*alert.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.url, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build feed request", goerr.V("url", x.url))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch alert feed",
			goerr.V("url", x.url),
			goerr.Tag(errs.TagExternal),
		)
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("alert feed returned non-200",
			goerr.V("url", x.url),
			goerr.V("status", resp.StatusCode),
			goerr.Tag(errs.TagExternal),
		)
	}

	summary, err := alert.Decode(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid alert feed payload", goerr.V("url", x.url))
	}
	return summary, nil
}
