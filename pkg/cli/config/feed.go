package config

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/remedy/pkg/adapter/feed"
	"github.com/urfave/cli/v3"
)

// Feed configures the optional external alert feed endpoint.
type Feed struct {
	url      string
	interval time.Duration
}

func (x *Feed) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "feed-url",
			Usage:       "HTTP endpoint serving alert summaries as JSON",
			Category:    "Feed",
			Sources:     cli.EnvVars("REMEDY_FEED_URL"),
			Destination: &x.url,
		},
		&cli.DurationFlag{
			Name:        "feed-interval",
			Usage:       "Polling interval for the alert feed",
			Category:    "Feed",
			Sources:     cli.EnvVars("REMEDY_FEED_INTERVAL"),
			Value:       2 * time.Minute,
			Destination: &x.interval,
		},
	}
}

func (x Feed) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", x.url),
		slog.Duration("interval", x.interval),
	)
}

func (x *Feed) Enabled() bool {
	return x.url != ""
}

func (x *Feed) Interval() time.Duration {
	return x.interval
}

func (x *Feed) Configure() (*feed.Collector, error) {
	return feed.New(x.url)
}
