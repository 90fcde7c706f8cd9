// Package github implements the issue tracker on GitHub Issues. Each tracked
// issue carries a hidden key marker in its body so repeated cycles update the
// same GitHub issue instead of opening duplicates.
package github

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v74/github"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/remedy/pkg/domain/interfaces"
	"github.com/secmon-lab/remedy/pkg/domain/model/errs"
	"github.com/secmon-lab/remedy/pkg/domain/types"
	"github.com/secmon-lab/remedy/pkg/utils/logging"
)

const keyMarkerFormat = "<!-- remedy-key: %s -->"

var severityLabels = map[types.AlertSeverity]string{
	types.AlertSeverityMinor:    "severity:minor",
	types.AlertSeverityWarning:  "severity:warning",
	types.AlertSeverityCritical: "severity:critical",
}

type Tracker struct {
	client *github.Client
	owner  string
	repo   string
}

var _ interfaces.Tracker = &Tracker{}

// New authenticates as a GitHub App installation.
func New(appID, installationID int64, privateKey []byte, owner, repo string) (*Tracker, error) {
	if owner == "" || repo == "" {
		return nil, goerr.New("github owner and repo are required", goerr.Tag(errs.TagConfiguration))
	}

	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create GitHub App transport", goerr.Tag(errs.TagConfiguration))
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}

	return &Tracker{
		client: github.NewClient(httpClient),
		owner:  owner,
		repo:   repo,
	}, nil
}

// NewWithToken authenticates with a personal access token.
func NewWithToken(token, owner, repo string) (*Tracker, error) {
	if token == "" || owner == "" || repo == "" {
		return nil, goerr.New("github token, owner and repo are required", goerr.Tag(errs.TagConfiguration))
	}
	return &Tracker{
		client: github.NewClient(nil).WithAuthToken(token),
		owner:  owner,
		repo:   repo,
	}, nil
}

// NewWithClient is used by tests.
func NewWithClient(client *github.Client, owner, repo string) *Tracker {
	return &Tracker{client: client, owner: owner, repo: repo}
}

func (x *Tracker) CreateOrUpdateIssue(ctx context.Context, key types.IssueKey, title, body string, severity types.AlertSeverity) (int, error) {
	logger := logging.From(ctx)

	number, err := x.FindByIssueKey(ctx, key)
	if err != nil {
		return 0, err
	}

	markedBody := body + "\n\n" + fmt.Sprintf(keyMarkerFormat, key)

	if number > 0 {
		comment := &github.IssueComment{Body: github.Ptr(body)}
		if _, _, err := x.client.Issues.CreateComment(ctx, x.owner, x.repo, number, comment); err != nil {
			return 0, goerr.Wrap(err, "failed to comment on GitHub issue",
				goerr.V("number", number),
				goerr.Tag(errs.TagExternal),
			)
		}
		logger.Debug("updated GitHub issue", "number", number, "key", key)
		return number, nil
	}

	labels := []string{"remedy"}
	if label, ok := severityLabels[severity]; ok {
		labels = append(labels, label)
	}

	req := &github.IssueRequest{
		Title:  github.Ptr(title),
		Body:   github.Ptr(markedBody),
		Labels: &labels,
	}
	issue, _, err := x.client.Issues.Create(ctx, x.owner, x.repo, req)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to create GitHub issue",
			goerr.V("key", key),
			goerr.Tag(errs.TagExternal),
		)
	}

	logger.Info("created GitHub issue", "number", issue.GetNumber(), "key", key)
	return issue.GetNumber(), nil
}

func (x *Tracker) CloseIssue(ctx context.Context, number int, comment string) error {
	if comment != "" {
		c := &github.IssueComment{Body: github.Ptr(comment)}
		if _, _, err := x.client.Issues.CreateComment(ctx, x.owner, x.repo, number, c); err != nil {
			logging.From(ctx).Warn("failed to post closing comment",
				"number", number, "error", err,
			)
		}
	}

	req := &github.IssueRequest{
		State:       github.Ptr("closed"),
		StateReason: github.Ptr("completed"),
	}
	if _, _, err := x.client.Issues.Edit(ctx, x.owner, x.repo, number, req); err != nil {
		return goerr.Wrap(err, "failed to close GitHub issue",
			goerr.V("number", number),
			goerr.Tag(errs.TagExternal),
		)
	}
	return nil
}

// FindByIssueKey returns the open issue number carrying the key marker, or 0
// when none exists.
func (x *Tracker) FindByIssueKey(ctx context.Context, key types.IssueKey) (int, error) {
	query := fmt.Sprintf(`repo:%s/%s is:issue is:open in:body "remedy-key: %s"`, x.owner, x.repo, key)

	result, _, err := x.client.Search.Issues(ctx, query, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to search GitHub issues",
			goerr.V("key", key),
			goerr.Tag(errs.TagExternal),
		)
	}

	if len(result.Issues) == 0 {
		return 0, nil
	}
	return result.Issues[0].GetNumber(), nil
}
