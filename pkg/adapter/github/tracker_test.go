package github_test

import (
	"testing"

	gh "github.com/google/go-github/v74/github"
	"github.com/m-mizutani/gt"
	"github.com/migueleliasweb/go-github-mock/src/mock"
	adapter "github.com/secmon-lab/remedy/pkg/adapter/github"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

func TestCreateIssueWhenNoneExists(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetSearchIssues,
			gh.IssuesSearchResult{Total: gh.Ptr(0)},
		),
		mock.WithRequestMatch(
			mock.PostReposIssuesByOwnerByRepo,
			gh.Issue{Number: gh.Ptr(42)},
		),
	)

	tracker := adapter.NewWithClient(gh.NewClient(mockedHTTPClient), "acme", "ops")
	key := types.NewIssueKey(types.SourceSystem, "disk", "/var")

	number := gt.R1(tracker.CreateOrUpdateIssue(t.Context(), key,
		"disk usage warning on /var", "usage 92% over threshold 90%",
		types.AlertSeverityWarning)).NoError(t)
	gt.Equal(t, number, 42)
}

func TestUpdateCommentsOnExistingIssue(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetSearchIssues,
			gh.IssuesSearchResult{
				Total:  gh.Ptr(1),
				Issues: []*gh.Issue{{Number: gh.Ptr(7)}},
			},
		),
		mock.WithRequestMatch(
			mock.PostReposIssuesCommentsByOwnerByRepoByIssueNumber,
			gh.IssueComment{ID: gh.Ptr(int64(100))},
		),
	)

	tracker := adapter.NewWithClient(gh.NewClient(mockedHTTPClient), "acme", "ops")
	key := types.NewIssueKey(types.SourceSystem, "disk", "/var")

	number := gt.R1(tracker.CreateOrUpdateIssue(t.Context(), key,
		"disk usage warning on /var", "still at 92%",
		types.AlertSeverityWarning)).NoError(t)
	gt.Equal(t, number, 7)
}

func TestCloseIssue(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.PostReposIssuesCommentsByOwnerByRepoByIssueNumber,
			gh.IssueComment{ID: gh.Ptr(int64(101))},
		),
		mock.WithRequestMatch(
			mock.PatchReposIssuesByOwnerByRepoByIssueNumber,
			gh.Issue{Number: gh.Ptr(7), State: gh.Ptr("closed")},
		),
	)

	tracker := adapter.NewWithClient(gh.NewClient(mockedHTTPClient), "acme", "ops")
	gt.NoError(t, tracker.CloseIssue(t.Context(), 7, "resolved: 3 consecutive clean checks"))
}

func TestFindByIssueKeyMissing(t *testing.T) {
	mockedHTTPClient := mock.NewMockedHTTPClient(
		mock.WithRequestMatch(
			mock.GetSearchIssues,
			gh.IssuesSearchResult{Total: gh.Ptr(0)},
		),
	)

	tracker := adapter.NewWithClient(gh.NewClient(mockedHTTPClient), "acme", "ops")
	key := types.NewIssueKey(types.SourceContainer, "container", "redis")

	number := gt.R1(tracker.FindByIssueKey(t.Context(), key)).NoError(t)
	gt.Equal(t, number, 0)
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := adapter.NewWithToken("", "acme", "ops")
	gt.Error(t, err)

	_, err = adapter.NewWithToken("ghp_dummy", "", "ops")
	gt.Error(t, err)
}
