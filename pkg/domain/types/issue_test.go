package types_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/remedy/pkg/domain/types"
)

func TestNewIssueKeyDeterministic(t *testing.T) {
	a := types.NewIssueKey(types.SourceSystem, "disk", "/var/lib")
	b := types.NewIssueKey(types.SourceSystem, "disk", "/var/lib")
	gt.Equal(t, a, b)
	gt.Equal(t, a, types.IssueKey("system_disk_var_lib"))
}

func TestNewIssueKeyCollapsesCaseAndPunctuation(t *testing.T) {
	base := types.NewIssueKey(types.SourceSystem, "service", "nginx.service")

	gt.Equal(t, base, types.NewIssueKey(types.SourceSystem, "Service", "NGINX.Service"))
	gt.Equal(t, base, types.NewIssueKey(types.SourceSystem, "service", "nginx service"))
	gt.Equal(t, base, types.NewIssueKey(types.SourceSystem, "service", "nginx--service"))
}

func TestNewIssueKeyDistinguishesSubjects(t *testing.T) {
	a := types.NewIssueKey(types.SourceContainer, "container", "web-1")
	b := types.NewIssueKey(types.SourceContainer, "container", "web-2")
	gt.NotEqual(t, a, b)

	gt.NotEqual(t,
		types.NewIssueKey(types.SourceSystem, "disk", "/"),
		types.NewIssueKey(types.SourceFeed, "disk", "/"))
}

func TestIssueKeyValidate(t *testing.T) {
	gt.Error(t, types.EmptyIssueKey.Validate())
	gt.NoError(t, types.NewIssueKey(types.SourceSystem, "memory", "").Validate())
}
