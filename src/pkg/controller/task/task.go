package task

import (
	"github.com/flynnkc/oci-offhours/src/pkg/action"
	rs "github.com/oracle/oci-go-sdk/v65/resourcesearch"
)

type Task struct {
	Action   action.Action
	Resource rs.ResourceSummary
}

// NewTask pairs an action with the resource it applies to
func NewTask(a action.Action, r rs.ResourceSummary) Task {
	return Task{Action: a, Resource: r}
}
