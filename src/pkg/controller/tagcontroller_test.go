package controller

import (
	"testing"

	"github.com/oracle/oci-go-sdk/v65/common"
	rs "github.com/oracle/oci-go-sdk/v65/resourcesearch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynnkc/oci-offhours/src/pkg/action"
	"github.com/flynnkc/oci-offhours/src/pkg/filter"
)

func TestToResource(t *testing.T) {
	item := rs.ResourceSummary{
		Identifier:     common.String("ocid1.instance.oc1..example"),
		DisplayName:    common.String("web-1"),
		LifecycleState: common.String("RUNNING"),
		ResourceType:   common.String("Instance"),
		FreeformTags: map[string]string{
			"maid_offhours": "off=(m-f,19);on=(m-f,7);tz=pt",
		},
		DefinedTags: map[string]map[string]interface{}{
			"Schedule": {"window": "off"},
		},
	}

	r := toResource(item)
	assert.Equal(t, "ocid1.instance.oc1..example", r.ID("Identifier"))
	assert.Equal(t, "RUNNING", r["LifecycleState"])

	tags := r.Tags()
	require.Len(t, tags, 2)

	byKey := make(map[string]string, len(tags))
	for _, tag := range tags {
		byKey[tag.Key] = tag.Value
	}
	assert.Equal(t, "off=(m-f,19);on=(m-f,7);tz=pt", byKey["maid_offhours"])
	assert.Equal(t, "off", byKey["Schedule.window"])
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, action.OFF, actionFor([]string{"stop"}))
	assert.Equal(t, action.OFF, actionFor([]string{"suspend"}))
	assert.Equal(t, action.ON, actionFor([]string{"start"}))
	assert.Equal(t, action.ON, actionFor([]string{"resume"}))
	assert.Equal(t, action.ON, actionFor([]string{"notify", "start"}))
	assert.Equal(t, action.NULL_ACTION, actionFor([]string{"notify"}))
	assert.Equal(t, action.NULL_ACTION, actionFor(nil))
}

func TestControllerModel(t *testing.T) {
	tc := TagController{}
	assert.Equal(t, filter.Model{ID: "Identifier"}, tc.GetModel())
}

func TestControllerRequiresProvider(t *testing.T) {
	_, err := NewTagController(ControllerOpts{})
	assert.ErrorIs(t, err, ErrControllerOptions)
}
