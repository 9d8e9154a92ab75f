package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/oracle/oci-go-sdk/v65/common"
	rs "github.com/oracle/oci-go-sdk/v65/resourcesearch"

	"github.com/flynnkc/oci-offhours/src/pkg/action"
	"github.com/flynnkc/oci-offhours/src/pkg/controller/handler"
	"github.com/flynnkc/oci-offhours/src/pkg/controller/task"
	"github.com/flynnkc/oci-offhours/src/pkg/filter"
	"github.com/flynnkc/oci-offhours/src/pkg/policy"
)

// Structured search queries by policy resource type.
var queries = map[string]string{
	"instance":           "query instance resources",
	"dbsystem":           "query dbsystem resources",
	"autonomousdatabase": "query autonomousdatabase resources",
}

// TagController discovers tagged resources, applies a policy's time filters
// to them, and dispatches the policy's actions on the matching subset. It is
// the manager side of the filter contract.
type TagController struct {
	search  rs.ResourceSearchClient
	handler *handler.ResourceHandler
	log     *slog.Logger
	logDir  string
}

// NewTagController initializes clients and returns a valid controller.
// If any clients fail to initialize, return nil controller and error.
func NewTagController(opts ControllerOpts) (*TagController, error) {
	if opts.ConfigurationProvider == nil {
		return nil, ErrControllerOptions
	}

	c := TagController{
		logDir: opts.LogDir,
	}

	// Prefer an explicit log
	if opts.Log != nil {
		c.log = opts.Log
	} else {
		c.log = slog.Default()
	}

	s, err := rs.NewResourceSearchClientWithConfigurationProvider(
		opts.ConfigurationProvider)
	if err != nil {
		return nil, err
	}
	c.search = s

	h, err := handler.NewResourceHandler(handler.HandlerOpts{
		ConfigProvider: opts.ConfigurationProvider,
		Logger:         c.log,
		DryRun:         opts.DryRun,
	})
	if err != nil {
		return nil, err
	}
	c.handler = h

	return &c, nil
}

// GetModel reports the resource model served by this controller. Search
// results carry their id in the Identifier field.
func (tc *TagController) GetModel() filter.Model {
	return filter.Model{ID: "Identifier"}
}

// LogDir returns the directory for post-pass JSON dumps, empty when unset.
func (tc *TagController) LogDir() string {
	return tc.logDir
}

// Session hands out the tag-writing session backed by the handler.
func (tc *TagController) Session() filter.TagSession {
	return tc.handler
}

func (tc *TagController) SetRegion(region string) {
	tc.search.SetRegion(region)
	tc.handler.SetRegion(region)
}

// Search generates a structured search and returns a resource summary collection
func (tc *TagController) Search(query string) (rs.ResourceSummaryCollection, error) {
	rsc := rs.ResourceSummaryCollection{Items: make([]rs.ResourceSummary, 0)}

	tc.log.Debug("searching for resources",
		slog.String("query", query))
	details := rs.StructuredSearchDetails{
		Query: common.String(query),
	}

	request := rs.SearchResourcesRequest{
		SearchDetails: details,
		Limit:         common.Int(1000),
	}

	// Pagination by breaking when no next page
	for {
		r, err := tc.search.SearchResources(context.Background(), request)
		if err != nil {
			return rsc, err
		}

		rsc.Items = append(rsc.Items, r.Items...)

		if r.OpcNextPage == nil {
			break
		}
		request.Page = r.OpcNextPage
	}
	tc.log.Debug("finished search",
		slog.Int("num results", len(rsc.Items)))

	return rsc, nil
}

// RunPolicy applies one policy: discover resources of the policy's type, run
// its filters in order, then dispatch the policy action on the matches
// through the handler worker pool.
func (tc *TagController) RunPolicy(p policy.Policy) error {
	tc.log.Info("Beginning policy run",
		slog.String("policy", p.Name),
		slog.String("resource", p.Resource))

	query, ok := queries[p.Resource]
	if !ok {
		return fmt.Errorf("error unsupported resource type %s", p.Resource)
	}

	filters, err := p.BuildFilters(tc)
	if err != nil {
		return err
	}

	rsc, err := tc.Search(query)
	if err != nil {
		return fmt.Errorf("error in search: %w", err)
	}

	// Index summaries by identifier so matches can be dispatched.
	summaries := make(map[string]rs.ResourceSummary, len(rsc.Items))
	resources := make([]filter.Resource, 0, len(rsc.Items))
	for _, item := range rsc.Items {
		if item.Identifier == nil {
			continue
		}
		summaries[*item.Identifier] = item
		resources = append(resources, toResource(item))
	}

	// Filters chain: each narrows the previous selection.
	for _, f := range filters {
		resources = f.Process(resources)
	}
	tc.log.Info("Filters applied",
		slog.String("policy", p.Name),
		slog.Int("matched", len(resources)))

	act := actionFor(p.Actions)
	if act == action.NULL_ACTION {
		tc.log.Info("No action configured, policy run complete",
			slog.String("policy", p.Name))
		return nil
	}

	var wg sync.WaitGroup
	tasks := make(chan task.Task, numWorkers)

	// Start workers
	for range numWorkers {
		wg.Add(1)
		go func(tasks <-chan task.Task) {
			defer wg.Done()
			for t := range tasks {
				if err := tc.handler.HandleResource(t); err != nil {
					tc.log.Error("error handling resource",
						slog.Any("error", err))
				}
			}
		}(tasks)
	}

	// Send tasks
	for _, r := range resources {
		summary, ok := summaries[r.ID(tc.GetModel().ID)]
		if !ok {
			continue
		}
		tasks <- task.NewTask(act, summary)
	}

	close(tasks)
	wg.Wait()

	tc.log.Info("Finished policy run",
		slog.String("policy", p.Name))

	return nil
}

// toResource converts a search result into the record shape the filters
// consume. Freeform tags and defined tags (as namespace.key) both surface in
// the Tags list.
func toResource(item rs.ResourceSummary) filter.Resource {
	var tags []filter.Tag
	for k, v := range item.FreeformTags {
		tags = append(tags, filter.Tag{Key: k, Value: v})
	}
	for ns, kv := range item.DefinedTags {
		for k, v := range kv {
			tags = append(tags, filter.Tag{
				Key:   fmt.Sprintf("%s.%s", ns, k),
				Value: fmt.Sprint(v),
			})
		}
	}

	r := filter.Resource{
		"Identifier": *item.Identifier,
		"Tags":       tags,
	}
	if item.DisplayName != nil {
		r["DisplayName"] = *item.DisplayName
	}
	if item.LifecycleState != nil {
		r["LifecycleState"] = *item.LifecycleState
	}
	if item.ResourceType != nil {
		r["ResourceType"] = *item.ResourceType
	}
	if item.CompartmentId != nil {
		r["CompartmentId"] = *item.CompartmentId
	}
	return r
}

// actionFor maps policy action names to the resource action. The first
// recognized name wins.
func actionFor(actions []string) action.Action {
	for _, a := range actions {
		switch a {
		case "stop", "suspend", "deactivate":
			return action.OFF
		case "start", "resume", "activate":
			return action.ON
		}
	}
	return action.NULL_ACTION
}
