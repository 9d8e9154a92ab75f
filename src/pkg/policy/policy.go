// Package policy loads YAML policy files and builds the filters they
// declare. Schema validation happens here, at the framework boundary, so the
// filters themselves only ever see typed configuration.
package policy

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/flynnkc/oci-offhours/src/pkg/filter"
)

// Filter type names recognized in policy files.
const (
	TypeOnHour           string = "onhour"
	TypeOffHour          string = "offhour"
	TypeBusinessHoursOn  string = "businesshours-on"
	TypeBusinessHoursOff string = "businesshours-off"
)

// Options recognized per filter variant. Any other option is a load error.
var allowedOptions = map[string]map[string]bool{
	TypeOnHour: {
		"tag": true, "default_tz": true, "weekends": true,
		"weekends-only": true, "opt-out": true,
		"onhour": true, "onminute": true,
	},
	TypeOffHour: {
		"tag": true, "default_tz": true, "weekends": true,
		"weekends-only": true, "opt-out": true,
		"offhour": true, "offminute": true,
	},
	TypeBusinessHoursOn: {
		"businesshours": true, "tag": true, "default_tz": true,
		"weekends": true, "weekends-only": true, "opt-out": true,
		"update-tags": true, "dry-run": true,
	},
	TypeBusinessHoursOff: {
		"businesshours": true, "tag": true, "default_tz": true,
		"weekends": true, "weekends-only": true, "opt-out": true,
		"update-tags": true, "dry-run": true,
	},
}

// File is a policy file.
type File struct {
	Policies []Policy `yaml:"policies"`
}

// Policy names a resource type, the filters selecting resources, and the
// actions to apply to the selection.
type Policy struct {
	Name     string       `yaml:"name"`
	Resource string       `yaml:"resource"`
	Filters  []FilterSpec `yaml:"filters"`
	Actions  []string     `yaml:"actions"`
}

// FilterSpec is one filter entry as written in YAML: either a bare type name
// or a map with a type key plus options.
type FilterSpec struct {
	Type    string
	Options map[string]any
}

// UnmarshalYAML accepts both the short string form and the map form.
func (f *FilterSpec) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		f.Type = name
		f.Options = map[string]any{}
		return nil
	}

	var m map[string]any
	if err := unmarshal(&m); err != nil {
		return err
	}

	t, ok := m["type"].(string)
	if !ok {
		return fmt.Errorf("filter entry missing type: %v", m)
	}
	delete(m, "type")
	f.Type = t
	f.Options = m
	return nil
}

// Load reads and decodes a policy file.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading policy file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("error decoding policy file: %w", err)
	}
	return &file, nil
}

// BuildFilters constructs and validates the policy's filters. Errors abort
// the policy load.
func (p *Policy) BuildFilters(manager filter.Manager) ([]filter.Filter, error) {
	filters := make([]filter.Filter, 0, len(p.Filters))
	for _, spec := range p.Filters {
		f, err := buildFilter(spec, manager)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", p.Name, err)
		}
		if err := f.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: filter %s: %w", p.Name, spec.Type, err)
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func buildFilter(spec FilterSpec, manager filter.Manager) (filter.Filter, error) {
	allowed, ok := allowedOptions[spec.Type]
	if !ok {
		return nil, fmt.Errorf("unknown filter type %q", spec.Type)
	}
	for key := range spec.Options {
		if !allowed[key] {
			return nil, fmt.Errorf("filter %s: unknown option %q", spec.Type, key)
		}
	}

	cfg, err := buildConfig(spec)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", spec.Type, err)
	}

	switch spec.Type {
	case TypeOnHour:
		return filter.NewOnHour(cfg, manager), nil
	case TypeOffHour:
		return filter.NewOffHour(cfg, manager), nil
	case TypeBusinessHoursOn:
		return filter.NewBusinessHoursOn(cfg, manager), nil
	default:
		return filter.NewBusinessHoursOff(cfg, manager), nil
	}
}

func buildConfig(spec FilterSpec) (filter.Config, error) {
	opts := spec.Options
	cfg := filter.Config{}
	var err error

	if cfg.Tag, err = stringOpt(opts, "tag"); err != nil {
		return cfg, err
	}
	if cfg.DefaultTZ, err = stringOpt(opts, "default_tz"); err != nil {
		return cfg, err
	}
	if cfg.Weekends, err = boolOpt(opts, "weekends"); err != nil {
		return cfg, err
	}
	weekendsOnly, err := boolOpt(opts, "weekends-only")
	if err != nil {
		return cfg, err
	}
	cfg.WeekendsOnly = weekendsOnly != nil && *weekendsOnly
	if cfg.OptOut, err = boolOpt(opts, "opt-out"); err != nil {
		return cfg, err
	}

	switch spec.Type {
	case TypeOnHour:
		if cfg.Hour, err = intOpt(opts, "onhour"); err != nil {
			return cfg, err
		}
		if cfg.Minute, err = intOpt(opts, "onminute"); err != nil {
			return cfg, err
		}
	case TypeOffHour:
		if cfg.Hour, err = intOpt(opts, "offhour"); err != nil {
			return cfg, err
		}
		if cfg.Minute, err = intOpt(opts, "offminute"); err != nil {
			return cfg, err
		}
	default:
		if cfg.BusinessHours, err = stringOpt(opts, "businesshours"); err != nil {
			return cfg, err
		}
		if cfg.BusinessHours == "" {
			cfg.BusinessHours = filter.DefaultBusinessHours
		}
		updateTags, err := boolOpt(opts, "update-tags")
		if err != nil {
			return cfg, err
		}
		cfg.UpdateTags = updateTags != nil && *updateTags
		dryRun, err := boolOpt(opts, "dry-run")
		if err != nil {
			return cfg, err
		}
		cfg.DryRun = dryRun != nil && *dryRun
	}

	return cfg, nil
}

func stringOpt(opts map[string]any, key string) (string, error) {
	v, ok := opts[key]
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %q must be a string, got %T", key, v)
	}
	return s, nil
}

func boolOpt(opts map[string]any, key string) (*bool, error) {
	v, ok := opts[key]
	if !ok {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("option %q must be a boolean, got %T", key, v)
	}
	return &b, nil
}

func intOpt(opts map[string]any, key string) (*int, error) {
	v, ok := opts[key]
	if !ok {
		return nil, nil
	}
	var n int
	switch i := v.(type) {
	case int:
		n = i
	case int64:
		n = int(i)
	case uint64:
		n = int(i)
	case float64:
		n = int(i)
	default:
		return nil, fmt.Errorf("option %q must be an integer, got %T", key, v)
	}
	return &n, nil
}
