package icinga

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// QueryOptions narrows an object query.
type QueryOptions struct {
	// StateFilters are complete filter expressions (e.g. "host.state != 0")
	// OR-ed together. Build them with ParseStateFilter or by hand.
	StateFilters []string
	// Names are free-text tokens substring-matched against object names.
	// For service-scoped kinds one token matches host OR service name, two
	// tokens are tried as (host, service) and (service, host); additional
	// tokens are ignored.
	Names []string
	// Acknowledged, when non-nil, restricts results to objects which are
	// (or are not) acknowledged. Only meaningful for Host/Service kinds.
	Acknowledged *bool
	// InDowntime, when non-nil, restricts results by downtime depth.
	InDowntime *bool
}

var hostAttrs = []string{
	"name", "state", "last_check_result", "acknowledgement", "downtime_depth",
	"last_state_change", "enable_notifications", "enable_active_checks",
	"enable_passive_checks", "enable_event_handler", "enable_flapping",
}

var commentAttrs = []string{
	"name", "host_name", "service_name", "author", "text",
	"entry_type", "entry_time", "expire_time",
}

var downtimeAttrs = []string{
	"name", "host_name", "service_name", "author", "comment",
	"entry_time", "start_time", "end_time", "duration", "fixed",
}

// QueryObjects resolves a kind plus options into matching objects. The
// second return value is the compiled filter expression, which callers
// can reuse for follow-up attribute updates against the exact same set.
// A 404 from the API is reported as zero results, not as an error.
func (c *Client) QueryObjects(ctx context.Context, kind ObjectKind, opts QueryOptions) ([]Object, string, error) {
	filter := c.buildFilter(kind, opts)

	body := map[string]any{"attrs": queryAttrs(kind)}
	if filter != "" {
		body["filter"] = filter
	}

	c.log.Debug("querying objects", "kind", kind, "filter", filter)

	var raw struct {
		Results []struct {
			Attrs json.RawMessage `json:"attrs"`
		} `json:"results"`
	}
	err := c.do(ctx, "POST", "/v1/objects/"+kind.endpoint(), true, body, &raw)
	if err != nil {
		if IsNotFound(err) {
			return nil, filter, nil
		}
		return nil, filter, fmt.Errorf("object query for %s failed: %w", kind, err)
	}

	objects := make([]Object, 0, len(raw.Results))
	for _, result := range raw.Results {
		obj, err := decodeObject(result.Attrs)
		if err != nil {
			return nil, filter, fmt.Errorf("object query for %s failed: %w", kind, err)
		}
		objects = append(objects, obj)
	}

	sortObjects(kind, objects)

	if c.cfg.MaxResults > 0 && len(objects) > c.cfg.MaxResults {
		objects = objects[:c.cfg.MaxResults]
	}

	c.log.Debug("object query returned", "kind", kind, "count", len(objects))
	return objects, filter, nil
}

// buildFilter compiles state filters, name tokens, the flag predicates and
// the globally configured scope filter into one expression.
func (c *Client) buildFilter(kind ObjectKind, opts QueryOptions) string {
	var parts []string

	if len(opts.StateFilters) > 0 {
		parts = append(parts, "("+strings.Join(opts.StateFilters, " || ")+")")
	}

	if expr := nameFilter(kind, opts.Names); expr != "" {
		parts = append(parts, expr)
	}

	v := kind.filterVar()
	if opts.Acknowledged != nil {
		op := "=="
		if *opts.Acknowledged {
			op = "!="
		}
		parts = append(parts, fmt.Sprintf("%s.acknowledgement %s 0", v, op))
	}
	if opts.InDowntime != nil {
		op := "=="
		if *opts.InDowntime {
			op = "!="
		}
		parts = append(parts, fmt.Sprintf("%s.downtime_depth %s 0", v, op))
	}

	// Comment and downtime endpoints return both host and service records;
	// pin the scope so Host variants never pick up service sub-records.
	if kind.IsComment() || kind.IsDowntime() {
		op := "=="
		if kind.IsServiceScoped() {
			op = "!="
		}
		parts = append(parts, fmt.Sprintf(`%s.service_name %s ""`, v, op))
	}

	filter := strings.Join(parts, " && ")

	if c.cfg.Filter != "" {
		if filter != "" {
			filter = "(" + filter + ") && " + c.cfg.Filter
		} else {
			filter = c.cfg.Filter
		}
	}
	return filter
}

// nameFilter builds the substring-match part of a query filter. Host
// queries OR all tokens against the host name; service-scoped queries use
// the one-token host-or-service and two-token pairing heuristics.
func nameFilter(kind ObjectKind, names []string) string {
	names = nonEmpty(names)
	if len(names) == 0 {
		return ""
	}

	v := kind.filterVar()
	hostVar := v + ".name"
	serviceVar := ""
	if kind.IsComment() || kind.IsDowntime() {
		hostVar = v + ".host_name"
		serviceVar = v + ".service_name"
	} else if kind == KindService {
		hostVar = "host.name"
		serviceVar = "service.name"
	}

	match := func(variable, name string) string {
		return fmt.Sprintf(`match("*%s*", %s)`, escapeFilterString(name), variable)
	}

	if !kind.IsServiceScoped() {
		exprs := make([]string, 0, len(names))
		for _, name := range names {
			exprs = append(exprs, match(hostVar, name))
		}
		return "(" + strings.Join(exprs, " || ") + ")"
	}

	if len(names) == 1 {
		return fmt.Sprintf("( %s || %s )", match(hostVar, names[0]), match(serviceVar, names[0]))
	}

	// Two or more tokens: try both (host, service) orderings with the
	// first two tokens; everything beyond that is ignored.
	return fmt.Sprintf("( ( %s && %s ) || ( %s && %s ) )",
		match(hostVar, names[0]), match(serviceVar, names[1]),
		match(hostVar, names[1]), match(serviceVar, names[0]))
}

// escapeFilterString escapes quotes and backslashes so user-supplied
// tokens cannot break out of the filter string literal.
func escapeFilterString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func nonEmpty(names []string) []string {
	out := names[:0:0]
	for _, n := range names {
		if strings.TrimSpace(n) != "" {
			out = append(out, n)
		}
	}
	return out
}

func queryAttrs(kind ObjectKind) []string {
	switch {
	case kind.IsComment():
		return commentAttrs
	case kind.IsDowntime():
		return downtimeAttrs
	case kind == KindService:
		return append([]string{"host_name"}, hostAttrs...)
	default:
		return hostAttrs
	}
}

func sortObjects(kind ObjectKind, objects []Object) {
	sort.SliceStable(objects, func(i, j int) bool {
		a, b := objects[i], objects[j]
		if a.HostName != b.HostName {
			return a.HostName < b.HostName
		}
		if a.ServiceName != b.ServiceName {
			return a.ServiceName < b.ServiceName
		}
		return a.Name < b.Name
	})
}

// objectAttrs mirrors the wire format of a single object's attrs map.
// Timestamps arrive as floating-point unix seconds.
type objectAttrs struct {
	Name            string  `json:"name"`
	HostName        string  `json:"host_name"`
	ServiceName     string  `json:"service_name"`
	State           float64 `json:"state"`
	Acknowledgement float64 `json:"acknowledgement"`
	DowntimeDepth   float64 `json:"downtime_depth"`
	LastStateChange float64 `json:"last_state_change"`
	LastCheckResult *struct {
		Output string `json:"output"`
	} `json:"last_check_result"`
	EnableNotifications bool `json:"enable_notifications"`
	EnableActiveChecks  bool `json:"enable_active_checks"`
	EnablePassiveChecks bool `json:"enable_passive_checks"`
	EnableEventHandler  bool `json:"enable_event_handler"`
	EnableFlapping      bool `json:"enable_flapping"`

	Author     string  `json:"author"`
	Text       string  `json:"text"`
	EntryType  float64 `json:"entry_type"`
	EntryTime  float64 `json:"entry_time"`
	ExpireTime float64 `json:"expire_time"`

	Comment   string  `json:"comment"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
	Fixed     bool    `json:"fixed"`
}

func decodeObject(raw json.RawMessage) (Object, error) {
	var attrs objectAttrs
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return Object{}, fmt.Errorf("failed to decode object attributes: %w", err)
	}

	obj := Object{
		Name:                attrs.Name,
		HostName:            attrs.HostName,
		ServiceName:         attrs.ServiceName,
		State:               int(attrs.State),
		Acknowledgement:     int(attrs.Acknowledgement),
		DowntimeDepth:       int(attrs.DowntimeDepth),
		LastStateChange:     int64(attrs.LastStateChange),
		EnableNotifications: attrs.EnableNotifications,
		EnableActiveChecks:  attrs.EnableActiveChecks,
		EnablePassiveChecks: attrs.EnablePassiveChecks,
		EnableEventHandler:  attrs.EnableEventHandler,
		EnableFlapping:      attrs.EnableFlapping,
		Author:              attrs.Author,
		Text:                attrs.Text,
		EntryType:           int(attrs.EntryType),
		EntryTime:           int64(attrs.EntryTime),
		ExpireTime:          int64(attrs.ExpireTime),
		Comment:             attrs.Comment,
		StartTime:           int64(attrs.StartTime),
		EndTime:             int64(attrs.EndTime),
		Duration:            int64(attrs.Duration),
		Fixed:               attrs.Fixed,
	}
	if attrs.LastCheckResult != nil {
		obj.Output = attrs.LastCheckResult.Output
	}
	return obj, nil
}
