package icinga

import (
	"reflect"
	"testing"
)

func TestParseStateFilter(t *testing.T) {
	tests := []struct {
		name    string
		kind    ObjectKind
		message string
		want    StateFilter
	}{
		{
			"default problem filter for services",
			KindService, "",
			StateFilter{States: []string{"service.state != 0"}},
		},
		{
			"default problem filter for hosts",
			KindHost, "",
			StateFilter{States: []string{"host.state != 0"}},
		},
		{
			"explicit states",
			KindService, "warn crit",
			StateFilter{States: []string{"service.state == 1", "service.state == 2"}},
		},
		{
			"duplicate state collapsed",
			KindService, "warning warn",
			StateFilter{States: []string{"service.state == 1"}},
		},
		{
			"all keyword",
			KindHost, "all",
			StateFilter{All: true},
		},
		{
			"problems keyword",
			KindService, "problems",
			StateFilter{Problems: true, States: []string{"service.state != 0"}},
		},
		{
			"host keyword on service command is invalid",
			KindService, "down ntp",
			StateFilter{Invalid: []string{"down"}, Names: []string{"ntp"}},
		},
		{
			"unreach alias",
			KindHost, "unreach",
			StateFilter{States: []string{"host.state == 2"}},
		},
		{
			"names only skip default state filter",
			KindService, "webserver nginx",
			StateFilter{Names: []string{"webserver", "nginx"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseStateFilter(tt.kind, tt.message)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseStateFilter(%s, %q) = %+v, want %+v", tt.kind, tt.message, got, tt.want)
			}
		})
	}
}

func TestNameFilter(t *testing.T) {
	tests := []struct {
		name  string
		kind  ObjectKind
		names []string
		want  string
	}{
		{"no names", KindHost, nil, ""},
		{
			"host single token",
			KindHost, []string{"web"},
			`(match("*web*", host.name))`,
		},
		{
			"host multiple tokens ORed",
			KindHost, []string{"web", "db"},
			`(match("*web*", host.name) || match("*db*", host.name))`,
		},
		{
			"service single token matches host or service",
			KindService, []string{"ntp"},
			`( match("*ntp*", host.name) || match("*ntp*", service.name) )`,
		},
		{
			"service two tokens tried in both orders",
			KindService, []string{"web", "ntp"},
			`( ( match("*web*", host.name) && match("*ntp*", service.name) ) || ( match("*ntp*", host.name) && match("*web*", service.name) ) )`,
		},
		{
			"comment kind uses record variables",
			KindServiceComment, []string{"web", "ntp"},
			`( ( match("*web*", comment.host_name) && match("*ntp*", comment.service_name) ) || ( match("*ntp*", comment.host_name) && match("*web*", comment.service_name) ) )`,
		},
		{
			"quotes are escaped",
			KindHost, []string{`a"b`},
			`(match("*a\"b*", host.name))`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nameFilter(tt.kind, tt.names); got != tt.want {
				t.Errorf("nameFilter(%s, %v) = %q, want %q", tt.kind, tt.names, got, tt.want)
			}
		})
	}
}

func TestBuildFilterFlagsAndScope(t *testing.T) {
	c := New(Config{URL: "https://icinga:5665", Filter: `host.zone == "dmz"`})

	ack := false
	filter := c.buildFilter(KindService, QueryOptions{
		StateFilters: []string{"service.state != 0"},
		Acknowledged: &ack,
		InDowntime:   &ack,
	})
	want := `(service.state != 0) && service.acknowledgement == 0 && service.downtime_depth == 0`
	if filter != "("+want+`) && host.zone == "dmz"` {
		t.Errorf("unexpected filter: %q", filter)
	}
}

func TestBuildFilterPinsCommentScope(t *testing.T) {
	c := New(Config{URL: "https://icinga:5665"})

	host := c.buildFilter(KindHostComment, QueryOptions{})
	if host != `comment.service_name == ""` {
		t.Errorf("host comment scope = %q", host)
	}
	service := c.buildFilter(KindServiceDowntime, QueryOptions{})
	if service != `downtime.service_name != ""` {
		t.Errorf("service downtime scope = %q", service)
	}
}

func TestIsProblemFilter(t *testing.T) {
	if !IsProblemFilter([]string{"host.state != 0"}) {
		t.Error("expected true for default host problem filter")
	}
	if IsProblemFilter([]string{"host.state == 1"}) {
		t.Error("expected false for explicit state filter")
	}
	if IsProblemFilter([]string{"host.state != 0", "host.state == 1"}) {
		t.Error("expected false for combined filters")
	}
}

func TestObjectKey(t *testing.T) {
	svc := Object{HostName: "web01", ServiceName: "ping", Name: "dt-1"}
	if got := svc.ObjectKey(); got != "web01!ping!dt-1" {
		t.Errorf("service ObjectKey = %q", got)
	}
	host := Object{HostName: "web01", Name: "dt-1"}
	if got := host.ObjectKey(); got != "web01!dt-1" {
		t.Errorf("host ObjectKey = %q", got)
	}
}
