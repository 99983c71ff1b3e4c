package icinga

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL, Username: "root", Password: "icinga"})
}

func TestQueryObjects(t *testing.T) {
	var gotPath, gotOverride string
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotOverride = r.Header.Get("X-HTTP-Method-Override")
		if user, pass, ok := r.BasicAuth(); !ok || user != "root" || pass != "icinga" {
			t.Errorf("missing or wrong basic auth: %s/%s", user, pass)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)

		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"attrs": map[string]any{
					"name": "ping", "host_name": "web02", "state": 2.0,
					"acknowledgement": 1.0,
					"last_check_result": map[string]any{"output": "timeout"},
				}},
				{"attrs": map[string]any{
					"name": "ping", "host_name": "web01", "state": 0.0,
					"last_check_result": map[string]any{"output": "rta 0.1ms"},
				}},
			},
		})
	})

	objects, filter, err := c.QueryObjects(context.Background(), KindService, QueryOptions{
		StateFilters: []string{"service.state != 0"},
	})
	if err != nil {
		t.Fatalf("QueryObjects: %v", err)
	}
	if gotPath != "/v1/objects/services" {
		t.Errorf("path = %q", gotPath)
	}
	if gotOverride != "GET" {
		t.Errorf("expected method override header, got %q", gotOverride)
	}
	if gotBody["filter"] != "(service.state != 0)" {
		t.Errorf("request filter = %v", gotBody["filter"])
	}
	if filter != "(service.state != 0)" {
		t.Errorf("returned filter = %q", filter)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(objects))
	}
	// Sorted by host name.
	if objects[0].HostName != "web01" || objects[1].HostName != "web02" {
		t.Errorf("unexpected order: %s, %s", objects[0].HostName, objects[1].HostName)
	}
	if objects[1].State != 2 || objects[1].Acknowledgement != 1 || objects[1].Output != "timeout" {
		t.Errorf("unexpected decode: %+v", objects[1])
	}
}

func TestQueryObjectsNotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"status": "No objects found."})
	})

	objects, _, err := c.QueryObjects(context.Background(), KindHost, QueryOptions{Names: []string{"nosuch"}})
	if err != nil {
		t.Fatalf("expected 404 to be treated as empty, got %v", err)
	}
	if len(objects) != 0 {
		t.Errorf("expected no objects, got %d", len(objects))
	}
}

func TestQueryObjectsMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"attrs": map[string]any{"name": "a"}},
				{"attrs": map[string]any{"name": "b"}},
				{"attrs": map[string]any{"name": "c"}},
			},
		})
	}))
	defer srv.Close()

	c := New(Config{URL: srv.URL, MaxResults: 2})
	objects, _, err := c.QueryObjects(context.Background(), KindHost, QueryOptions{})
	if err != nil {
		t.Fatalf("QueryObjects: %v", err)
	}
	if len(objects) != 2 {
		t.Errorf("expected MaxResults cap of 2, got %d", len(objects))
	}
}

func TestScheduleDowntime(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	})

	err := c.ScheduleDowntime(context.Background(), KindService, `host.name=="web01"`, "Alice", "maintenance", 100, 400)
	if err != nil {
		t.Fatalf("ScheduleDowntime: %v", err)
	}
	if gotPath != "/v1/actions/schedule-downtime" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["type"] != "Service" || gotBody["author"] != "Alice" || gotBody["comment"] != "maintenance" {
		t.Errorf("unexpected body: %v", gotBody)
	}
	if gotBody["duration"] != float64(300) || gotBody["fixed"] != true {
		t.Errorf("unexpected timing fields: %v", gotBody)
	}
}

func TestAcknowledgeProblemExpiry(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	})

	if err := c.AcknowledgeProblem(context.Background(), KindHost, "f", "Bob", "on it", 1234); err != nil {
		t.Fatalf("AcknowledgeProblem: %v", err)
	}
	if gotBody["expiry"] != float64(1234) || gotBody["sticky"] != true {
		t.Errorf("unexpected body: %v", gotBody)
	}

	// Decoding into a non-nil map merges keys, so reset between requests.
	gotBody = nil
	if err := c.AcknowledgeProblem(context.Background(), KindHost, "f", "Bob", "on it", 0); err != nil {
		t.Fatalf("AcknowledgeProblem: %v", err)
	}
	if _, present := gotBody["expiry"]; present {
		t.Error("expiry must be omitted for never-expiring acknowledgements")
	}
}

func TestUpdateGlobalAttribute(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
	})

	if err := c.UpdateGlobalAttribute(context.Background(), "enable_notifications", false); err != nil {
		t.Fatalf("UpdateGlobalAttribute: %v", err)
	}
	if gotPath != "/v1/objects/icingaapplications/app" {
		t.Errorf("path = %q", gotPath)
	}
	attrs, _ := gotBody["attrs"].(map[string]any)
	if attrs["enable_notifications"] != false {
		t.Errorf("unexpected attrs: %v", gotBody)
	}
}

func TestAPIErrorReported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"status": "boom"})
	})

	err := c.RescheduleCheck(context.Background(), KindHost, "f")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsNotFound(err) {
		t.Error("500 must not be reported as not-found")
	}
}

func TestCIBStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/status/CIB" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"name": "CIB", "status": map[string]any{
					"num_hosts_up": 10.0, "num_hosts_down": 2.0,
					"num_hosts_problem": 2.0, "num_hosts_handled": 1.0,
					"num_services_ok": 40.0, "num_services_critical": 3.0,
					"num_services_problem": 5.0, "num_services_handled": 2.0,
				}},
			},
		})
	})

	cib, err := c.CIBStatus(context.Background())
	if err != nil {
		t.Fatalf("CIBStatus: %v", err)
	}
	if cib.UnhandledHosts() != 1 {
		t.Errorf("UnhandledHosts = %d, want 1", cib.UnhandledHosts())
	}
	if cib.UnhandledServices() != 3 {
		t.Errorf("UnhandledServices = %d, want 3", cib.UnhandledServices())
	}
}

func TestDaemonStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"name": "IcingaApplication", "status": map[string]any{
					"icingaapplication": map[string]any{
						"app": map[string]any{
							"node_name": "icinga-master", "version": "r2.14.2-1",
							"enable_notifications": true,
						},
					},
				}},
				{"name": "ApiListener", "status": map[string]any{
					"api": map[string]any{
						"num_endpoints":      2.0,
						"not_conn_endpoints": []string{"satellite-2"},
					},
				}},
			},
		})
	})

	status, err := c.DaemonStatus(context.Background())
	if err != nil {
		t.Fatalf("DaemonStatus: %v", err)
	}
	if status.App == nil || status.App.NodeName != "icinga-master" {
		t.Fatalf("unexpected app info: %+v", status.App)
	}
	if status.Listener == nil || len(status.Listener.NotConnectedEndpoints) != 1 {
		t.Fatalf("unexpected listener info: %+v", status.Listener)
	}
}
