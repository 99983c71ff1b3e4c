package icinga

import (
	"context"
	"encoding/json"
	"fmt"
)

// CIB holds the daemon-wide host/service counters from the CIB status
// component.
type CIB struct {
	NumHostsUp           float64 `json:"num_hosts_up"`
	NumHostsDown         float64 `json:"num_hosts_down"`
	NumHostsUnreachable  float64 `json:"num_hosts_unreachable"`
	NumHostsProblem      float64 `json:"num_hosts_problem"`
	NumHostsHandled      float64 `json:"num_hosts_handled"`
	NumHostsAcknowledged float64 `json:"num_hosts_acknowledged"`
	NumHostsInDowntime   float64 `json:"num_hosts_in_downtime"`

	NumServicesOK           float64 `json:"num_services_ok"`
	NumServicesWarning      float64 `json:"num_services_warning"`
	NumServicesCritical     float64 `json:"num_services_critical"`
	NumServicesUnknown      float64 `json:"num_services_unknown"`
	NumServicesProblem      float64 `json:"num_services_problem"`
	NumServicesHandled      float64 `json:"num_services_handled"`
	NumServicesAcknowledged float64 `json:"num_services_acknowledged"`
	NumServicesInDowntime   float64 `json:"num_services_in_downtime"`
}

// UnhandledHosts is the number of problem hosts nobody has taken care of.
func (c *CIB) UnhandledHosts() int {
	return int(c.NumHostsProblem - c.NumHostsHandled)
}

// UnhandledServices is the number of problem services nobody has taken
// care of.
func (c *CIB) UnhandledServices() int {
	return int(c.NumServicesProblem - c.NumServicesHandled)
}

// AppInfo is the IcingaApplication status component.
type AppInfo struct {
	NodeName            string  `json:"node_name"`
	Version             string  `json:"version"`
	ProgramStart        float64 `json:"program_start"`
	EnableNotifications bool    `json:"enable_notifications"`
	EnableEventHandlers bool    `json:"enable_event_handlers"`
	EnableFlapping      bool    `json:"enable_flapping"`
	EnableHostChecks    bool    `json:"enable_host_checks"`
	EnableServiceChecks bool    `json:"enable_service_checks"`
	EnablePerfdata      bool    `json:"enable_perfdata"`
}

// APIListenerInfo is the cluster connectivity part of the ApiListener
// status component.
type APIListenerInfo struct {
	NumEndpoints          float64  `json:"num_endpoints"`
	NotConnectedEndpoints []string `json:"not_conn_endpoints"`
}

// DaemonStatus aggregates the status components the bot reports on.
type DaemonStatus struct {
	App      *AppInfo
	Listener *APIListenerInfo
}

type statusResult struct {
	Name   string          `json:"name"`
	Status json.RawMessage `json:"status"`
}

// CIBStatus requests the CIB status component.
func (c *Client) CIBStatus(ctx context.Context) (*CIB, error) {
	var raw struct {
		Results []statusResult `json:"results"`
	}
	if err := c.do(ctx, "GET", "/v1/status/CIB", false, nil, &raw); err != nil {
		return nil, fmt.Errorf("status query failed: %w", err)
	}
	if len(raw.Results) == 0 {
		return nil, fmt.Errorf("status query returned no CIB component")
	}
	var cib CIB
	if err := json.Unmarshal(raw.Results[0].Status, &cib); err != nil {
		return nil, fmt.Errorf("failed to decode CIB status: %w", err)
	}
	return &cib, nil
}

// DaemonStatus requests the full status list and extracts the
// IcingaApplication and ApiListener components. Missing components leave
// the corresponding field nil; callers decide how alarming that is.
func (c *Client) DaemonStatus(ctx context.Context) (*DaemonStatus, error) {
	var raw struct {
		Results []statusResult `json:"results"`
	}
	if err := c.do(ctx, "GET", "/v1/status", false, nil, &raw); err != nil {
		return nil, fmt.Errorf("status query failed: %w", err)
	}

	status := &DaemonStatus{}
	for _, result := range raw.Results {
		switch result.Name {
		case "IcingaApplication":
			var wrapper struct {
				IcingaApplication struct {
					App AppInfo `json:"app"`
				} `json:"icingaapplication"`
			}
			if err := json.Unmarshal(result.Status, &wrapper); err != nil {
				return nil, fmt.Errorf("failed to decode IcingaApplication status: %w", err)
			}
			status.App = &wrapper.IcingaApplication.App
		case "ApiListener":
			var wrapper struct {
				API APIListenerInfo `json:"api"`
			}
			if err := json.Unmarshal(result.Status, &wrapper); err != nil {
				return nil, fmt.Errorf("failed to decode ApiListener status: %w", err)
			}
			status.Listener = &wrapper.API
		}
	}
	return status, nil
}
