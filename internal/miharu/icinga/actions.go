package icinga

import (
	"context"
	"fmt"
)

// actions.go covers the /v1/actions endpoints plus the attribute-update
// path on /v1/objects used by the enable/disable flows. Every call is
// bounded by the client timeout; none are retried here, a failed action
// is reported back to the user instead.

// ScheduleDowntime schedules a fixed downtime for all objects matched by
// filter. For host-scoped downtimes all services on the host are
// included.
func (c *Client) ScheduleDowntime(ctx context.Context, kind ObjectKind, filter, author, comment string, start, end int64) error {
	body := map[string]any{
		"type":         kind.actionType(),
		"filter":       filter,
		"author":       author,
		"comment":      comment,
		"start_time":   start,
		"end_time":     end,
		"duration":     end - start,
		"fixed":        true,
		"all_services": true,
	}
	if err := c.do(ctx, "POST", "/v1/actions/schedule-downtime", false, body, nil); err != nil {
		return fmt.Errorf("schedule-downtime failed: %w", err)
	}
	return nil
}

// AcknowledgeProblem sets a sticky acknowledgement. An expiry of -1 or 0
// means the acknowledgement never expires.
func (c *Client) AcknowledgeProblem(ctx context.Context, kind ObjectKind, filter, author, comment string, expiry int64) error {
	body := map[string]any{
		"type":    kind.actionType(),
		"filter":  filter,
		"author":  author,
		"comment": comment,
		"sticky":  true,
	}
	if expiry > 0 {
		body["expiry"] = expiry
	}
	if err := c.do(ctx, "POST", "/v1/actions/acknowledge-problem", false, body, nil); err != nil {
		return fmt.Errorf("acknowledge-problem failed: %w", err)
	}
	return nil
}

// AddComment attaches a comment to every matched object.
func (c *Client) AddComment(ctx context.Context, kind ObjectKind, filter, author, comment string) error {
	body := map[string]any{
		"type":    kind.actionType(),
		"filter":  filter,
		"author":  author,
		"comment": comment,
	}
	if err := c.do(ctx, "POST", "/v1/actions/add-comment", false, body, nil); err != nil {
		return fmt.Errorf("add-comment failed: %w", err)
	}
	return nil
}

// RescheduleCheck forces an immediate re-check of the matched objects.
func (c *Client) RescheduleCheck(ctx context.Context, kind ObjectKind, filter string) error {
	body := map[string]any{
		"type":   kind.actionType(),
		"filter": filter,
	}
	if err := c.do(ctx, "POST", "/v1/actions/reschedule-check", false, body, nil); err != nil {
		return fmt.Errorf("reschedule-check failed: %w", err)
	}
	return nil
}

// SendCustomNotification triggers a custom notification for the matched
// objects.
func (c *Client) SendCustomNotification(ctx context.Context, kind ObjectKind, filter, author, comment string) error {
	body := map[string]any{
		"type":    kind.actionType(),
		"filter":  filter,
		"author":  author,
		"comment": comment,
	}
	if err := c.do(ctx, "POST", "/v1/actions/send-custom-notification", false, body, nil); err != nil {
		return fmt.Errorf("send-custom-notification failed: %w", err)
	}
	return nil
}

// DelayNotification postpones the next notification until the given time.
func (c *Client) DelayNotification(ctx context.Context, kind ObjectKind, filter string, until int64) error {
	body := map[string]any{
		"type":      kind.actionType(),
		"filter":    filter,
		"timestamp": until,
	}
	if err := c.do(ctx, "POST", "/v1/actions/delay-notification", false, body, nil); err != nil {
		return fmt.Errorf("delay-notification failed: %w", err)
	}
	return nil
}

// RemoveAcknowledgement clears the acknowledgement on the matched objects.
func (c *Client) RemoveAcknowledgement(ctx context.Context, kind ObjectKind, filter string) error {
	body := map[string]any{
		"type":   kind.actionType(),
		"filter": filter,
	}
	if err := c.do(ctx, "POST", "/v1/actions/remove-acknowledgement", false, body, nil); err != nil {
		return fmt.Errorf("remove-acknowledgement failed: %w", err)
	}
	return nil
}

// RemoveComment deletes a single comment addressed by its object name key
// (host!service!name).
func (c *Client) RemoveComment(ctx context.Context, name string) error {
	body := map[string]any{"comment": name}
	if err := c.do(ctx, "POST", "/v1/actions/remove-comment", false, body, nil); err != nil {
		return fmt.Errorf("remove-comment failed: %w", err)
	}
	return nil
}

// RemoveDowntime deletes a single downtime addressed by its object name
// key.
func (c *Client) RemoveDowntime(ctx context.Context, name string) error {
	body := map[string]any{"downtime": name}
	if err := c.do(ctx, "POST", "/v1/actions/remove-downtime", false, body, nil); err != nil {
		return fmt.Errorf("remove-downtime failed: %w", err)
	}
	return nil
}

// UpdateAttribute sets a runtime attribute (enable_notifications and
// friends) on every object matched by filter.
func (c *Client) UpdateAttribute(ctx context.Context, kind ObjectKind, filter, attr string, value bool) error {
	body := map[string]any{
		"filter": filter,
		"attrs":  map[string]any{attr: value},
	}
	if err := c.do(ctx, "POST", "/v1/objects/"+kind.endpoint(), false, body, nil); err != nil {
		return fmt.Errorf("attribute update for %s failed: %w", kind, err)
	}
	return nil
}

// UpdateGlobalAttribute sets a runtime attribute on the IcingaApplication
// object, toggling a feature for the whole daemon.
func (c *Client) UpdateGlobalAttribute(ctx context.Context, attr string, value bool) error {
	body := map[string]any{
		"attrs": map[string]any{attr: value},
	}
	if err := c.do(ctx, "POST", "/v1/objects/icingaapplications/app", false, body, nil); err != nil {
		return fmt.Errorf("global attribute update failed: %w", err)
	}
	return nil
}
