package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ansato/Miharu/internal/miharu/icinga"
	"github.com/ansato/Miharu/internal/miharu/reply"
)

// maxDetailedResults is the result count up to which the full per-object
// view with comments and downtimes is rendered instead of the condensed
// list.
const maxDetailedResults = 4

// IcingaSource is the part of the Icinga client the static command
// handlers need.
type IcingaSource interface {
	QueryObjects(ctx context.Context, kind icinga.ObjectKind, opts icinga.QueryOptions) ([]icinga.Object, string, error)
	CIBStatus(ctx context.Context) (*icinga.CIB, error)
	DaemonStatus(ctx context.Context) (*icinga.DaemonStatus, error)
}

// Handlers answers the commands that need no conversation state.
type Handlers struct {
	Registry *Registry
	Icinga   IcingaSource
	WebURL   string
	BotName  string
	Version  string
	Log      *slog.Logger
}

func (h *Handlers) log() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// Ping answers with a pong.
func (h *Handlers) Ping() *reply.Response {
	return reply.New("pong 🏓")
}

// Help renders the command list, or the detailed help for one command
// when a topic follows the help keyword.
func (h *Handlers) Help(topic string) *reply.Response {
	topic = strings.TrimSpace(topic)

	if topic == "" {
		resp := reply.New("Bot help")
		resp.AddBlock("**Following commands are implemented**")

		var lines []string
		for _, cmd := range h.Registry.All() {
			name := cmd.Name
			if len(cmd.Shortcuts) > 0 {
				name += " (" + strings.Join(cmd.Shortcuts, "|") + ")"
			}
			lines = append(lines, fmt.Sprintf("`%s` - %s", name, cmd.Short))
		}
		lines = append(lines, "", "For a detailed help type `help <command>`")
		resp.AddBlock(strings.Join(lines, "\n"))
		return resp
	}

	cmd, _, ok := h.Registry.Match(topic)
	if !ok {
		return reply.Error("Sorry, the supplied command is not implemented",
			fmt.Sprintf("I understood the command `%s`, which is not implemented! Try `help`.", topic))
	}

	resp := reply.New("Bot help")
	resp.AddBlockf("**Detailed help for command: %s**", cmd.Name)

	shortcut := "None"
	if len(cmd.Shortcuts) > 0 {
		shortcut = "`" + strings.Join(cmd.Shortcuts, "`, `") + "`"
	}

	var lines []string
	lines = append(lines,
		fmt.Sprintf("**Full command**: `%s`", cmd.Name),
		fmt.Sprintf("**Shortcut**: %s", shortcut),
		"",
		cmd.Long)

	if cmd.HasSubs() {
		var subs []string
		for _, sub := range cmd.Subs {
			name := sub.Name
			if len(sub.Shortcuts) > 0 {
				name += " (" + strings.Join(sub.Shortcuts, "|") + ")"
			}
			subs = append(subs, "• "+name)
		}
		lines = append(lines, "", "**Available sub commands**:", strings.Join(subs, "\n"))
	}

	resp.AddBlock(strings.Join(lines, "\n"))
	return resp
}

// StatusQuery answers the host status and service status commands.
func (h *Handlers) StatusQuery(ctx context.Context, cmd *Command, message string) *reply.Response {
	kind := cmd.StatusKind
	sf := icinga.ParseStateFilter(kind, strings.ToLower(message))

	if len(sf.Invalid) > 0 {
		h.log().Info("invalid status filter", "kind", kind, "invalid", sf.Invalid)
		var msg string
		if len(sf.Invalid) == 1 {
			msg = fmt.Sprintf("filter '%s' not valid for %s status commands,\ncheck `help` command",
				sf.Invalid[0], kind)
		} else {
			msg = fmt.Sprintf("filters '%s' and '%s' are not valid for %s status commands,\ncheck `help` command",
				strings.Join(sf.Invalid[:len(sf.Invalid)-1], "', '"), sf.Invalid[len(sf.Invalid)-1], kind)
		}
		return reply.Error("I'm having trouble understanding what you meant", msg)
	}

	opts := icinga.QueryOptions{StateFilters: sf.States, Names: sf.Names}
	if !sf.Problems && len(sf.Names) == 0 {
		// Default queries hide objects that are already handled.
		no := false
		opts.Acknowledged = &no
		opts.InDowntime = &no
	}

	objects, _, err := h.Icinga.QueryObjects(ctx, kind, opts)
	if err != nil {
		return reply.Error("Icinga request error", err.Error())
	}

	nameOpts := icinga.QueryOptions{Names: sf.Names}
	comments, _, err := h.Icinga.QueryObjects(ctx, kind.CommentVariant(), nameOpts)
	if err != nil {
		h.log().Warn("comment lookup failed", "error", err)
	}
	downtimes, _, err := h.Icinga.QueryObjects(ctx, kind.DowntimeVariant(), nameOpts)
	if err != nil {
		h.log().Warn("downtime lookup failed", "error", err)
	}

	if len(objects) == 0 {
		return reply.New(emptyStatusText(kind, sf))
	}

	resp := reply.New("Icinga status response")
	resp.AddBlockf("Found %d matching %s%s", len(objects),
		strings.ToLower(string(kind)), reply.Plural(len(objects), "", "s"))

	if len(objects) <= maxDetailedResults {
		for i := range objects {
			resp.AddBlock(h.renderDetailed(kind, &objects[i], comments, downtimes))
		}
		return resp
	}

	resp.AddBlock(h.renderCondensed(kind, objects, comments, downtimes))
	return resp
}

func emptyStatusText(kind icinga.ObjectKind, sf icinga.StateFilter) string {
	problematic := ""
	if icinga.IsProblemFilter(sf.States) {
		problematic = "problematic "
	}

	text := fmt.Sprintf("No %s%s objects ", problematic, strings.ToLower(string(kind)))
	if len(sf.Names) == 1 {
		text += fmt.Sprintf("for '%s' ", sf.Names[0])
	} else if len(sf.Names) > 1 {
		text += fmt.Sprintf("for '%s' and '%s' ",
			strings.Join(sf.Names[:len(sf.Names)-1], "', '"), sf.Names[len(sf.Names)-1])
	}
	text += "found."

	if problematic != "" {
		text += " Everything seems in good condition."
	}
	return text
}

func (h *Handlers) renderDetailed(kind icinga.ObjectKind, o *icinga.Object, comments, downtimes []icinga.Object) string {
	title := "**" + h.objectLink(kind, o) + "**"

	related := func(list []icinga.Object) []icinga.Object {
		var out []icinga.Object
		host, service := o.Name, ""
		if kind == icinga.KindService {
			host, service = o.HostName, o.Name
		}
		for _, item := range list {
			if item.HostName == host && item.ServiceName == service {
				out = append(out, item)
			}
		}
		return out
	}
	objectComments := related(comments)
	objectDowntimes := related(downtimes)

	if len(objectComments) > 0 {
		title += " 💬"
	}
	if len(objectDowntimes) > 0 {
		title += " 💤"
	}
	if o.State > 0 && (o.Acknowledgement >= 1 || o.DowntimeDepth >= 1) {
		title += " (handled)"
	}

	lines := []string{
		title,
		"**Output**: " + o.Output,
		"**Last state change**: " + reply.FormatUnix(o.LastStateChange),
		"**Status**: " + icinga.StateName(kind, o.State),
		"**Acknowledged**: " + yesNo(o.Acknowledgement >= 1),
		"**In downtime**: " + yesNo(o.DowntimeDepth >= 1),
		"**Event handlers**: " + reply.EnabledDisabled(o.EnableEventHandler),
		"**Flap detection**: " + reply.EnabledDisabled(o.EnableFlapping),
		"**Active checks**: " + reply.EnabledDisabled(o.EnableActiveChecks),
		"**Passive checks**: " + reply.EnabledDisabled(o.EnablePassiveChecks),
		"**Notifications**: " + reply.EnabledDisabled(o.EnableNotifications),
	}

	for _, c := range objectComments {
		kindName := "Comment"
		if c.EntryType == icinga.EntryTypeAcknowledgement {
			kindName = "Acknowledgement"
		}
		text := c.Text
		if c.ExpireTime > 0 {
			text += fmt.Sprintf(" (expires: %s)", reply.FormatUnix(c.ExpireTime))
		}
		lines = append(lines, fmt.Sprintf("**%s by %s (%s)**: `%s`",
			kindName, c.Author, reply.FormatUnix(c.EntryTime), text))
	}

	for _, d := range objectDowntimes {
		text := d.Comment
		if d.Fixed {
			text += fmt.Sprintf(" (fixed from %s until %s)",
				reply.FormatUnix(d.StartTime), reply.FormatUnix(d.EndTime))
		} else {
			text += fmt.Sprintf(" (flexible for %d minutes between %s and %s)",
				d.Duration/60, reply.FormatUnix(d.StartTime), reply.FormatUnix(d.EndTime))
		}
		lines = append(lines, fmt.Sprintf("**Downtime by %s (%s)**: `%s`",
			d.Author, reply.FormatUnix(d.EntryTime), text))
	}

	return strings.Join(lines, "\n")
}

func (h *Handlers) renderCondensed(kind icinga.ObjectKind, objects, comments, downtimes []icinga.Object) string {
	tags := func(host, service string, o *icinga.Object) string {
		out := ""
		if hasEntryFor(comments, host, service) {
			out += " 💬"
		}
		if hasEntryFor(downtimes, host, service) {
			out += " 💤"
		}
		if o.State > 0 && (o.Acknowledgement >= 1 || o.DowntimeDepth >= 1) {
			out += " (handled)"
		}
		return out
	}

	var lines []string
	if kind == icinga.KindHost {
		for i := range objects {
			o := &objects[i]
			lines = append(lines, fmt.Sprintf("%s %s%s: %s",
				stateEmoji(kind, o.State), h.hostLink(o.Name), tags(o.Name, "", o), o.Output))
		}
		return strings.Join(lines, "\n")
	}

	currentHost := ""
	for i := range objects {
		o := &objects[i]
		if o.HostName != currentHost {
			currentHost = o.HostName
			lines = append(lines, "**"+h.hostLink(currentHost)+"**")
		}
		lines = append(lines, fmt.Sprintf("  %s %s%s: %s",
			stateEmoji(kind, o.State), h.serviceLink(o.HostName, o.Name),
			tags(o.HostName, o.Name, o), o.Output))
	}
	return strings.Join(lines, "\n")
}

func hasEntryFor(list []icinga.Object, host, service string) bool {
	for _, item := range list {
		if item.HostName == host && item.ServiceName == service {
			return true
		}
	}
	return false
}

// Overview answers the status overview command with the CIB numbers.
func (h *Handlers) Overview(ctx context.Context) *reply.Response {
	cib, err := h.Icinga.CIBStatus(ctx)
	if err != nil {
		return reply.Error("Icinga request error", err.Error())
	}

	unhandled := cib.UnhandledHosts() + cib.UnhandledServices()
	resp := reply.New("Status Overview")
	resp.AddBlockf("**Found %s unhandled problem%s**",
		noOrNumber(unhandled), reply.Plural(unhandled, "", "s"))

	resp.AddBlockf("**%s unhandled host%s**\n"+
		"UP: %d | DOWN: %d | UNREACHABLE: %d\n"+
		"ACKNOWLEDGED: %d | IN DOWNTIME: %d",
		noOrNumber(cib.UnhandledHosts()), reply.Plural(cib.UnhandledHosts(), "", "s"),
		int(cib.NumHostsUp), int(cib.NumHostsDown), int(cib.NumHostsUnreachable),
		int(cib.NumHostsAcknowledged), int(cib.NumHostsInDowntime))

	resp.AddBlockf("**%s unhandled service%s**\n"+
		"OK: %d | WARNING: %d | CRITICAL: %d | UNKNOWN: %d\n"+
		"ACKNOWLEDGED: %d | IN DOWNTIME: %d",
		noOrNumber(cib.UnhandledServices()), reply.Plural(cib.UnhandledServices(), "", "s"),
		int(cib.NumServicesOK), int(cib.NumServicesWarning), int(cib.NumServicesCritical),
		int(cib.NumServicesUnknown), int(cib.NumServicesAcknowledged), int(cib.NumServicesInDowntime))

	return resp
}

// Daemon answers the icinga status command. With startup set, a shorter
// connectivity notice is rendered for the hello message after start.
func (h *Handlers) Daemon(ctx context.Context, startup bool) *reply.Response {
	header := "Icinga Status"
	if startup {
		header = fmt.Sprintf("Starting up %s (version: %s)", h.BotName, h.Version)
	}

	status, err := h.Icinga.DaemonStatus(ctx)
	if err != nil {
		errHeader := "Icinga connection error"
		if startup {
			errHeader += " during bot start"
		}
		return reply.Error(errHeader, err.Error())
	}

	var missing []string
	if status.App == nil {
		missing = append(missing, "IcingaApplication")
	}
	if status.Listener == nil {
		missing = append(missing, "ApiListener")
	}
	if len(missing) > 0 {
		errHeader := "Icinga request error"
		if startup {
			errHeader += " during bot start"
		}
		return reply.Error(errHeader,
			fmt.Sprintf("No data for component '%s' found in Icinga reply",
				strings.Join(missing, "' and '")))
	}

	app := status.App
	var lines []string
	if startup {
		lines = append(lines, "Successfully connected to Icinga")
	} else {
		lines = append(lines, "Current Icinga status:")
	}
	lines = append(lines,
		"Node name: **"+app.NodeName+"**",
		"Version: **"+app.Version+"**",
		"Running since: **"+reply.FormatUnix(int64(app.ProgramStart))+"**")

	if !startup {
		lines = append(lines,
			"Event handlers: **"+reply.EnabledDisabled(app.EnableEventHandlers)+"**",
			"Flap detection: **"+reply.EnabledDisabled(app.EnableFlapping)+"**",
			"Host checks: **"+reply.EnabledDisabled(app.EnableHostChecks)+"**",
			"Service checks: **"+reply.EnabledDisabled(app.EnableServiceChecks)+"**",
			"Notifications: **"+reply.EnabledDisabled(app.EnableNotifications)+"**",
			"Writing perfdata: **"+reply.EnabledDisabled(app.EnablePerfdata)+"**",
			fmt.Sprintf("Number of endpoints: **%d**", int(status.Listener.NumEndpoints)))

		notConnected := "None"
		if len(status.Listener.NotConnectedEndpoints) > 0 {
			notConnected = strings.Join(status.Listener.NotConnectedEndpoints, ", ")
		}
		lines = append(lines, "Not connected endpoints: **"+notConnected+"**")
	}

	resp := reply.New(header)
	resp.AddBlockf("**%s**", header)
	resp.AddBlock(strings.Join(lines, "\n"))
	return resp
}

func (h *Handlers) objectLink(kind icinga.ObjectKind, o *icinga.Object) string {
	if kind == icinga.KindService {
		return h.hostLink(o.HostName) + " | " + h.serviceLink(o.HostName, o.Name)
	}
	return h.hostLink(o.Name)
}

func (h *Handlers) hostLink(host string) string {
	return reply.HostLink(h.WebURL, host)
}

func (h *Handlers) serviceLink(host, service string) string {
	return reply.ServiceLink(h.WebURL, host, service)
}

func stateEmoji(kind icinga.ObjectKind, state int) string {
	if kind == icinga.KindHost {
		switch state {
		case icinga.HostUp:
			return "🟢"
		case icinga.HostDown:
			return "🔴"
		case icinga.HostUnreachable:
			return "🟣"
		}
		return "⚪"
	}
	switch state {
	case icinga.ServiceOK:
		return "🟢"
	case icinga.ServiceWarning:
		return "🟡"
	case icinga.ServiceCritical:
		return "🔴"
	case icinga.ServiceUnknown:
		return "🟣"
	}
	return "⚪"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func noOrNumber(n int) string {
	if n == 0 {
		return "No"
	}
	return fmt.Sprintf("%d", n)
}
