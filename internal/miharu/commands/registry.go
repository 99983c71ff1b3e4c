// Package commands defines the bot command surface: the command table,
// message matching and the handlers for commands that need no
// conversation state.
package commands

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ansato/Miharu/internal/miharu/icinga"
)

// Kind selects the processing path for a matched command.
type Kind int

const (
	KindHelp Kind = iota
	KindPing
	KindStatusQuery
	KindOverview
	KindDaemonStatus
	KindReset
	KindDialogue
	KindToggle
)

// Action identifies which Icinga action a dialogue command dispatches.
type Action int

const (
	ActionNone Action = iota
	ActionAcknowledge
	ActionDowntime
	ActionComment
	ActionReschedule
	ActionSendNotification
	ActionDelayNotification
	ActionRemove
)

// SubCommand refines a command. For "remove" it names the object class
// to delete, for "enable"/"disable" the attribute to flip.
type SubCommand struct {
	Name      string
	Shortcuts []string

	// remove: entry_type the removal applies to (comments vs
	// acknowledgements share the comment endpoint).
	EntryType int

	// enable/disable: target kind and the runtime attribute. Global
	// sub-commands address the IcingaApplication object instead.
	ObjectKind icinga.ObjectKind
	Attribute  string
	Global     bool
}

// Command describes one bot command. Dialogue fields steer the
// question/answer flow: which keyword ends the filter part of a
// one-shot message and which pieces of information must be collected.
type Command struct {
	Name      string
	Shortcuts []string
	Short     string
	Long      string

	Kind   Kind
	Action Action

	// status query commands
	StatusKind icinga.ObjectKind

	// dialogue commands
	FilterEndMarker string
	NeedStartDate   bool
	NeedEndDate     bool
	NeedComment     bool
	FilterQuestion  string

	Subs []*SubCommand
}

// HasSubs reports whether the command requires a sub-command.
func (c *Command) HasSubs() bool { return len(c.Subs) > 0 }

// Match checks whether message starts with the command name or one of
// its shortcuts and returns the remainder with its original casing.
func (c *Command) Match(message string) (string, bool) {
	for _, prefix := range append([]string{c.Name}, c.Shortcuts...) {
		if rest, ok := matchPrefix(message, prefix); ok {
			return rest, true
		}
	}
	return "", false
}

// MatchSub matches a sub-command at the start of message.
func (c *Command) MatchSub(message string) (*SubCommand, string, bool) {
	for _, sub := range c.Subs {
		for _, prefix := range append([]string{sub.Name}, sub.Shortcuts...) {
			if rest, ok := matchPrefix(message, prefix); ok {
				return sub, rest, true
			}
		}
	}
	return nil, "", false
}

func matchPrefix(message, prefix string) (string, bool) {
	lower := strings.ToLower(message)
	prefix = strings.ToLower(prefix)
	if lower == prefix {
		return "", true
	}
	if strings.HasPrefix(lower, prefix+" ") {
		return strings.TrimLeft(message[len(prefix)+1:], " "), true
	}
	return "", false
}

// Registry holds all commands in match order. Longer command names are
// listed before shorter ones sharing a prefix so matching stays
// unambiguous.
type Registry struct {
	commands []*Command
}

// All returns the commands in registry order.
func (r *Registry) All() []*Command { return r.commands }

// Match finds the command a message invokes. The returned remainder
// keeps the original casing of the message.
func (r *Registry) Match(message string) (*Command, string, bool) {
	for _, cmd := range r.commands {
		if rest, ok := cmd.Match(message); ok {
			return cmd, rest, true
		}
	}
	return nil, "", false
}

// Lookup returns the command with the given name, or nil.
func (r *Registry) Lookup(name string) *Command {
	for _, cmd := range r.commands {
		if strings.EqualFold(cmd.Name, name) {
			return cmd
		}
	}
	return nil
}

// maxSuggestDistance is the edit distance up to which a mistyped
// command still triggers a "did you mean" hint.
const maxSuggestDistance = 2

// Suggest returns the command name closest to the first word of the
// message, or "" when nothing comes close enough.
func (r *Registry) Suggest(message string) string {
	fields := strings.Fields(strings.ToLower(message))
	if len(fields) == 0 {
		return ""
	}
	word := fields[0]

	best := ""
	bestDistance := maxSuggestDistance + 1
	for _, cmd := range r.commands {
		for _, candidate := range append([]string{cmd.Name}, cmd.Shortcuts...) {
			candidate = strings.ToLower(candidate)
			first := strings.Fields(candidate)[0]
			if d := levenshtein.ComputeDistance(word, first); d < bestDistance {
				bestDistance = d
				best = cmd.Name
			}
		}
	}
	return best
}

// NewRegistry builds the full command table.
func NewRegistry() *Registry {
	return &Registry{commands: []*Command{
		{
			Name:  "help",
			Short: "this help",
			Long: "This command displays all implemented commands and details about each command.\n" +
				"You can access the detailed help with `help <command>` and it will return a\n" +
				"detailed help about this particular command.",
			Kind: KindHelp,
		},
		{
			Name:  "ping",
			Short: "bot will answer with `pong`",
			Long: "This can simply be used to see if the bot is still alive. " +
				"Bot will simply answer with `pong`.",
			Kind: KindPing,
		},
		{
			Name:      "service status",
			Shortcuts: []string{"ss"},
			Short:     "display service status of all services in non OK state",
			Long: "This command can be used to query Icinga for current service states.\n" +
				"The default filter will only display services which are **NOT** OK and " +
				"have **not been acknowledged** and are **not in a downtime**.\n" +
				"You can also request certain service states like:\n" +
				"`ok`, `warning` (`warn`), `critical` (`crit`), `unknown`, `all`, `problems`\n" +
				"Filters can be combined like `warn crit` which would return all services " +
				"in WARNING or CRITICAL state.\n" +
				"You can add host names or service names to any status command. " +
				"Also just parts of host and service names can be used to search for objects.\n" +
				"Only the first two names are used as filter, all others are ignored.\n" +
				"Examples:\n" +
				"`ss warn crit ntp` displays all services matching \"ntp\" in state CRITICAL or WARNING\n" +
				"`ss webserver nginx` displays all services matching \"webserver\" and \"nginx\"\n" +
				"`ss problems` displays problematic services including acknowledged ones and " +
				"ones in a downtime",
			Kind:       KindStatusQuery,
			StatusKind: icinga.KindService,
		},
		{
			Name:      "host status",
			Shortcuts: []string{"hs"},
			Short:     "display host status of all hosts in non UP state",
			Long: "This command can be used to query Icinga for current host states.\n" +
				"The default filter will only display hosts which are **NOT** UP and " +
				"have **not been acknowledged** and are **not in a downtime**.\n" +
				"You can also request certain host states like:\n" +
				"`up`, `down`, `unreachable` (`unreach`), `all`, `problems`\n" +
				"Filters can be combined like `down unreach` which would return all hosts " +
				"in DOWN or UNREACHABLE state.\n" +
				"Also just parts of host names can be used to search for objects.\n" +
				"Examples:\n" +
				"`hs down test` displays all hosts in DOWN state matching \"test\"\n" +
				"`hs all` returns all hosts and their status\n" +
				"`hs problems` displays problematic hosts including acknowledged ones and " +
				"ones in a downtime",
			Kind:       KindStatusQuery,
			StatusKind: icinga.KindHost,
		},
		{
			Name:      "status overview",
			Shortcuts: []string{"so"},
			Short:     "display a summary of current host and service status numbers",
			Long: "This command displays a combined view with numbers about " +
				"the current state of all hosts and services. It will show how many " +
				"objects are acknowledged or in a downtime and how many are unhandled.",
			Kind: KindOverview,
		},
		{
			Name:      "acknowledge",
			Shortcuts: []string{"ack"},
			Short:     "acknowledge problematic hosts or services",
			Long: dialogueHelp("set an acknowledgement for an unhandled service or host",
				"**1.** host/service filter\n"+
					"**2.** time when acknowledgement should expire (or `never`)\n"+
					"**3.** a comment which should be added to the acknowledgement",
				"`ack my-server ntp until tomorrow evening Wrong ntp config, needs update`",
				"`ack <host> <service> until <time> <comment>`\n"+
					"`ack <host> until <time> <comment>`\n"+
					"`ack <service> until <time> <comment>`"),
			Kind:            KindDialogue,
			Action:          ActionAcknowledge,
			FilterEndMarker: "until",
			NeedEndDate:     true,
			NeedComment:     true,
			FilterQuestion:  "What do you want acknowledge?",
		},
		{
			Name:      "downtime",
			Shortcuts: []string{"dt"},
			Short:     "set a downtime for hosts/services",
			Long: dialogueHelp("set a downtime for a service or host",
				"**1.** host/service filter\n"+
					"**2.** time when the downtime should start (`now`)\n"+
					"**3.** time when the downtime should end\n"+
					"**4.** a comment which should be added to the downtime",
				"`dt my-server ntp from now until tomorrow evening NTP update`",
				"`dt <host> <service> from <time> until <time> <comment>`\n"+
					"`dt <host> from <time> until <time> <comment>`\n"+
					"`dt <service> from <time> until <time> <comment>`"),
			Kind:            KindDialogue,
			Action:          ActionDowntime,
			FilterEndMarker: "from",
			NeedStartDate:   true,
			NeedEndDate:     true,
			NeedComment:     true,
			FilterQuestion:  "What do you want to set a downtime for?",
		},
		{
			Name:      "comment",
			Shortcuts: []string{"com"},
			Short:     "add a comment to hosts/services",
			Long: dialogueHelp("add a comment to a service or host",
				"**1.** host/service filter\n"+
					"**2.** the comment text",
				"`com my-server ntp with Needs a config update`",
				"`com <host> <service> with <comment>`\n"+
					"`com <host> with <comment>`"),
			Kind:            KindDialogue,
			Action:          ActionComment,
			FilterEndMarker: "with",
			NeedComment:     true,
			FilterQuestion:  "What do you want to add a comment to?",
		},
		{
			Name:      "reschedule",
			Shortcuts: []string{"rs"},
			Short:     "reschedule a host/service check",
			Long: dialogueHelp("reschedule the next check for a service or host",
				"**1.** host/service filter",
				"`rs my-server ntp`",
				"`rs <host> <service>`\n"+
					"`rs <host>`"),
			Kind:           KindDialogue,
			Action:         ActionReschedule,
			FilterQuestion: "What do you want to reschedule?",
		},
		{
			Name:      "send notification",
			Shortcuts: []string{"sn"},
			Short:     "send a custom notification for hosts/services",
			Long: dialogueHelp("send a custom notification for a service or host",
				"**1.** host/service filter\n"+
					"**2.** the notification text",
				"`sn my-server ntp with Maintenance starts in 10 minutes`",
				"`sn <host> <service> with <comment>`\n"+
					"`sn <host> with <comment>`"),
			Kind:            KindDialogue,
			Action:          ActionSendNotification,
			FilterEndMarker: "with",
			NeedComment:     true,
			FilterQuestion:  "What do you want to send notifications for?",
		},
		{
			Name:      "delay notification",
			Shortcuts: []string{"dn"},
			Short:     "delay notifications for hosts/services",
			Long: dialogueHelp("delay notifications for a service or host",
				"**1.** host/service filter\n"+
					"**2.** time until which notifications should be delayed",
				"`dn my-server ntp until tomorrow morning`",
				"`dn <host> <service> until <time>`\n"+
					"`dn <host> until <time>`"),
			Kind:            KindDialogue,
			Action:          ActionDelayNotification,
			FilterEndMarker: "until",
			NeedEndDate:     true,
			FilterQuestion:  "What do you want to delay notifications for?",
		},
		{
			Name:      "remove",
			Shortcuts: []string{"rm"},
			Short:     "remove acknowledgements, comments or downtimes",
			Long: dialogueHelp("remove an acknowledgement, comment or downtime from a service or host",
				"**1.** sub command (`acknowledgement`, `comment` or `downtime`)\n"+
					"**2.** host/service filter",
				"`rm ack my-server ntp`",
				"`rm <acknowledgement|comment|downtime> <host> <service>`\n"+
					"`rm <acknowledgement|comment|downtime> <host>`"),
			Kind:           KindDialogue,
			Action:         ActionRemove,
			FilterQuestion: "For which object do you want to remove %ss?",
			Subs: []*SubCommand{
				{Name: "acknowledgement", Shortcuts: []string{"ack"}, EntryType: icinga.EntryTypeAcknowledgement},
				{Name: "comment", Shortcuts: []string{"com"}, EntryType: icinga.EntryTypeComment},
				{Name: "downtime", Shortcuts: []string{"dt"}},
			},
		},
		{
			Name:  "enable",
			Short: "enable Icinga features globally or per object",
			Long:  toggleHelp("enable"),
			Kind:  KindToggle,
			Subs:  toggleSubCommands(),
		},
		{
			Name:  "disable",
			Short: "disable Icinga features globally or per object",
			Long:  toggleHelp("disable"),
			Kind:  KindToggle,
			Subs:  toggleSubCommands(),
		},
		{
			Name:      "reset",
			Shortcuts: []string{"abort"},
			Short:     "abort current action (ack/dt/...)",
			Long: "If you are performing an action and want to abort it, you can use this command " +
				"to stop the interaction/conversation with the bot.",
			Kind: KindReset,
		},
		{
			Name:      "icinga status",
			Shortcuts: []string{"is"},
			Short:     "print current Icinga status details",
			Long: "This command will print the status of the Icinga daemon this bot is connected to.\n" +
				"It displays if core features are enabled like service and host checks, " +
				"notifications or event handlers. In a clustered environment it will report " +
				"if all endpoints are connected.",
			Kind: KindDaemonStatus,
		},
	}}
}

func toggleSubCommands() []*SubCommand {
	return []*SubCommand{
		{Name: "notifications", Global: true, Attribute: "enable_notifications"},
		{Name: "event handlers", Global: true, Attribute: "enable_event_handlers"},
		{Name: "flap detection", Global: true, Attribute: "enable_flapping"},
		{Name: "host checks", Global: true, Attribute: "enable_host_checks"},
		{Name: "service checks", Global: true, Attribute: "enable_service_checks"},
		{Name: "host notifications", ObjectKind: icinga.KindHost, Attribute: "enable_notifications"},
		{Name: "service notifications", ObjectKind: icinga.KindService, Attribute: "enable_notifications"},
		{Name: "active checks", ObjectKind: icinga.KindService, Attribute: "enable_active_checks"},
		{Name: "passive checks", ObjectKind: icinga.KindService, Attribute: "enable_passive_checks"},
	}
}

func toggleHelp(verb string) string {
	return "This command will " + verb + " an Icinga feature, either globally or " +
		"for matching hosts/services.\n" +
		"Global sub commands: `notifications`, `event handlers`, `flap detection`, " +
		"`host checks`, `service checks`\n" +
		"Object sub commands: `host notifications <host>`, `service notifications <host/service>`, " +
		"`active checks <host/service>`, `passive checks <host/service>`\n" +
		"Example: `" + verb + " notifications` or `" + verb + " active checks webserver`"
}

func dialogueHelp(what, steps, example, structure string) string {
	return "This command will start a dialog to " + what + ". " +
		"This can be started with this command and the bot will ask questions " +
		"about the details in the following order:\n" + steps + "\n" +
		"**INFO**: time can be submitted in a relative format like " +
		"_tomorrow 3pm_, _friday noon_ or _monday morning_. " +
		"Or more specific like _january 2nd_ or even more specific " +
		"like _29.02.2020 13:00_. Just try and see what works best for you.\n" +
		"At the end the bot will ask you for a confirmation which can " +
		"be answered with `yes` or just `y` or `no`. " +
		"After that the bot will report if the action was successful or not.\n" +
		"**SHORTCUT**: it is also possible to skip the whole Q/A and just issue the " +
		"action in one command, for example:\n" + example + "\n" +
		"**STRUCTURE**:\n" + structure
}
