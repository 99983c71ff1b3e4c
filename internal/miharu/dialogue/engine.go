package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ansato/Miharu/internal/miharu/commands"
	"github.com/ansato/Miharu/internal/miharu/icinga"
	"github.com/ansato/Miharu/internal/miharu/reply"
	"github.com/ansato/Miharu/internal/miharu/timeparse"
)

// DefaultTimeout is how long an unfinished conversation is kept before
// the next message starts from scratch.
const DefaultTimeout = 15 * time.Minute

// anonymousAuthor is used when the chat layer has no display name for
// the acting user.
const anonymousAuthor = "Anonymous chat user"

// ObjectQuerier finds monitored objects for a filter.
type ObjectQuerier interface {
	QueryObjects(ctx context.Context, kind icinga.ObjectKind, opts icinga.QueryOptions) ([]icinga.Object, string, error)
}

// ActionExecutor dispatches confirmed actions to Icinga.
type ActionExecutor interface {
	ScheduleDowntime(ctx context.Context, kind icinga.ObjectKind, filter, author, comment string, start, end int64) error
	AcknowledgeProblem(ctx context.Context, kind icinga.ObjectKind, filter, author, comment string, expiry int64) error
	AddComment(ctx context.Context, kind icinga.ObjectKind, filter, author, comment string) error
	RescheduleCheck(ctx context.Context, kind icinga.ObjectKind, filter string) error
	SendCustomNotification(ctx context.Context, kind icinga.ObjectKind, filter, author, comment string) error
	DelayNotification(ctx context.Context, kind icinga.ObjectKind, filter string, until int64) error
	RemoveAcknowledgement(ctx context.Context, kind icinga.ObjectKind, filter string) error
	RemoveComment(ctx context.Context, name string) error
	RemoveDowntime(ctx context.Context, name string) error
	UpdateAttribute(ctx context.Context, kind icinga.ObjectKind, filter, attr string, value bool) error
	UpdateGlobalAttribute(ctx context.Context, attr string, value bool) error
}

// ActionRecord is one dispatched (or failed) action for the audit log.
type ActionRecord struct {
	UserID  string
	Author  string
	Command string
	Filter  string
	Objects int
	Success bool
	Detail  string
}

// AuditSink persists action records.
type AuditSink interface {
	RecordAction(ctx context.Context, rec ActionRecord) error
}

// Config wires an Engine.
type Config struct {
	Registry *commands.Registry
	Querier  ObjectQuerier
	Executor ActionExecutor
	Audit    AuditSink
	WebURL   string
	Timeout  time.Duration
	Now      func() time.Time
	Log      *slog.Logger
}

// Engine runs the per-user conversations.
type Engine struct {
	registry *commands.Registry
	querier  ObjectQuerier
	executor ActionExecutor
	audit    AuditSink
	webURL   string
	timeout  time.Duration
	now      func() time.Time
	log      *slog.Logger

	sessions sessions
}

// New builds an Engine from cfg, filling in defaults for Timeout, Now
// and Log.
func New(cfg Config) *Engine {
	e := &Engine{
		registry: cfg.Registry,
		querier:  cfg.Querier,
		executor: cfg.Executor,
		audit:    cfg.Audit,
		webURL:   cfg.WebURL,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		log:      cfg.Log,
	}
	if e.timeout == 0 {
		e.timeout = DefaultTimeout
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = slog.Default().With("component", "dialogue")
	}
	return e
}

// Active reports whether the user has a conversation in progress.
func (e *Engine) Active(userID string) bool {
	sess := e.sessions.get(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return e.current(sess) != nil
}

// Reset drops the user's conversation and reports whether there was one.
func (e *Engine) Reset(userID string) bool {
	sess := e.sessions.get(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	had := sess.conv != nil
	sess.conv = nil
	return had
}

// current returns the session's conversation, expiring it first when it
// has been idle past the timeout.
func (e *Engine) current(sess *session) *Conversation {
	if sess.conv != nil && e.now().Sub(sess.conv.LastActivity) > e.timeout {
		e.log.Info("conversation timed out", "command", sess.conv.Command.Name)
		sess.conv = nil
	}
	return sess.conv
}

// Handle feeds one user message into the conversation engine. The
// returned response is nil when the message neither continues a
// conversation nor starts an action command, meaning other handlers
// should look at it.
func (e *Engine) Handle(ctx context.Context, userID, displayName, message string) *reply.Response {
	sess := e.sessions.get(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	conv := e.current(sess)
	if conv == nil {
		cmd, rest, ok := e.registry.Match(message)
		if !ok || (cmd.Kind != commands.KindDialogue && cmd.Kind != commands.KindToggle) {
			return nil
		}
		e.log.Debug("starting conversation", "user", userID, "command", cmd.Name)
		conv = &Conversation{Command: cmd}
		sess.conv = conv
		message = rest
	}
	conv.LastActivity = e.now()

	if conv.Command.Kind == commands.KindToggle {
		return e.continueToggle(ctx, sess, conv, userID, message)
	}
	return e.continueDialogue(ctx, sess, conv, userID, displayName, message)
}

// continueDialogue walks one message through the action dialogue: parse
// what the message provides, then ask for the first thing still missing
// or confirm and dispatch.
func (e *Engine) continueDialogue(ctx context.Context, sess *session, conv *Conversation, userID, displayName, message string) *reply.Response {
	cmd := conv.Command

	if cmd.HasSubs() && conv.Sub == nil && message != "" {
		if sub, rest, ok := cmd.MatchSub(message); ok {
			e.log.Debug("sub command parsed", "sub", sub.Name)
			conv.Sub = sub
			message = rest
		}
	}

	if conv.Filter == nil {
		if tokens := splitQuoted(message); len(tokens) != 0 {
			filter := tokens
			if cmd.FilterEndMarker != "" {
				if idx := indexOfFold(tokens, cmd.FilterEndMarker); idx >= 0 {
					filter = tokens[:idx]
					// "with" only separates filter and comment and
					// carries no meaning of its own.
					if cmd.FilterEndMarker == "with" {
						idx++
					}
					message = strings.Join(tokens[idx:], " ")
				} else {
					message = ""
				}
			} else {
				message = ""
			}

			filter = sess.lastFilterReplay(filter)
			if len(filter) > 0 {
				e.log.Debug("filter parsed", "filter", filter)
				conv.Filter = filter
				sess.lastFilter = filter
			}
		}
	}

	cma := splitQuoted(message)

	if conv.Filter != nil && conv.FilterResult == nil {
		if resp := e.queryFilterObjects(ctx, conv); resp != nil {
			return resp
		}
	}

	if cmd.NeedStartDate && conv.StartDate == 0 && conv.FilterResult != nil && len(cma) != 0 {
		cma = e.parseStartDate(conv, cma)
	}

	if cmd.NeedEndDate && conv.EndDate == 0 && conv.FilterResult != nil && len(cma) != 0 {
		cma = e.parseEndDate(conv, cma)
	}

	if cmd.NeedComment && !conv.DescriptionSet && conv.FilterResult != nil {
		if len(cma) != 0 && strings.TrimSpace(strings.Join(cma, "")) != "" {
			conv.Description = strings.Join(cma, " ")
			conv.DescriptionSet = true
			cma = nil
		}
	}

	// Ask for whatever is still missing, in collection order.

	if cmd.HasSubs() && conv.Sub == nil {
		return reply.Newf("Sorry, I wasn't able to parse your sub command. "+
			"Check `help %s` to get available sub commands", cmd.Name)
	}

	if conv.Filter == nil {
		question := cmd.FilterQuestion
		if conv.Sub != nil {
			question = fmt.Sprintf(question, conv.Sub.Name)
		}
		return reply.New(question)
	}

	if conv.FilterResult == nil {
		problematic := ""
		if cmd.Action == commands.ActionAcknowledge {
			problematic = " problematic"
		}
		objectText := "hosts or services"
		if conv.Sub != nil {
			objectText = conv.Sub.Name + "s"
		}
		searched := strings.Join(conv.Filter, " ")
		conv.Filter = nil
		return reply.Newf("Sorry, I was not able to find any%s %s for your search '%s'. Try again.",
			problematic, objectText, searched)
	}

	if cmd.NeedStartDate && conv.StartDate == 0 {
		if conv.StartDateFailed == "" {
			return reply.New("When should the downtime start?")
		}
		return reply.Newf("Sorry, I was not able to understand the start date '%s'. Try again please.",
			conv.StartDateFailed)
	}

	if cmd.NeedEndDate && conv.EndDate == 0 {
		if conv.EndDateFailed != "" {
			return reply.Newf("Sorry, I was not able to understand the end date '%s'. Try again please.",
				conv.EndDateFailed)
		}
		if cmd.Action == commands.ActionAcknowledge {
			return reply.New("When should the acknowledgement expire? Or never?")
		}
		return reply.New("When should the downtime end?")
	}

	if conv.EndDate > 0 && conv.EndDate-60 < e.now().Unix() {
		text := reply.Newf("Sorry, end date '%s' lies (almost) in the past. "+
			"Please define a valid end/expire date.", reply.FormatUnix(conv.EndDate))
		conv.EndDate = 0
		return text
	}

	if cmd.NeedStartDate && conv.EndDate != -1 && conv.StartDate > conv.EndDate {
		text := reply.Newf("Sorry, start date '%s' can't be after end date '%s'. "+
			"When should the downtime start?",
			reply.FormatUnix(conv.StartDate), reply.FormatUnix(conv.EndDate))
		conv.StartDate = 0
		return text
	}

	if cmd.NeedComment && !conv.DescriptionSet {
		return reply.New("Please add a comment.")
	}

	if !conv.Confirmed {
		if conv.ConfirmationSent {
			e.applyConfirmationAnswer(conv, cma)
		}
		if !conv.ConfirmationSent {
			conv.ConfirmationSent = true
			return e.confirmationPrompt(conv)
		}
	}

	if conv.Canceled {
		sess.conv = nil
		return reply.New("Ok, action has been canceled!")
	}

	if conv.Confirmed {
		// The conversation is finished either way; errors are reported
		// but not retried.
		sess.conv = nil

		author := displayName
		if author == "" {
			author = anonymousAuthor
		}
		return e.dispatch(ctx, conv, userID, author)
	}

	return nil
}

// queryFilterObjects resolves the conversation filter to objects. A
// non-nil response means the query failed and the conversation state is
// left untouched.
func (e *Engine) queryFilterObjects(ctx context.Context, conv *Conversation) *reply.Response {
	cmd := conv.Command

	// Only unhandled problems can be acknowledged.
	var hostStates, serviceStates []string
	if cmd.Action == commands.ActionAcknowledge {
		hostStates = []string{icinga.ProblemStateFilter(icinga.KindHost)}
		serviceStates = []string{icinga.ProblemStateFilter(icinga.KindService)}
	}

	kindFor := func(base icinga.ObjectKind) icinga.ObjectKind {
		if conv.Sub == nil {
			return base
		}
		if conv.Sub.Name == "downtime" {
			return base.DowntimeVariant()
		}
		return base.CommentVariant()
	}

	var (
		kind    icinga.ObjectKind
		objects []icinga.Object
		err     error
	)

	if len(conv.Filter) == 1 {
		kind = kindFor(icinga.KindHost)
		objects, _, err = e.querier.QueryObjects(ctx, kind,
			icinga.QueryOptions{StateFilters: hostStates, Names: conv.Filter})
		if err == nil && len(objects) == 0 {
			kind = kindFor(icinga.KindService)
			objects, _, err = e.querier.QueryObjects(ctx, kind,
				icinga.QueryOptions{StateFilters: serviceStates, Names: conv.Filter})
		}
	} else {
		kind = kindFor(icinga.KindService)
		objects, _, err = e.querier.QueryObjects(ctx, kind,
			icinga.QueryOptions{StateFilters: serviceStates, Names: conv.Filter})
	}

	if err != nil {
		e.log.Warn("object lookup failed", "filter", conv.Filter, "error", err)
		return reply.Error("Icinga request error while trying to find matching hosts/services",
			err.Error())
	}

	switch {
	case conv.Sub != nil && conv.Sub.Name == "downtime":
		conv.FilterResult = objects
	case conv.Sub != nil:
		var kept []icinga.Object
		for _, o := range objects {
			if o.EntryType == conv.Sub.EntryType {
				kept = append(kept, o)
			}
		}
		conv.FilterResult = kept
	case cmd.Action == commands.ActionAcknowledge:
		var kept []icinga.Object
		for _, o := range objects {
			if o.Acknowledgement == 0 {
				kept = append(kept, o)
			}
		}
		conv.FilterResult = kept
	default:
		conv.FilterResult = objects
	}

	if len(conv.FilterResult) == 0 {
		conv.FilterResult = nil
		return nil
	}

	conv.ObjectKind = kind
	e.log.Debug("objects found", "count", len(conv.FilterResult), "kind", kind)
	return nil
}

// parseStartDate consumes the start date part of the message tokens and
// returns the remaining tokens.
func (e *Engine) parseStartDate(conv *Conversation, cma []string) []string {
	fromIdx := indexOfFold(cma, "from")
	untilIdx := indexOfFold(cma, "until")

	dateString := strings.Join(cma, " ")
	if fromIdx >= 0 && len(cma) > fromIdx+1 {
		cma = cma[fromIdx+1:]
		if rel := untilIdx - fromIdx - 1; untilIdx >= 0 && rel >= 0 && rel <= len(cma) {
			dateString = strings.Join(cma[:rel], " ")
			cma = cma[rel:]
		} else {
			dateString = strings.Join(cma, " ")
		}
	}

	parsed, ok := timeparse.Parse(dateString, e.now())
	if !ok {
		conv.StartDateFailed = dateString
		return cma
	}

	conv.StartDate = parsed.Time.Unix()
	e.log.Debug("start date parsed", "start", parsed.Time)

	if len(cma) >= 1 && !strings.EqualFold(cma[0], "until") {
		return strings.Fields(dateString[parsed.Consumed:])
	}
	return cma
}

// parseEndDate consumes the end date (or the "never" sentinel) and
// returns the remaining tokens.
func (e *Engine) parseEndDate(conv *Conversation, cma []string) []string {
	if idx := indexOfFold(cma, "until"); idx >= 0 && len(cma) > idx+1 {
		cma = cma[idx+1:]
	}

	if len(cma) >= 1 && (strings.EqualFold(cma[0], "never") || strings.EqualFold(cma[0], "infinite")) {
		conv.EndDate = -1
		return cma[1:]
	}

	dateString := strings.Join(cma, " ")
	parsed, ok := timeparse.Parse(dateString, e.now())
	if !ok {
		conv.EndDateFailed = dateString
		return cma
	}

	conv.EndDate = parsed.Time.Unix()
	e.log.Debug("end date parsed", "end", parsed.Time)
	return strings.Fields(dateString[parsed.Consumed:])
}

// applyConfirmationAnswer interprets the reply to a pending
// confirmation: yes, no, or a selection like "1,3" narrowing the object
// list. Anything else re-sends the confirmation.
func (e *Engine) applyConfirmationAnswer(conv *Conversation, cma []string) {
	if len(cma) == 0 {
		conv.ConfirmationSent = false
		return
	}

	first := strings.ToLower(cma[0])
	switch {
	case strings.HasPrefix(first, "y"):
		conv.Confirmed = true
	case strings.HasPrefix(first, "n"):
		conv.Canceled = true
	default:
		if conv.Sub != nil {
			var keep []icinga.Object
			for _, selection := range strings.Split(strings.Join(cma, " "), ",") {
				idx, err := strconv.Atoi(strings.TrimSpace(selection))
				if err != nil || idx < 1 || idx > len(conv.FilterResult) {
					continue
				}
				keep = append(keep, conv.FilterResult[idx-1])
			}
			if len(keep) > 0 {
				conv.FilterResult = keep
			}
		}
		conv.ConfirmationSent = false
	}
}

// confirmationPrompt renders the summary of the pending action.
func (e *Engine) confirmationPrompt(conv *Conversation) *reply.Response {
	cmd := conv.Command

	commandLabel := capitalize(cmd.Name)
	if cmd.Action == commands.ActionAcknowledge {
		commandLabel = "Acknowledgement"
	}

	typeLabel := string(conv.ObjectKind)
	if conv.Sub != nil {
		typeLabel = conv.Sub.Name
	}

	var fields []string
	fields = append(fields,
		"> **Command**: "+commandLabel,
		"> **Type**: "+typeLabel)

	switch {
	case cmd.NeedStartDate:
		fields = append(fields,
			"> **Start**: "+reply.FormatUnix(conv.StartDate),
			"> **End**: "+reply.FormatUnix(conv.EndDate))
	case cmd.Action == commands.ActionAcknowledge:
		fields = append(fields, "> **Expire**: "+neverOrDate(conv.EndDate))
	case cmd.Action == commands.ActionDelayNotification:
		fields = append(fields, "> **Delayed until**: "+neverOrDate(conv.EndDate))
	}

	if cmd.NeedComment {
		fields = append(fields, "> **Comment**: "+conv.Description)
	}
	fields = append(fields, "> **Objects**:")

	for i, o := range conv.FilterResult {
		if i >= 10 {
			fields = append(fields, fmt.Sprintf("> … and %d more", len(conv.FilterResult)-10))
			break
		}
		fields = append(fields, "> • "+e.describeObject(conv, i, &o))
	}

	resp := reply.New("Confirm your action")
	resp.AddBlock(strings.Join(fields, "\n"))

	if conv.Sub != nil {
		resp.AddBlockf("Do you want to confirm this action (yes|no)\n"+
			"or do you want to select single/multiple %ss (i.e.: 1,2)?:", conv.Sub.Name)
	} else {
		resp.AddBlock("Do you want to confirm this action?:")
	}
	return resp
}

// describeObject renders one line of the confirmation object list.
// Comments and downtimes are numbered so the user can select them.
func (e *Engine) describeObject(conv *Conversation, index int, o *icinga.Object) string {
	kind := conv.ObjectKind

	switch {
	case kind == icinga.KindService:
		return reply.HostLink(e.webURL, o.HostName) + " | " +
			reply.ServiceLink(e.webURL, o.HostName, o.Name)

	case kind.IsComment() || kind.IsDowntime():
		text := fmt.Sprintf("%d. %s", index+1, reply.HostLink(e.webURL, o.HostName))
		if o.ServiceName != "" {
			text += " | " + reply.ServiceLink(e.webURL, o.HostName, o.ServiceName)
		}
		return fmt.Sprintf("%s - %s (by: %s)", text, o.CommentText(), o.Author)

	default:
		return reply.HostLink(e.webURL, o.Name)
	}
}

// dispatch sends the confirmed action to Icinga and writes the audit
// record.
func (e *Engine) dispatch(ctx context.Context, conv *Conversation, userID, author string) *reply.Response {
	cmd := conv.Command

	filter := objectNameFilter(conv.ObjectKind, conv.FilterResult)
	kind := conv.ObjectKind.Checkable()
	count := len(conv.FilterResult)

	var (
		err     error
		success string
	)

	switch cmd.Action {
	case commands.ActionDowntime:
		e.log.Debug("scheduling downtime", "filter", filter)
		success = "Successfully scheduled downtime!"
		err = e.executor.ScheduleDowntime(ctx, kind, filter, author,
			conv.Description, conv.StartDate, conv.EndDate)

	case commands.ActionAcknowledge:
		e.log.Debug("acknowledging problem", "filter", filter)
		success = fmt.Sprintf("Successfully acknowledged %s problem%s!",
			kind, reply.Plural(count, "", "s"))
		expiry := conv.EndDate
		if expiry == -1 {
			expiry = 0
		}
		err = e.executor.AcknowledgeProblem(ctx, kind, filter, author, conv.Description, expiry)

	case commands.ActionComment:
		e.log.Debug("adding comment", "filter", filter)
		success = fmt.Sprintf("Successfully added %s comment%s!",
			kind, reply.Plural(count, "", "s"))
		err = e.executor.AddComment(ctx, kind, filter, author, conv.Description)

	case commands.ActionReschedule:
		e.log.Debug("rescheduling check", "filter", filter)
		success = fmt.Sprintf("Successfully rescheduled %s check%s!",
			kind, reply.Plural(count, "", "s"))
		err = e.executor.RescheduleCheck(ctx, kind, filter)

	case commands.ActionSendNotification:
		e.log.Debug("sending custom notification", "filter", filter)
		success = fmt.Sprintf("Successfully sent %s notification%s!",
			kind, reply.Plural(count, "", "s"))
		err = e.executor.SendCustomNotification(ctx, kind, filter, author, conv.Description)

	case commands.ActionDelayNotification:
		e.log.Debug("delaying notification", "filter", filter)
		success = fmt.Sprintf("Successfully delayed %s notification%s!",
			kind, reply.Plural(count, "", "s"))
		err = e.executor.DelayNotification(ctx, kind, filter, conv.EndDate)

	case commands.ActionRemove:
		success = fmt.Sprintf("Successfully removed %s!", conv.Sub.Name)
		err = e.dispatchRemove(ctx, conv)

	default:
		return reply.Error("Internal error", fmt.Sprintf("no dispatch for command %q", cmd.Name))
	}

	e.recordAudit(ctx, conv, userID, author, filter, err)

	if err != nil {
		e.log.Error("action dispatch failed", "command", cmd.Name, "error", err)
		return reply.Error("Icinga request error", err.Error())
	}
	return reply.New(success)
}

// dispatchRemove handles the per-object removal loops. Comments and
// downtimes are deleted by their full object name, acknowledgements by
// an exact host/service filter.
func (e *Engine) dispatchRemove(ctx context.Context, conv *Conversation) error {
	switch conv.Sub.Name {
	case "acknowledgement":
		for _, o := range conv.FilterResult {
			kind := icinga.KindHost
			filter := fmt.Sprintf(`host.name=="%s"`, o.HostName)
			if o.ServiceName != "" {
				kind = icinga.KindService
				filter += fmt.Sprintf(` && service.name=="%s"`, o.ServiceName)
			}
			if err := e.executor.RemoveAcknowledgement(ctx, kind, filter); err != nil {
				return err
			}
		}
	case "comment":
		for _, o := range conv.FilterResult {
			if err := e.executor.RemoveComment(ctx, o.ObjectKey()); err != nil {
				return err
			}
		}
	case "downtime":
		for _, o := range conv.FilterResult {
			if err := e.executor.RemoveDowntime(ctx, o.ObjectKey()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) recordAudit(ctx context.Context, conv *Conversation, userID, author, filter string, actionErr error) {
	if e.audit == nil {
		return
	}
	name := conv.Command.Name
	if conv.Sub != nil {
		name += " " + conv.Sub.Name
	}
	rec := ActionRecord{
		UserID:  userID,
		Author:  author,
		Command: name,
		Filter:  filter,
		Objects: len(conv.FilterResult),
		Success: actionErr == nil,
	}
	if actionErr != nil {
		rec.Detail = actionErr.Error()
	}
	if err := e.audit.RecordAction(ctx, rec); err != nil {
		e.log.Warn("audit write failed", "error", err)
	}
}

// objectNameFilter pins the resolved objects down to an exact filter so
// the action hits precisely the confirmed set.
func objectNameFilter(kind icinga.ObjectKind, objects []icinga.Object) string {
	parts := make([]string, 0, len(objects))
	if kind == icinga.KindHost {
		for _, o := range objects {
			parts = append(parts, fmt.Sprintf(`host.name=="%s"`, o.Name))
		}
	} else {
		for _, o := range objects {
			host, service := o.HostName, o.Name
			if kind.IsComment() || kind.IsDowntime() {
				service = o.ServiceName
			}
			parts = append(parts, fmt.Sprintf(`( host.name=="%s" && service.name=="%s" )`, host, service))
		}
	}
	return "(" + strings.Join(parts, " || ") + ")"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func neverOrDate(ts int64) string {
	if ts == -1 {
		return "Never"
	}
	return reply.FormatUnix(ts)
}
