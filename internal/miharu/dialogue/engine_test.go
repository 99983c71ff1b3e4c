package dialogue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ansato/Miharu/internal/miharu/commands"
	"github.com/ansato/Miharu/internal/miharu/icinga"
)

const (
	testUser   = "@alice:example.org"
	testAuthor = "Alice"
)

type fakeQuerier struct {
	results map[icinga.ObjectKind][]icinga.Object
	used    string
	err     error
	queried []icinga.ObjectKind
}

func (f *fakeQuerier) QueryObjects(_ context.Context, kind icinga.ObjectKind, _ icinga.QueryOptions) ([]icinga.Object, string, error) {
	f.queried = append(f.queried, kind)
	if f.err != nil {
		return nil, "", f.err
	}
	return f.results[kind], f.used, nil
}

type ackCall struct {
	kind            icinga.ObjectKind
	filter, comment string
	author          string
	expiry          int64
}

type downtimeCall struct {
	kind            icinga.ObjectKind
	filter, comment string
	author          string
	start, end      int64
}

type attrCall struct {
	kind         icinga.ObjectKind
	filter, attr string
	value        bool
}

type fakeExecutor struct {
	err error

	acks             []ackCall
	downtimes        []downtimeCall
	comments         []string
	reschedules      []string
	notifications    []string
	delays           []string
	removedAcks      []string
	removedComments  []string
	removedDowntimes []string
	globalAttrs      map[string]bool
	attrs            []attrCall
}

func (f *fakeExecutor) ScheduleDowntime(_ context.Context, kind icinga.ObjectKind, filter, author, comment string, start, end int64) error {
	f.downtimes = append(f.downtimes, downtimeCall{kind, filter, comment, author, start, end})
	return f.err
}

func (f *fakeExecutor) AcknowledgeProblem(_ context.Context, kind icinga.ObjectKind, filter, author, comment string, expiry int64) error {
	f.acks = append(f.acks, ackCall{kind, filter, comment, author, expiry})
	return f.err
}

func (f *fakeExecutor) AddComment(_ context.Context, _ icinga.ObjectKind, filter, _, _ string) error {
	f.comments = append(f.comments, filter)
	return f.err
}

func (f *fakeExecutor) RescheduleCheck(_ context.Context, _ icinga.ObjectKind, filter string) error {
	f.reschedules = append(f.reschedules, filter)
	return f.err
}

func (f *fakeExecutor) SendCustomNotification(_ context.Context, _ icinga.ObjectKind, filter, _, _ string) error {
	f.notifications = append(f.notifications, filter)
	return f.err
}

func (f *fakeExecutor) DelayNotification(_ context.Context, _ icinga.ObjectKind, filter string, _ int64) error {
	f.delays = append(f.delays, filter)
	return f.err
}

func (f *fakeExecutor) RemoveAcknowledgement(_ context.Context, _ icinga.ObjectKind, filter string) error {
	f.removedAcks = append(f.removedAcks, filter)
	return f.err
}

func (f *fakeExecutor) RemoveComment(_ context.Context, name string) error {
	f.removedComments = append(f.removedComments, name)
	return f.err
}

func (f *fakeExecutor) RemoveDowntime(_ context.Context, name string) error {
	f.removedDowntimes = append(f.removedDowntimes, name)
	return f.err
}

func (f *fakeExecutor) UpdateAttribute(_ context.Context, kind icinga.ObjectKind, filter, attr string, value bool) error {
	f.attrs = append(f.attrs, attrCall{kind, filter, attr, value})
	return f.err
}

func (f *fakeExecutor) UpdateGlobalAttribute(_ context.Context, attr string, value bool) error {
	if f.globalAttrs == nil {
		f.globalAttrs = make(map[string]bool)
	}
	f.globalAttrs[attr] = value
	return f.err
}

type fakeAudit struct {
	records []ActionRecord
}

func (f *fakeAudit) RecordAction(_ context.Context, rec ActionRecord) error {
	f.records = append(f.records, rec)
	return nil
}

// testNow is a Monday morning so relative dates resolve predictably.
var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newTestEngine(q *fakeQuerier, x *fakeExecutor, a *fakeAudit, now *time.Time) *Engine {
	return New(Config{
		Registry: commands.NewRegistry(),
		Querier:  q,
		Executor: x,
		Audit:    a,
		Now:      func() time.Time { return *now },
		Log:      slog.New(slog.DiscardHandler),
	})
}

func handle(t *testing.T, e *Engine, message string) string {
	t.Helper()
	resp := e.Handle(context.Background(), testUser, testAuthor, message)
	if resp == nil {
		t.Fatalf("expected a response for %q", message)
	}
	return resp.String()
}

func TestOneShotAcknowledge(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindHost: {
			{Name: "web01", State: icinga.HostDown},
			{Name: "web02", State: icinga.HostDown, Acknowledgement: 1},
		},
	}}
	x := &fakeExecutor{}
	a := &fakeAudit{}
	e := newTestEngine(q, x, a, &now)

	out := handle(t, e, "ack web01 until tomorrow evening Disk replacement")
	for _, want := range []string{
		"> **Command**: Acknowledgement",
		"> **Type**: Host",
		"> **Comment**: Disk replacement",
		"> • web01",
		"Do you want to confirm this action?:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("confirmation missing %q\n%s", want, out)
		}
	}
	// Already acknowledged objects must not be offered again.
	if strings.Contains(out, "web02") {
		t.Errorf("acknowledged host listed in confirmation:\n%s", out)
	}

	out = handle(t, e, "yes")
	if out != "Successfully acknowledged Host problem!" {
		t.Errorf("unexpected dispatch reply: %q", out)
	}

	if len(x.acks) != 1 {
		t.Fatalf("got %d acknowledge calls, want 1", len(x.acks))
	}
	call := x.acks[0]
	wantExpiry := time.Date(2026, 3, 3, 18, 0, 0, 0, time.UTC).Unix()
	if call.kind != icinga.KindHost || call.filter != `(host.name=="web01")` ||
		call.author != testAuthor || call.comment != "Disk replacement" || call.expiry != wantExpiry {
		t.Errorf("unexpected acknowledge call: %+v", call)
	}

	if len(a.records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(a.records))
	}
	rec := a.records[0]
	if rec.UserID != testUser || rec.Author != testAuthor || rec.Command != "acknowledge" ||
		rec.Objects != 1 || !rec.Success {
		t.Errorf("unexpected audit record: %+v", rec)
	}

	if e.Active(testUser) {
		t.Error("conversation should be finished after dispatch")
	}
}

func TestAcknowledgeNeverExpiry(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindHost: {{Name: "web01", State: icinga.HostDown}},
	}}
	x := &fakeExecutor{}
	e := newTestEngine(q, x, &fakeAudit{}, &now)

	out := handle(t, e, "ack web01 until never hardware is gone")
	if !strings.Contains(out, "> **Expire**: Never") {
		t.Errorf("never sentinel not rendered:\n%s", out)
	}

	handle(t, e, "y")
	if len(x.acks) != 1 || x.acks[0].expiry != 0 {
		t.Errorf("never expiry should dispatch as 0: %+v", x.acks)
	}
}

func TestStepwiseDowntime(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindService: {{Name: "ping", HostName: "web01"}},
	}}
	x := &fakeExecutor{}
	e := newTestEngine(q, x, &fakeAudit{}, &now)

	if out := handle(t, e, "downtime"); out != "What do you want to set a downtime for?" {
		t.Fatalf("unexpected filter question: %q", out)
	}
	if out := handle(t, e, "web01 ping"); out != "When should the downtime start?" {
		t.Fatalf("unexpected start question: %q", out)
	}
	if out := handle(t, e, "now"); out != "When should the downtime end?" {
		t.Fatalf("unexpected end question: %q", out)
	}
	if out := handle(t, e, "in 2 hours"); out != "Please add a comment." {
		t.Fatalf("unexpected comment question: %q", out)
	}

	out := handle(t, e, "Kernel update")
	for _, want := range []string{
		"> **Command**: Downtime",
		"> **Type**: Service",
		"> • web01 | ping",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("confirmation missing %q\n%s", want, out)
		}
	}

	if out := handle(t, e, "y"); out != "Successfully scheduled downtime!" {
		t.Errorf("unexpected dispatch reply: %q", out)
	}

	if len(x.downtimes) != 1 {
		t.Fatalf("got %d downtime calls, want 1", len(x.downtimes))
	}
	call := x.downtimes[0]
	if call.kind != icinga.KindService ||
		call.filter != `(( host.name=="web01" && service.name=="ping" ))` ||
		call.comment != "Kernel update" ||
		call.start != testNow.Unix() || call.end != testNow.Add(2*time.Hour).Unix() {
		t.Errorf("unexpected downtime call: %+v", call)
	}
}

func TestCancel(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindHost: {{Name: "web01", State: icinga.HostDown}},
	}}
	x := &fakeExecutor{}
	e := newTestEngine(q, x, &fakeAudit{}, &now)

	handle(t, e, "ack web01 until never broken")
	if out := handle(t, e, "no"); out != "Ok, action has been canceled!" {
		t.Errorf("unexpected cancel reply: %q", out)
	}
	if len(x.acks) != 0 {
		t.Error("canceled action must not dispatch")
	}
	if e.Active(testUser) {
		t.Error("conversation should be gone after cancel")
	}
}

func TestEndDateInPast(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindHost: {{Name: "web01", State: icinga.HostDown}},
	}}
	e := newTestEngine(q, &fakeExecutor{}, &fakeAudit{}, &now)

	out := handle(t, e, "ack web01 until 10:00 oops")
	if !strings.Contains(out, "lies (almost) in the past") {
		t.Fatalf("past end date not rejected: %q", out)
	}

	out = handle(t, e, "tomorrow noon")
	if !strings.Contains(out, "Do you want to confirm this action?:") {
		t.Errorf("corrected end date should reach confirmation: %q", out)
	}
}

func TestStartAfterEndClearsStart(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindService: {{Name: "ping", HostName: "web01"}},
	}}
	x := &fakeExecutor{}
	e := newTestEngine(q, x, &fakeAudit{}, &now)

	handle(t, e, "downtime web01 ping")
	handle(t, e, "tomorrow noon")

	// End before the chosen start throws the start away and asks again.
	out := handle(t, e, "15:00")
	if !strings.Contains(out, "can't be after end date") ||
		!strings.Contains(out, "When should the downtime start?") {
		t.Fatalf("start after end not rejected: %q", out)
	}

	if out := handle(t, e, "now"); out != "Please add a comment." {
		t.Fatalf("corrected start date should continue the dialogue: %q", out)
	}
	handle(t, e, "Kernel update")
	handle(t, e, "y")

	if len(x.downtimes) != 1 {
		t.Fatalf("got %d downtime calls, want 1", len(x.downtimes))
	}
	call := x.downtimes[0]
	wantEnd := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC).Unix()
	if call.start != testNow.Unix() || call.end != wantEnd {
		t.Errorf("unexpected downtime window: %+v", call)
	}
}

func TestBogusConfirmationReplyRepeatsPrompt(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindHost: {{Name: "web01", State: icinga.HostDown}},
	}}
	x := &fakeExecutor{}
	e := newTestEngine(q, x, &fakeAudit{}, &now)

	prompt := handle(t, e, "ack web01 until never broken")
	if again := handle(t, e, "maybe later"); again != prompt {
		t.Errorf("confirmation not re-sent verbatim:\ngot  %q\nwant %q", again, prompt)
	}

	handle(t, e, "y")
	if len(x.acks) != 1 {
		t.Errorf("got %d acknowledge calls, want 1", len(x.acks))
	}
}

func TestFilterNotFound(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{}}
	e := newTestEngine(q, &fakeExecutor{}, &fakeAudit{}, &now)

	out := handle(t, e, "ack nosuch")
	if out != "Sorry, I was not able to find any problematic hosts or services for your search 'nosuch'. Try again." {
		t.Fatalf("unexpected not-found reply: %q", out)
	}

	q.results[icinga.KindHost] = []icinga.Object{{Name: "web01", State: icinga.HostDown}}
	out = handle(t, e, "web01")
	if out != "When should the acknowledgement expire? Or never?" {
		t.Errorf("retried filter should continue the dialogue: %q", out)
	}
}

func TestLastFilterReplay(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindHost: {{Name: "web01", State: icinga.HostDown}},
	}}
	x := &fakeExecutor{}
	e := newTestEngine(q, x, &fakeAudit{}, &now)

	handle(t, e, "rs web01")
	if out := handle(t, e, "y"); out != "Successfully rescheduled Host check!" {
		t.Fatalf("unexpected reschedule reply: %q", out)
	}

	out := handle(t, e, "rs !!")
	if !strings.Contains(out, "> • web01") {
		t.Fatalf("`!!` should replay the previous filter:\n%s", out)
	}
	handle(t, e, "y")

	if len(x.reschedules) != 2 || x.reschedules[1] != `(host.name=="web01")` {
		t.Errorf("unexpected reschedule calls: %+v", x.reschedules)
	}
}

func TestRemoveDowntimeSelection(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindHostDowntime: {
			{Name: "dt-1", HostName: "web01", Comment: "kernel", Author: "ops"},
			{Name: "dt-2", HostName: "web01", Comment: "disk", Author: "ops"},
			{Name: "dt-3", HostName: "web01", Comment: "net", Author: "ops"},
		},
	}}
	x := &fakeExecutor{}
	a := &fakeAudit{}
	e := newTestEngine(q, x, a, &now)

	out := handle(t, e, "rm dt web01")
	for _, want := range []string{
		"> • 1. web01 - kernel (by: ops)",
		"> • 3. web01 - net (by: ops)",
		"select single/multiple downtimes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("confirmation missing %q\n%s", want, out)
		}
	}

	// Selecting entries narrows the list and asks again.
	out = handle(t, e, "1,3")
	if !strings.Contains(out, "> • 2. web01 - net (by: ops)") || strings.Contains(out, "disk") {
		t.Errorf("selection did not narrow the object list:\n%s", out)
	}

	if out := handle(t, e, "y"); out != "Successfully removed downtime!" {
		t.Errorf("unexpected dispatch reply: %q", out)
	}

	want := []string{"web01!dt-1", "web01!dt-3"}
	if len(x.removedDowntimes) != 2 || x.removedDowntimes[0] != want[0] || x.removedDowntimes[1] != want[1] {
		t.Errorf("removed %v, want %v", x.removedDowntimes, want)
	}

	if len(a.records) != 1 || a.records[0].Command != "remove downtime" || a.records[0].Objects != 2 {
		t.Errorf("unexpected audit records: %+v", a.records)
	}
}

func TestRemoveAsksForSubFilter(t *testing.T) {
	now := testNow
	e := newTestEngine(&fakeQuerier{}, &fakeExecutor{}, &fakeAudit{}, &now)

	if out := handle(t, e, "rm dt"); out != "For which object do you want to remove downtimes?" {
		t.Errorf("unexpected filter question: %q", out)
	}
}

func TestConversationTimeout(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindService: {{Name: "ping", HostName: "web01"}},
	}}
	e := newTestEngine(q, &fakeExecutor{}, &fakeAudit{}, &now)

	handle(t, e, "downtime")
	if !e.Active(testUser) {
		t.Fatal("conversation should be active")
	}

	now = now.Add(16 * time.Minute)
	if resp := e.Handle(context.Background(), testUser, testAuthor, "web01 ping"); resp != nil {
		t.Errorf("expired conversation should ignore the message, got %q", resp.String())
	}
	if e.Active(testUser) {
		t.Error("conversation should have expired")
	}
}

func TestToggleGlobal(t *testing.T) {
	now := testNow
	x := &fakeExecutor{}
	a := &fakeAudit{}
	e := newTestEngine(&fakeQuerier{}, x, a, &now)

	out := handle(t, e, "enable notifications")
	if !strings.Contains(out, "> **Command**: enable notifications") ||
		!strings.Contains(out, "Do you want to confirm this action?:") {
		t.Fatalf("unexpected confirmation:\n%s", out)
	}

	if out := handle(t, e, "y"); out != "Successfully enabled notifications!" {
		t.Errorf("unexpected dispatch reply: %q", out)
	}
	if !x.globalAttrs["enable_notifications"] {
		t.Errorf("global attribute not set: %+v", x.globalAttrs)
	}
	if len(a.records) != 1 || a.records[0].Command != "enable notifications" {
		t.Errorf("unexpected audit records: %+v", a.records)
	}
}

func TestToggleObjectScoped(t *testing.T) {
	now := testNow
	used := `match("*webserver*", host.name)`
	q := &fakeQuerier{
		results: map[icinga.ObjectKind][]icinga.Object{
			icinga.KindService: {{Name: "ping", HostName: "web01"}},
		},
		used: used,
	}
	x := &fakeExecutor{}
	e := newTestEngine(q, x, &fakeAudit{}, &now)

	out := handle(t, e, "disable active checks webserver")
	if !strings.Contains(out, "> • web01 - ping") {
		t.Fatalf("object list missing:\n%s", out)
	}

	if out := handle(t, e, "yes"); out != "Successfully disabled active checks for webserver!" {
		t.Errorf("unexpected dispatch reply: %q", out)
	}

	if len(x.attrs) != 1 {
		t.Fatalf("got %d attribute calls, want 1", len(x.attrs))
	}
	call := x.attrs[0]
	if call.kind != icinga.KindService || call.filter != used ||
		call.attr != "enable_active_checks" || call.value {
		t.Errorf("unexpected attribute call: %+v", call)
	}
}

func TestToggleUnknownSub(t *testing.T) {
	now := testNow
	e := newTestEngine(&fakeQuerier{}, &fakeExecutor{}, &fakeAudit{}, &now)

	out := handle(t, e, "enable frobnicate")
	if out != "`enable:` Sorry, I wasn't able to parse your sub command. Check `help enable` to get available sub commands" {
		t.Errorf("unexpected reply: %q", out)
	}
}

func TestReset(t *testing.T) {
	now := testNow
	e := newTestEngine(&fakeQuerier{}, &fakeExecutor{}, &fakeAudit{}, &now)

	handle(t, e, "downtime")
	if !e.Reset(testUser) {
		t.Error("Reset should report an active conversation")
	}
	if e.Active(testUser) {
		t.Error("conversation should be gone after reset")
	}
	if e.Reset(testUser) {
		t.Error("second Reset should report nothing to do")
	}
}

func TestDispatchErrorReported(t *testing.T) {
	now := testNow
	q := &fakeQuerier{results: map[icinga.ObjectKind][]icinga.Object{
		icinga.KindHost: {{Name: "web01", State: icinga.HostDown}},
	}}
	x := &fakeExecutor{err: errors.New("boom")}
	a := &fakeAudit{}
	e := newTestEngine(q, x, a, &now)

	handle(t, e, "ack web01 until never broken")
	out := handle(t, e, "y")
	if !strings.Contains(out, "Icinga request error") || !strings.Contains(out, "boom") {
		t.Errorf("dispatch error not reported: %q", out)
	}

	if len(a.records) != 1 || a.records[0].Success || a.records[0].Detail != "boom" {
		t.Errorf("unexpected audit records: %+v", a.records)
	}
	if e.Active(testUser) {
		t.Error("conversation should be finished even on error")
	}
}
