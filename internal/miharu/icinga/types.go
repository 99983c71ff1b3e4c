package icinga

import "strings"

// ObjectKind identifies which kind of monitored object a query or action
// targets. The Comment/Downtime variants address the sub-records attached
// to a host or service rather than the checkable itself.
type ObjectKind string

const (
	KindHost            ObjectKind = "Host"
	KindService         ObjectKind = "Service"
	KindHostComment     ObjectKind = "HostComment"
	KindServiceComment  ObjectKind = "ServiceComment"
	KindHostDowntime    ObjectKind = "HostDowntime"
	KindServiceDowntime ObjectKind = "ServiceDowntime"
)

// IsServiceScoped reports whether the kind addresses service-level records.
func (k ObjectKind) IsServiceScoped() bool {
	switch k {
	case KindService, KindServiceComment, KindServiceDowntime:
		return true
	}
	return false
}

// IsComment reports whether the kind is a comment variant.
func (k ObjectKind) IsComment() bool {
	return k == KindHostComment || k == KindServiceComment
}

// IsDowntime reports whether the kind is a downtime variant.
func (k ObjectKind) IsDowntime() bool {
	return k == KindHostDowntime || k == KindServiceDowntime
}

// CommentVariant maps Host/Service to the matching comment kind.
func (k ObjectKind) CommentVariant() ObjectKind {
	if k.IsServiceScoped() {
		return KindServiceComment
	}
	return KindHostComment
}

// DowntimeVariant maps Host/Service to the matching downtime kind.
func (k ObjectKind) DowntimeVariant() ObjectKind {
	if k.IsServiceScoped() {
		return KindServiceDowntime
	}
	return KindHostDowntime
}

// Checkable returns the Host or Service kind underlying a comment or
// downtime variant.
func (k ObjectKind) Checkable() ObjectKind {
	if k.IsServiceScoped() {
		return KindService
	}
	return KindHost
}

// endpoint returns the /v1/objects path segment for the kind.
func (k ObjectKind) endpoint() string {
	switch {
	case k.IsComment():
		return "comments"
	case k.IsDowntime():
		return "downtimes"
	case k == KindService:
		return "services"
	default:
		return "hosts"
	}
}

// actionType returns the "type" value used by /v1/actions requests.
func (k ObjectKind) actionType() string {
	return string(k.Checkable())
}

// filterVar returns the filter-expression variable prefix for the kind
// ("host", "service", "comment" or "downtime").
func (k ObjectKind) filterVar() string {
	switch {
	case k.IsComment():
		return "comment"
	case k.IsDowntime():
		return "downtime"
	case k == KindService:
		return "service"
	default:
		return "host"
	}
}

// Host states as reported by the API.
const (
	HostUp = iota
	HostDown
	HostUnreachable
)

// Service states as reported by the API.
const (
	ServiceOK = iota
	ServiceWarning
	ServiceCritical
	ServiceUnknown
)

// Comment entry types. Acknowledgements are stored as comments with a
// distinct entry type.
const (
	EntryTypeComment         = 1
	EntryTypeAcknowledgement = 4
)

var hostStateNames = []string{"UP", "DOWN", "UNREACHABLE"}
var serviceStateNames = []string{"OK", "WARNING", "CRITICAL", "UNKNOWN"}

// StateName renders a numeric object state for the given kind.
func StateName(kind ObjectKind, state int) string {
	names := hostStateNames
	if kind.IsServiceScoped() {
		names = serviceStateNames
	}
	if state < 0 || state >= len(names) {
		return "PENDING"
	}
	return names[state]
}

// Object is a monitored-object record returned by QueryObjects. Which
// fields are populated depends on the kind that was queried: hosts and
// services carry state and feature toggles, comments and downtimes carry
// author/text and timing fields.
type Object struct {
	Name        string
	HostName    string
	ServiceName string

	// Host/Service attributes.
	State               int
	Output              string
	Acknowledgement     int
	DowntimeDepth       int
	LastStateChange     int64
	EnableNotifications bool
	EnableActiveChecks  bool
	EnablePassiveChecks bool
	EnableEventHandler  bool
	EnableFlapping      bool

	// Comment attributes.
	Author     string
	Text       string
	EntryType  int
	EntryTime  int64
	ExpireTime int64

	// Downtime attributes.
	Comment   string
	StartTime int64
	EndTime   int64
	Duration  int64
	Fixed     bool
}

// CommentText returns the free-text body of a comment or downtime record,
// whichever field the kind populates.
func (o *Object) CommentText() string {
	if o.Comment != "" {
		return o.Comment
	}
	return o.Text
}

// ObjectKey builds the object name key used by remove-comment and
// remove-downtime actions: host!service!name with empty segments
// collapsed.
func (o *Object) ObjectKey() string {
	key := o.HostName + "!" + o.ServiceName + "!" + o.Name
	return strings.ReplaceAll(key, "!!", "!")
}
