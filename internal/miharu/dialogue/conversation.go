// Package dialogue implements the multi-turn conversation engine: it
// collects filter, dates and comment for an action over one or more
// messages, asks for whatever is still missing, and dispatches the
// confirmed action to Icinga.
package dialogue

import (
	"strings"
	"sync"
	"time"

	"github.com/ansato/Miharu/internal/miharu/commands"
	"github.com/ansato/Miharu/internal/miharu/icinga"
)

// Conversation holds the state collected so far for one pending action.
// Date fields use unix seconds, 0 means not yet collected and -1 is the
// "never" sentinel for open-ended expiry.
type Conversation struct {
	Command *commands.Command
	Sub     *commands.SubCommand

	Filter       []string
	FilterResult []icinga.Object
	FilterUsed   string
	ObjectKind   icinga.ObjectKind

	StartDate       int64
	EndDate         int64
	StartDateFailed string
	EndDateFailed   string

	Description    string
	DescriptionSet bool

	ConfirmationSent bool
	Confirmed        bool
	Canceled         bool

	LastActivity time.Time
}

// path renders the breadcrumb prefix shown while a toggle conversation
// is in progress, like "`enable/active checks:` ".
func (c *Conversation) path() string {
	var parts []string
	if c.Command != nil {
		parts = append(parts, c.Command.Name)
	}
	if c.Sub != nil {
		parts = append(parts, c.Sub.Name)
	}
	if len(parts) == 0 {
		return ""
	}
	return "`" + strings.Join(parts, "/") + ":` "
}

// session is the per-user state. The mutex serializes messages from the
// same user so a conversation never sees interleaved updates.
type session struct {
	mu         sync.Mutex
	conv       *Conversation
	lastFilter []string
}

// lastFilterReplay substitutes the previous filter when the user sent
// the `!!` shorthand.
func (s *session) lastFilterReplay(filter []string) []string {
	if len(filter) == 1 && filter[0] == "!!" {
		if s.lastFilter == nil {
			return nil
		}
		return s.lastFilter
	}
	return filter
}

type sessions struct {
	mu      sync.Mutex
	entries map[string]*session
}

func (s *sessions) get(userID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = make(map[string]*session)
	}
	entry, ok := s.entries[userID]
	if !ok {
		entry = &session{}
		s.entries[userID] = entry
	}
	return entry
}
