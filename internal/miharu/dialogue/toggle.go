package dialogue

import (
	"context"
	"fmt"
	"strings"

	"github.com/ansato/Miharu/internal/miharu/icinga"
	"github.com/ansato/Miharu/internal/miharu/reply"
)

// continueToggle runs the enable/disable conversations. They share the
// Conversation model but skip dates and comments: sub command, an
// optional object filter, then confirmation.
func (e *Engine) continueToggle(ctx context.Context, sess *session, conv *Conversation, userID, message string) *reply.Response {
	cmd := conv.Command

	if conv.Sub == nil && message != "" {
		if sub, rest, ok := cmd.MatchSub(message); ok {
			e.log.Debug("sub command parsed", "sub", sub.Name)
			conv.Sub = sub
			message = rest
		}
	}

	if conv.Sub != nil && !conv.Sub.Global && conv.Filter == nil && message != "" {
		filter := sess.lastFilterReplay(splitQuoted(message))
		if len(filter) > 0 {
			e.log.Debug("filter parsed", "filter", filter)
			conv.Filter = filter
			sess.lastFilter = filter
			message = ""
		}
	}

	if conv.Filter != nil && conv.FilterResult == nil {
		objects, used, err := e.querier.QueryObjects(ctx, conv.Sub.ObjectKind,
			icinga.QueryOptions{Names: conv.Filter})
		if err != nil {
			e.log.Warn("object lookup failed", "filter", conv.Filter, "error", err)
			return reply.Error("Icinga request error while trying to find matching hosts/services",
				err.Error())
		}
		if len(objects) > 0 {
			e.log.Debug("objects found", "count", len(objects), "kind", conv.Sub.ObjectKind)
			conv.FilterResult = objects
			conv.FilterUsed = used
			conv.ObjectKind = conv.Sub.ObjectKind
		}
	}

	if conv.Sub == nil {
		return reply.Newf("%sSorry, I wasn't able to parse your sub command. "+
			"Check `help %s` to get available sub commands", conv.path(), cmd.Name)
	}

	if !conv.Sub.Global && conv.Filter == nil {
		return reply.Newf("%sFor which object do you want to %s %s?",
			conv.path(), cmd.Name, conv.Sub.Name)
	}

	if !conv.Sub.Global && conv.FilterResult == nil {
		searched := strings.Join(conv.Filter, " ")
		conv.Filter = nil
		return reply.Newf("%sSorry, I was not able to find any hosts or services "+
			"for your search '%s'. Try again.", conv.path(), searched)
	}

	if !conv.Confirmed {
		if conv.ConfirmationSent {
			switch first := strings.ToLower(strings.TrimSpace(message)); {
			case strings.HasPrefix(first, "y"):
				conv.Confirmed = true
			case strings.HasPrefix(first, "n"):
				conv.Canceled = true
			default:
				conv.ConfirmationSent = false
			}
		}
		if !conv.ConfirmationSent {
			conv.ConfirmationSent = true
			return e.toggleConfirmationPrompt(conv)
		}
	}

	if conv.Canceled {
		sess.conv = nil
		return reply.Newf("%sOk, action has been canceled!", conv.path())
	}

	if conv.Confirmed {
		sess.conv = nil
		return e.dispatchToggle(ctx, conv, userID)
	}

	return nil
}

func (e *Engine) toggleConfirmationPrompt(conv *Conversation) *reply.Response {
	fields := []string{
		"> **Command**: " + conv.Command.Name + " " + conv.Sub.Name,
	}

	if !conv.Sub.Global {
		fields = append(fields, "> **Objects**:")
		for i, o := range conv.FilterResult {
			if i >= 10 {
				fields = append(fields, fmt.Sprintf("> … and %d more", len(conv.FilterResult)-10))
				break
			}
			name := o.Name
			if conv.Sub.ObjectKind == icinga.KindService {
				name = o.HostName + " - " + o.Name
			}
			fields = append(fields, "> • "+name)
		}
	}

	resp := reply.New("Confirm your action")
	resp.AddBlock(strings.Join(fields, "\n"))
	resp.AddBlock("Do you want to confirm this action?:")
	return resp
}

func (e *Engine) dispatchToggle(ctx context.Context, conv *Conversation, userID string) *reply.Response {
	cmd := conv.Command
	value := cmd.Name == "enable"

	e.log.Debug("sending attribute update",
		"command", cmd.Name, "sub", conv.Sub.Name, "attr", conv.Sub.Attribute)

	var (
		err     error
		success string
	)
	if conv.Sub.Global {
		success = fmt.Sprintf("Successfully %sd %s!", cmd.Name, conv.Sub.Name)
		err = e.executor.UpdateGlobalAttribute(ctx, conv.Sub.Attribute, value)
	} else {
		success = fmt.Sprintf("Successfully %sd %s for %s!",
			cmd.Name, conv.Sub.Name, strings.Join(conv.Filter, " "))
		err = e.executor.UpdateAttribute(ctx, conv.Sub.ObjectKind, conv.FilterUsed,
			conv.Sub.Attribute, value)
	}

	e.recordAudit(ctx, conv, userID, "", conv.FilterUsed, err)

	if err != nil {
		e.log.Error("attribute update failed", "command", cmd.Name, "error", err)
		return reply.Error("Icinga request error", err.Error())
	}
	return reply.New(success)
}
