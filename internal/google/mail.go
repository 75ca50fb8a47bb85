package google

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
)

const me = "me"

// Mail is the metadata of one message.
type Mail struct {
	ID      string
	From    string
	Subject string
	Date    string
	Snippet string
}

// Draft creates a plain text draft and returns its id.
func (c *Client) Draft(ctx context.Context, to, subject, body string) (string, error) {
	if to == "" {
		return "", fmt.Errorf("%w: receiver", ErrMissingArgument)
	}
	msg := &gmail.Message{Raw: encodeMessage(to, subject, body)}
	draft, err := c.gmail.Users.Drafts.Create(me, &gmail.Draft{Message: msg}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	c.log.WithField("draft_id", draft.Id).Info("draft created")
	return draft.Id, nil
}

// encodeMessage builds an RFC 2822 text message, base64url encoded as the
// API expects.
func encodeMessage(to, subject, body string) string {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(body)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

// Read lists up to max messages matching query with their headers.
func (c *Client) Read(ctx context.Context, max int64, query string) ([]Mail, error) {
	if max <= 0 {
		max = 5
	}
	if query == "" {
		query = "in:inbox"
	}
	list, err := c.gmail.Users.Messages.List(me).Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	mails := make([]Mail, 0, len(list.Messages))
	for _, m := range list.Messages {
		full, err := c.gmail.Users.Messages.Get(me, m.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject", "Date").
			Context(ctx).Do()
		if err != nil {
			return mails, fmt.Errorf("get message %s: %w", m.Id, err)
		}
		mail := Mail{ID: m.Id, Snippet: full.Snippet}
		if full.Payload != nil {
			for _, h := range full.Payload.Headers {
				switch h.Name {
				case "From":
					mail.From = h.Value
				case "Subject":
					mail.Subject = h.Value
				case "Date":
					mail.Date = h.Value
				}
			}
		}
		mails = append(mails, mail)
	}
	return mails, nil
}

// LabelChange returns the label ids to add and remove for action.
// Actions: star, unstar, mark_read, mark_unread, add_label, remove_label.
func LabelChange(action, value string) (add, remove []string, err error) {
	switch strings.ToLower(action) {
	case "star":
		return []string{"STARRED"}, nil, nil
	case "unstar":
		return nil, []string{"STARRED"}, nil
	case "mark_read":
		return nil, []string{"UNREAD"}, nil
	case "mark_unread":
		return []string{"UNREAD"}, nil, nil
	case "add_label":
		if value == "" {
			return nil, nil, fmt.Errorf("%w: label", ErrMissingArgument)
		}
		return []string{strings.ToUpper(value)}, nil, nil
	case "remove_label":
		if value == "" {
			return nil, nil, fmt.Errorf("%w: label", ErrMissingArgument)
		}
		return nil, []string{strings.ToUpper(value)}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

// Label applies action to the message id.
func (c *Client) Label(ctx context.Context, id, action, value string) error {
	if id == "" {
		return fmt.Errorf("%w: mail id", ErrMissingArgument)
	}
	add, remove, err := LabelChange(action, value)
	if err != nil {
		return err
	}
	req := &gmail.ModifyMessageRequest{AddLabelIds: add, RemoveLabelIds: remove}
	if _, err := c.gmail.Users.Messages.Modify(me, id, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("modify message: %w", err)
	}
	return nil
}
