package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mrz1836/postmark"
)

type PostmarkDispatcher struct {
	client  *postmark.Client
	from    string
	replyTo string
}

func NewPostmarkDispatcher(serverToken, accountToken, from, replyTo string) (*PostmarkDispatcher, error) {
	if serverToken == "" {
		return nil, errors.New("postmark server token is required")
	}
	if from == "" {
		return nil, errors.New("sender address is required")
	}
	return &PostmarkDispatcher{
		client:  postmark.NewClient(serverToken, accountToken),
		from:    from,
		replyTo: replyTo,
	}, nil
}

func (d *PostmarkDispatcher) Send(ctx context.Context, to string, kind Kind, link string) error {
	msg, err := render(kind, link)
	if err != nil {
		return err
	}

	resp, err := d.client.SendEmail(ctx, postmark.Email{
		From:     d.from,
		To:       to,
		ReplyTo:  d.replyTo,
		Subject:  msg.Subject,
		HTMLBody: msg.HTML,
		TextBody: msg.Text,
		Tag:      string(kind),
	})
	if err != nil {
		return errors.Join(ErrFailedToSend, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrFailedToSend, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}
