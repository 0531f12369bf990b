// Package mailer delivers account emails (verification and password reset
// links) through an outbound relay.
package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
)

type Kind string

const (
	KindVerifyEmail   Kind = "verify_email"
	KindResetPassword Kind = "reset_password"
)

var (
	ErrFailedToSend = errors.New("failed to send email")
	ErrUnknownKind  = errors.New("unknown email kind")
)

// Dispatcher sends a single templated email containing link to the address to.
// Implementations do not retry.
type Dispatcher interface {
	Send(ctx context.Context, to string, kind Kind, link string) error
}

type message struct {
	Subject string
	HTML    string
	Text    string
}

var templates = map[Kind]struct {
	subject string
	html    *template.Template
	text    string
}{
	KindVerifyEmail: {
		subject: "Verify your email address",
		html: template.Must(template.New("verify").Parse(`<p>Welcome to SubTrack!</p>
<p>Please confirm your email address by clicking the link below. The link expires in one hour.</p>
<p><a href="{{.}}">Verify email</a></p>
<p>If you did not create an account, you can ignore this email.</p>`)),
		text: "Welcome to SubTrack! Confirm your email address within one hour: %s",
	},
	KindResetPassword: {
		subject: "Reset your password",
		html: template.Must(template.New("reset").Parse(`<p>We received a request to reset your password.</p>
<p><a href="{{.}}">Choose a new password</a></p>
<p>The link expires in one hour. If you did not ask for a reset, no action is needed.</p>`)),
		text: "Reset your SubTrack password within one hour: %s",
	},
}

func render(kind Kind, link string) (*message, error) {
	tpl, ok := templates[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	var buf bytes.Buffer
	if err := tpl.html.Execute(&buf, link); err != nil {
		return nil, fmt.Errorf("failed to render %s email: %w", kind, err)
	}
	return &message{
		Subject: tpl.subject,
		HTML:    buf.String(),
		Text:    fmt.Sprintf(tpl.text, link),
	}, nil
}
