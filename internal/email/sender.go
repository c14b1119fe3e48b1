package email

import (
	"context"
	"errors"
)

// Sender define la interfaz para envio de correos.
type Sender interface {
	Send(ctx context.Context, toEmail, subject, body string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) Send(_ context.Context, _, _, _ string) error {
	if s.reason == "" {
		return ErrDisabled
	}
	return errors.Join(ErrDisabled, errors.New(s.reason))
}

// ErrDisabled indica que no hay SMTP configurado.
var ErrDisabled = errors.New("email sender disabled")
