package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ncc/internal/events"
)

type recordingMailer struct {
	sent []Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type HandlerSuite struct {
	suite.Suite
	mailer  *recordingMailer
	handler *Handler
	ctx     context.Context
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.mailer = &recordingMailer{}
	var err error
	s.handler, err = NewHandler(s.mailer,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEventName("NCC 2026"),
	)
	s.Require().NoError(err)
	s.ctx = context.Background()
}

func (s *HandlerSuite) event(t events.Type, to string) events.Event {
	e := events.New(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	e.RegistrationID = "NCC-1772445600000-ABCDEFGHJ"
	e.UserID = "user-1"
	e.Email = "alice@example.com"
	e.Name = "Alice <Wonder>"
	e.To = to
	return e
}

func (s *HandlerSuite) TestNewRequiresMailer() {
	_, err := NewHandler(nil)
	s.Require().Error(err)
}

func (s *HandlerSuite) TestApprovalSendsWelcome() {
	s.Require().NoError(s.handler.Handle(s.ctx, s.event(events.TypeStatusDecided, "approved")))
	s.Require().Len(s.mailer.sent, 1)

	msg := s.mailer.sent[0]
	s.Equal("alice@example.com", msg.To)
	s.Equal("Welcome to NCC 2026", msg.Subject)
	s.Contains(msg.HTML, "has been approved")
	s.Contains(msg.HTML, "NCC-1772445600000-ABCDEFGHJ")
	s.Contains(msg.HTML, "Alice &lt;Wonder&gt;", "names are escaped")
	s.Contains(msg.HTML, "<html>", "layout wraps the content")
}

func (s *HandlerSuite) TestRejectionSendsNotice() {
	s.Require().NoError(s.handler.Handle(s.ctx, s.event(events.TypeStatusDecided, "rejected")))
	s.Require().Len(s.mailer.sent, 1)
	s.Contains(s.mailer.sent[0].HTML, "unable to approve")
}

func (s *HandlerSuite) TestPaymentDecisions() {
	s.Require().NoError(s.handler.Handle(s.ctx, s.event(events.TypePaymentDecided, "approved")))
	s.Require().NoError(s.handler.Handle(s.ctx, s.event(events.TypePaymentDecided, "rejected")))
	s.Require().Len(s.mailer.sent, 2)
	s.Equal("NCC 2026 payment confirmed", s.mailer.sent[0].Subject)
	s.Equal("NCC 2026 payment could not be verified", s.mailer.sent[1].Subject)
}

func (s *HandlerSuite) TestNonDecisionIsIgnored() {
	s.Require().NoError(s.handler.Handle(s.ctx, s.event(events.TypeStatusDecided, "pending")))
	s.Empty(s.mailer.sent)
}

func (s *HandlerSuite) TestMissingRecipientIsSkipped() {
	e := s.event(events.TypeStatusDecided, "approved")
	e.Email = ""
	s.Require().NoError(s.handler.Handle(s.ctx, e))
	s.Empty(s.mailer.sent)
}

func (s *HandlerSuite) TestMailerFailureIsReturned() {
	s.mailer.err = errors.New("relay refused")
	err := s.handler.Handle(s.ctx, s.event(events.TypeStatusDecided, "approved"))
	s.Require().Error(err)
	s.Contains(err.Error(), "relay refused")
}

func (s *HandlerSuite) TestLogMailer() {
	s.NoError(NewLogMailer(nil).Send(s.ctx, Message{To: "alice@example.com", Subject: "hi"}))
}
