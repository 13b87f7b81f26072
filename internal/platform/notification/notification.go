// Package notification renders appointment emails and delivers them through
// a pluggable sender.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Template ids.
const (
	TemplateConfirmation = "appointment-confirmation"
	TemplateReminder     = "appointment-reminder"
	TemplateCancellation = "appointment-cancelled"
)

// AppointmentNotice carries what an appointment email needs.
type AppointmentNotice struct {
	AppointmentID uuid.UUID
	PatientName   string
	PatientEmail  string
	DoctorName    string
	Date          string
	Time          string
}

func (n *AppointmentNotice) data() map[string]string {
	return map[string]string{
		"patient_name": n.PatientName,
		"doctor_name":  n.DoctorName,
		"date":         n.Date,
		"time":         n.Time,
	}
}

// EmailSender delivers a rendered message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is a subject and body with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine holds the registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine returns an engine with the appointment templates loaded.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:      TemplateConfirmation,
			Subject: "Appointment confirmed for {{date}} at {{time}}",
			Body:    "Dear {{patient_name}}, your appointment with {{doctor_name}} on {{date}} at {{time}} is confirmed.",
		},
		{
			ID:      TemplateReminder,
			Subject: "Reminder: appointment on {{date}} at {{time}}",
			Body:    "Dear {{patient_name}}, this is a reminder of your appointment on {{date}} at {{time}} with {{doctor_name}}.",
		},
		{
			ID:      TemplateCancellation,
			Subject: "Appointment on {{date}} cancelled",
			Body:    "Dear {{patient_name}}, your appointment with {{doctor_name}} on {{date}} at {{time}} has been cancelled.",
		},
	} {
		e.RegisterTemplate(t)
	}
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render substitutes data into the template. Placeholders without data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

// ErrNoRecipient is returned when the patient has no email address.
var ErrNoRecipient = errors.New("patient has no email address")

// Notifier sends appointment emails. Booking and cancellation emails are
// sent in the background; reminders are sent synchronously by the worker.
type Notifier struct {
	sender    EmailSender
	templates *TemplateEngine
	logger    zerolog.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewNotifier returns a Notifier delivering through sender.
func NewNotifier(sender EmailSender, logger zerolog.Logger) *Notifier {
	return &Notifier{
		sender:    sender,
		templates: NewTemplateEngine(),
		logger:    logger,
		timeout:   30 * time.Second,
	}
}

// Send renders templateID for n and delivers it.
func (s *Notifier) Send(ctx context.Context, templateID string, n *AppointmentNotice) error {
	if n.PatientEmail == "" {
		return ErrNoRecipient
	}
	subject, body, err := s.templates.Render(templateID, n.data())
	if err != nil {
		return err
	}
	if err := s.sender.SendEmail(ctx, n.PatientEmail, subject, body); err != nil {
		return fmt.Errorf("send %s: %w", templateID, err)
	}
	return nil
}

// AppointmentBooked queues a confirmation email.
func (s *Notifier) AppointmentBooked(ctx context.Context, n *AppointmentNotice) {
	s.sendAsync(ctx, TemplateConfirmation, n)
}

// AppointmentCancelled queues a cancellation email.
func (s *Notifier) AppointmentCancelled(ctx context.Context, n *AppointmentNotice) {
	s.sendAsync(ctx, TemplateCancellation, n)
}

func (s *Notifier) sendAsync(ctx context.Context, templateID string, n *AppointmentNotice) {
	if n == nil || n.PatientEmail == "" {
		return
	}
	notice := *n
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.Send(ctx, templateID, &notice); err != nil {
			s.logger.Warn().Err(err).
				Str("template", templateID).
				Str("appointment_id", notice.AppointmentID.String()).
				Msg("appointment email not sent")
		}
	}()
}

// Wait blocks until queued emails have been attempted.
func (s *Notifier) Wait() {
	s.wg.Wait()
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// LogSender writes messages to the log instead of delivering them. It is
// used when no mail provider is configured.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email (not delivered)")
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MemorySender records messages. Tests use it as a double.
type MemorySender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
}

func (m *MemorySender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ShouldFail {
		return errors.New("send failed")
	}
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	return nil
}

// Calls returns a copy of recorded calls.
func (m *MemorySender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
