package notification

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReminderSource lists appointments due for a reminder and records that one
// was sent.
type ReminderSource interface {
	DueForReminder(ctx context.Context, from, to time.Time) ([]*AppointmentNotice, error)
	MarkReminded(ctx context.Context, appointmentID uuid.UUID) error
}

// ReminderWorker periodically emails patients whose appointment starts
// within Window.
type ReminderWorker struct {
	source    ReminderSource
	notifier  *Notifier
	interval  time.Duration
	window    time.Duration
	logger    zerolog.Logger
	now       func() time.Time
	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewReminderWorker returns a worker that runs every interval and reminds
// appointments starting within the next 24 hours.
func NewReminderWorker(source ReminderSource, notifier *Notifier, interval time.Duration, logger zerolog.Logger) *ReminderWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ReminderWorker{
		source:   source,
		notifier: notifier,
		interval: interval,
		window:   24 * time.Hour,
		logger:   logger,
		now:      time.Now,
	}
}

// Start schedules the worker. The first run happens immediately.
func (w *ReminderWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		return nil
	}
	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()
	if _, err := s.Every(w.interval).Do(func() {
		if _, err := w.RunOnce(context.Background()); err != nil {
			w.logger.Error().Err(err).Msg("appointment reminder run failed")
		}
	}); err != nil {
		return err
	}
	s.StartAsync()
	w.scheduler = s
	w.logger.Info().Dur("interval", w.interval).Msg("appointment reminder worker started")
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (w *ReminderWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.scheduler != nil {
		w.scheduler.Stop()
		w.scheduler = nil
	}
}

// RunOnce sends every due reminder and returns how many were sent. A failed
// send leaves the appointment unmarked so the next run retries it.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	now := w.now()
	due, err := w.source.DueForReminder(ctx, now, now.Add(w.window))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, n := range due {
		if err := w.notifier.Send(ctx, TemplateReminder, n); err != nil {
			w.logger.Warn().Err(err).Str("appointment_id", n.AppointmentID.String()).Msg("reminder not sent")
			continue
		}
		if err := w.source.MarkReminded(ctx, n.AppointmentID); err != nil {
			w.logger.Error().Err(err).Str("appointment_id", n.AppointmentID.String()).Msg("failed to mark reminder sent")
			continue
		}
		sent++
	}
	if sent > 0 {
		w.logger.Info().Int("sent", sent).Int("due", len(due)).Msg("appointment reminders sent")
	}
	return sent, nil
}
