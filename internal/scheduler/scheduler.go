package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/lifecycle"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// JobSweepRepository описывает выборки заявок для сверочных проходов.
type JobSweepRepository interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) (*models.Job, error)
	ListExpiryCandidates(ctx context.Context, cutoff time.Time) ([]models.Job, error)
	ListStaleFundedCompleted(ctx context.Context, cutoff time.Time) ([]models.Job, error)
	ListUnfundedAssigned(ctx context.Context, cutoff time.Time) ([]models.Job, error)
	ListOpenWithoutQuotes(ctx context.Context, cutoff time.Time) ([]models.Job, error)
	ListFundedNotStarted(ctx context.Context, cutoff time.Time) ([]models.Job, error)
	ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]models.Job, error)
	ListReleasedWithoutReview(ctx context.Context, cutoff time.Time) ([]models.Job, error)
}

// QuoteSweepRepository описывает массовое устаревание откликов.
type QuoteSweepRepository interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time) ([]models.Quote, error)
}

// PayoutSweepRepository описывает выборку и отклонение зависших выплат.
type PayoutSweepRepository interface {
	ListStalePending(ctx context.Context, cutoff time.Time) ([]models.Payout, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.PayoutStatus, notes *string) (*models.Payout, error)
}

// DisputeSweepRepository описывает эскалацию затянувшихся споров.
type DisputeSweepRepository interface {
	ListStaleUnresolved(ctx context.Context, cutoff time.Time) ([]models.Dispute, error)
	MarkInvestigating(ctx context.Context, id uuid.UUID) error
}

// EscrowSweeper описывает операции эскроу, выполняемые планировщиком.
type EscrowSweeper interface {
	ReleaseEscrow(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	RepairStuckFunding(ctx context.Context) (int, error)
}

// AdminLister возвращает администраторов для эскалаций.
type AdminLister interface {
	ListAdmins(ctx context.Context) ([]models.User, error)
}

// Notifier сохраняет уведомление и рассылает его по WebSocket.
type Notifier interface {
	CreateNotificationForWS(ctx context.Context, userID uuid.UUID, event string, data interface{}) error
}

// Порог эскалации открытых споров.
const disputeEscalationAge = 5 * 24 * time.Hour

// Пороги напоминаний участникам.
const (
	fundingReminderAge    = 24 * time.Hour
	noQuotesReminderAge   = 3 * 24 * time.Hour
	startReminderAge      = 48 * time.Hour
	completionReminderAge = 7 * 24 * time.Hour
	reviewReminderAge     = 24 * time.Hour
)

// Scheduler периодически запускает сверочные проходы: устаревание заявок и
// откликов, автовыплату зависших эскроу, дорасход зависшего фондирования,
// напоминания участникам и эскалацию споров.
type Scheduler struct {
	jobs          JobSweepRepository
	quotes        QuoteSweepRepository
	payouts       PayoutSweepRepository
	disputes      DisputeSweepRepository
	escrow        EscrowSweeper
	users         AdminLister
	notifications Notifier

	interval      time.Duration
	jobExpiry     time.Duration
	escrowRelease time.Duration
	quoteExpiry   time.Duration
	payoutExpiry  time.Duration
}

// New создаёт планировщик с порогами из конфигурации.
func New(cfg *config.Config, jobs JobSweepRepository, quotes QuoteSweepRepository, payouts PayoutSweepRepository, disputes DisputeSweepRepository, escrow EscrowSweeper, users AdminLister, notifications Notifier) *Scheduler {
	return &Scheduler{
		jobs:          jobs,
		quotes:        quotes,
		payouts:       payouts,
		disputes:      disputes,
		escrow:        escrow,
		users:         users,
		notifications: notifications,
		interval:      cfg.SweepInterval,
		jobExpiry:     time.Duration(cfg.JobExpiryDays) * 24 * time.Hour,
		escrowRelease: time.Duration(cfg.EscrowReleaseDays) * 24 * time.Hour,
		quoteExpiry:   time.Duration(cfg.QuoteExpiryDays) * 24 * time.Hour,
		payoutExpiry:  time.Duration(cfg.PayoutExpiryDays) * 24 * time.Hour,
	}
}

// Run запускает цикл сверок до отмены контекста. Первый проход выполняется
// сразу, далее по тикеру.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if logger.Log != nil {
				logger.Log.Info("scheduler: остановлен")
			}
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один полный проход всех сверок. Ошибки отдельных
// проходов логируются и не прерывают остальные.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	if n, err := s.RepairStuckFunding(ctx); err != nil {
		s.logSweepError("repair_stuck_funding", err)
	} else if n > 0 {
		s.logSweepCount("repair_stuck_funding", n)
	}

	if n, err := s.ExpireStaleJobs(ctx, now); err != nil {
		s.logSweepError("expire_stale_jobs", err)
	} else if n > 0 {
		s.logSweepCount("expire_stale_jobs", n)
	}

	if n, err := s.ReleaseStaleEscrow(ctx, now); err != nil {
		s.logSweepError("release_stale_escrow", err)
	} else if n > 0 {
		s.logSweepCount("release_stale_escrow", n)
	}

	if n, err := s.ExpireStaleQuotes(ctx, now); err != nil {
		s.logSweepError("expire_stale_quotes", err)
	} else if n > 0 {
		s.logSweepCount("expire_stale_quotes", n)
	}

	if n, err := s.ExpireStalePayouts(ctx, now); err != nil {
		s.logSweepError("expire_stale_payouts", err)
	} else if n > 0 {
		s.logSweepCount("expire_stale_payouts", n)
	}

	if n, err := s.EscalateStaleDisputes(ctx, now); err != nil {
		s.logSweepError("escalate_stale_disputes", err)
	} else if n > 0 {
		s.logSweepCount("escalate_stale_disputes", n)
	}

	if err := s.SendReminders(ctx, now); err != nil {
		s.logSweepError("send_reminders", err)
	}
}

// RepairStuckFunding дофондирует заявки, по которым платёж уже отмечен
// оплаченным, но эскроу не переведён в funded.
func (s *Scheduler) RepairStuckFunding(ctx context.Context) (int, error) {
	return s.escrow.RepairStuckFunding(ctx)
}

// ExpireStaleJobs переводит в expired заявки, которые так и не дошли до
// назначения исполнителя за отведённый срок.
func (s *Scheduler) ExpireStaleJobs(ctx context.Context, now time.Time) (int, error) {
	jobs, err := s.jobs.ListExpiryCandidates(ctx, now.Add(-s.jobExpiry))
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range jobs {
		job := &jobs[i]
		if decision := lifecycle.CanTransition(job, models.JobStatusExpired); !decision.Allowed {
			continue
		}
		if _, err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusExpired); err != nil {
			s.logRecordError("expire_stale_jobs", job.ID, err)
			continue
		}
		expired++
		s.notify(ctx, job.ClientID, "job.expired", map[string]interface{}{
			"job_id": job.ID,
		})
	}
	return expired, nil
}

// ReleaseStaleEscrow выплачивает средства по завершённым заявкам, в которых
// клиент не подтвердил выплату за отведённый срок. Повторный запуск
// ничего не находит: выплаченные заявки выходят из выборки.
func (s *Scheduler) ReleaseStaleEscrow(ctx context.Context, now time.Time) (int, error) {
	jobs, err := s.jobs.ListStaleFundedCompleted(ctx, now.Add(-s.escrowRelease))
	if err != nil {
		return 0, err
	}

	released := 0
	for i := range jobs {
		job := &jobs[i]
		if _, err := s.escrow.ReleaseEscrow(ctx, job.ID); err != nil {
			s.logRecordError("release_stale_escrow", job.ID, err)
			continue
		}
		released++
	}
	return released, nil
}

// ExpireStaleQuotes массово устаревает отклики, оставшиеся без ответа,
// и уведомляет их авторов.
func (s *Scheduler) ExpireStaleQuotes(ctx context.Context, now time.Time) (int, error) {
	quotes, err := s.quotes.ExpireStalePending(ctx, now.Add(-s.quoteExpiry))
	if err != nil {
		return 0, err
	}

	for i := range quotes {
		s.notify(ctx, quotes[i].ProviderID, "quote.expired", map[string]interface{}{
			"quote_id": quotes[i].ID,
			"job_id":   quotes[i].JobID,
		})
	}
	return len(quotes), nil
}

// ExpireStalePayouts отклоняет заявки на выплату, которые администратор
// не обработал за отведённый срок. Средства возвращаются в доступный баланс.
func (s *Scheduler) ExpireStalePayouts(ctx context.Context, now time.Time) (int, error) {
	payouts, err := s.payouts.ListStalePending(ctx, now.Add(-s.payoutExpiry))
	if err != nil {
		return 0, err
	}

	notes := "отклонена автоматически: не обработана в срок"
	rejected := 0
	for i := range payouts {
		p := &payouts[i]
		if _, err := s.payouts.UpdateStatus(ctx, p.ID, models.PayoutStatusRejected, &notes); err != nil {
			s.logRecordError("expire_stale_payouts", p.ID, err)
			continue
		}
		rejected++
		s.notify(ctx, p.ProviderID, "payout.expired", map[string]interface{}{
			"payout_id": p.ID,
			"amount":    p.Amount,
		})
	}
	return rejected, nil
}

// EscalateStaleDisputes переводит затянувшиеся открытые споры в статус
// investigating и уведомляет администраторов. Расследуемые споры без
// движения эскалируются повторно, когда с прошлой эскалации прошёл порог.
func (s *Scheduler) EscalateStaleDisputes(ctx context.Context, now time.Time) (int, error) {
	disputes, err := s.disputes.ListStaleUnresolved(ctx, now.Add(-disputeEscalationAge))
	if err != nil {
		return 0, err
	}
	if len(disputes) == 0 {
		return 0, nil
	}

	admins, err := s.users.ListAdmins(ctx)
	if err != nil {
		return 0, err
	}

	escalated := 0
	for i := range disputes {
		d := &disputes[i]
		if err := s.disputes.MarkInvestigating(ctx, d.ID); err != nil {
			s.logRecordError("escalate_stale_disputes", d.ID, err)
			continue
		}
		escalated++
		for _, admin := range admins {
			s.notify(ctx, admin.ID, "dispute.escalated", map[string]interface{}{
				"dispute_id": d.ID,
				"job_id":     d.JobID,
			})
		}
	}
	return escalated, nil
}

// SendReminders рассылает напоминания по заявкам, застрявшим на одном из
// промежуточных шагов. Статусы не меняются.
func (s *Scheduler) SendReminders(ctx context.Context, now time.Time) error {
	if jobs, err := s.jobs.ListUnfundedAssigned(ctx, now.Add(-fundingReminderAge)); err != nil {
		s.logSweepError("remind_unfunded_assigned", err)
	} else {
		for i := range jobs {
			s.notify(ctx, jobs[i].ClientID, "job.funding_reminder", map[string]interface{}{
				"job_id": jobs[i].ID,
			})
		}
	}

	if jobs, err := s.jobs.ListOpenWithoutQuotes(ctx, now.Add(-noQuotesReminderAge)); err != nil {
		s.logSweepError("remind_open_without_quotes", err)
	} else {
		for i := range jobs {
			s.notify(ctx, jobs[i].ClientID, "job.no_quotes_reminder", map[string]interface{}{
				"job_id": jobs[i].ID,
			})
		}
	}

	if jobs, err := s.jobs.ListFundedNotStarted(ctx, now.Add(-startReminderAge)); err != nil {
		s.logSweepError("remind_funded_not_started", err)
	} else {
		for i := range jobs {
			if jobs[i].ProviderID == nil {
				continue
			}
			s.notify(ctx, *jobs[i].ProviderID, "job.start_reminder", map[string]interface{}{
				"job_id": jobs[i].ID,
			})
		}
	}

	if jobs, err := s.jobs.ListStaleInProgress(ctx, now.Add(-completionReminderAge)); err != nil {
		s.logSweepError("remind_stale_in_progress", err)
	} else {
		for i := range jobs {
			if jobs[i].ProviderID == nil {
				continue
			}
			s.notify(ctx, *jobs[i].ProviderID, "job.completion_reminder", map[string]interface{}{
				"job_id": jobs[i].ID,
			})
		}
	}

	if jobs, err := s.jobs.ListReleasedWithoutReview(ctx, now.Add(-reviewReminderAge)); err != nil {
		s.logSweepError("remind_released_without_review", err)
	} else {
		for i := range jobs {
			s.notify(ctx, jobs[i].ClientID, "review.reminder", map[string]interface{}{
				"job_id": jobs[i].ID,
			})
		}
	}

	return nil
}

func (s *Scheduler) notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	if s.notifications == nil {
		return
	}
	if err := s.notifications.CreateNotificationForWS(ctx, userID, event, data); err != nil {
		if logger.Log != nil {
			logger.Log.WithError(err).WithField("event", event).
				Warn("scheduler: не удалось отправить уведомление")
		}
	}
}

func (s *Scheduler) logSweepError(sweep string, err error) {
	if logger.Log != nil {
		logger.Log.WithError(err).WithField("sweep", sweep).Error("scheduler: проход завершился ошибкой")
	}
}

func (s *Scheduler) logSweepCount(sweep string, n int) {
	if logger.Log != nil {
		logger.Log.WithField("sweep", sweep).WithField("count", n).Info("scheduler: проход обработал записи")
	}
}

func (s *Scheduler) logRecordError(sweep string, id uuid.UUID, err error) {
	if logger.Log != nil {
		logger.Log.WithError(err).WithField("sweep", sweep).WithField("id", id).
			Warn("scheduler: запись пропущена из-за ошибки")
	}
}
