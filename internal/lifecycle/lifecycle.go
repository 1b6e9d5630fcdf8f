// Package lifecycle содержит чистые предикаты легальности переходов
// статусов заявки и эскроу. Функции не имеют побочных эффектов и должны
// вызываться до любой мутации состояния.
package lifecycle

import (
	"fmt"

	"github.com/ignatzorin/marketplace-backend/internal/models"
)

// Decision — результат проверки перехода. Reason заполняется
// человекочитаемой причиной при запрете.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...interface{}) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}

// jobTransitions — фиксированная таблица смежности легальных переходов
// статусов заявки. Статусы completed, rejected, refunded и expired —
// терминальные.
var jobTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPendingValidation: {models.JobStatusOpen, models.JobStatusRejected},
	models.JobStatusOpen:              {models.JobStatusAssigned, models.JobStatusRejected, models.JobStatusExpired},
	models.JobStatusAssigned:          {models.JobStatusInProgress, models.JobStatusDisputed},
	models.JobStatusInProgress:        {models.JobStatusCompleted, models.JobStatusDisputed},
	models.JobStatusDisputed:          {models.JobStatusCompleted, models.JobStatusRefunded},
}

// CanTransition проверяет, допустим ли перевод заявки в целевой статус.
// Переход в completed дополнительно требует зафондированного эскроу.
func CanTransition(job *models.Job, target models.JobStatus) Decision {
	if _, ok := models.ValidJobStatuses[target]; !ok {
		return deny("неизвестный статус заявки %q", target)
	}

	allowed, ok := jobTransitions[job.Status]
	if !ok {
		return deny("статус %q терминальный, переходы из него запрещены", job.Status)
	}

	found := false
	for _, s := range allowed {
		if s == target {
			found = true
			break
		}
	}
	if !found {
		return deny("переход %q → %q запрещён", job.Status, target)
	}

	if target == models.JobStatusCompleted && job.EscrowStatus != models.EscrowStatusFunded {
		return deny("заявку нельзя завершить: эскроу не зафондирован (статус %q)", job.EscrowStatus)
	}

	return allow()
}

// CanTransitionEscrow проверяет, допустим ли перевод эскроу заявки
// в целевое состояние.
func CanTransitionEscrow(job *models.Job, target models.EscrowStatus) Decision {
	switch target {
	case models.EscrowStatusFunded:
		if job.Status != models.JobStatusAssigned {
			return deny("эскроу можно зафондировать только для назначенной заявки, текущий статус %q", job.Status)
		}
		if job.EscrowStatus != models.EscrowStatusNotFunded {
			return deny("эскроу уже в состоянии %q", job.EscrowStatus)
		}
		return allow()

	case models.EscrowStatusReleased:
		if job.Status != models.JobStatusCompleted {
			return deny("средства выплачиваются только по завершённой заявке, текущий статус %q", job.Status)
		}
		if job.EscrowStatus != models.EscrowStatusFunded {
			return deny("нечего выплачивать: эскроу в состоянии %q", job.EscrowStatus)
		}
		return allow()

	case models.EscrowStatusRefunded:
		if job.EscrowStatus != models.EscrowStatusFunded {
			return deny("возврат возможен только из зафондированного эскроу, текущее состояние %q", job.EscrowStatus)
		}
		return allow()

	case models.EscrowStatusNotFunded:
		return deny("эскроу нельзя вернуть в состояние %q", target)

	default:
		return deny("неизвестное состояние эскроу %q", target)
	}
}
