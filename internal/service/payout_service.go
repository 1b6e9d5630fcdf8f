package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignatzorin/marketplace-backend/internal/models"
	"github.com/ignatzorin/marketplace-backend/internal/pkg/apperror"
	"github.com/ignatzorin/marketplace-backend/internal/repository"
)

// Минимальная сумма вывода средств.
const minPayoutAmount = 100

// PayoutRepository описывает взаимодействие сервиса с хранилищем выводов.
type PayoutRepository interface {
	Create(ctx context.Context, providerID uuid.UUID, amount float64, cardLast4, bankName string) (*models.Payout, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.Payout, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.PayoutStatus, notes *string) (*models.Payout, error)
	AvailableBalance(ctx context.Context, providerID uuid.UUID) (float64, error)
}

// payoutTransitions — легальные переходы статусов заявки на вывод.
var payoutTransitions = map[models.PayoutStatus][]models.PayoutStatus{
	models.PayoutStatusPending:    {models.PayoutStatusProcessing, models.PayoutStatusRejected},
	models.PayoutStatusProcessing: {models.PayoutStatusCompleted, models.PayoutStatusRejected},
}

// PayoutService содержит бизнес-логику вывода заработанных средств.
type PayoutService struct {
	repo PayoutRepository
}

// NewPayoutService создаёт новый сервис выводов.
func NewPayoutService(repo PayoutRepository) *PayoutService {
	return &PayoutService{repo: repo}
}

// RequestPayout создаёт заявку исполнителя на вывод средств.
func (s *PayoutService) RequestPayout(ctx context.Context, providerID uuid.UUID, amount float64, cardLast4, bankName string) (*models.Payout, error) {
	if amount < minPayoutAmount {
		return nil, apperror.New(apperror.ErrCodeBadRequest, "минимальная сумма вывода — 100")
	}

	payout, err := s.repo.Create(ctx, providerID, amount, cardLast4, bankName)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientFunds) {
			return nil, apperror.Unprocessable("недостаточно средств для вывода")
		}
		return nil, err
	}

	return payout, nil
}

// GetPayout возвращает заявку на вывод с проверкой владельца.
func (s *PayoutService) GetPayout(ctx context.Context, id, providerID uuid.UUID) (*models.Payout, error) {
	payout, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPayoutNotFound) {
			return nil, apperror.NotFound("заявка на вывод не найдена")
		}
		return nil, err
	}

	if payout.ProviderID != providerID {
		return nil, apperror.Forbidden("заявка на вывод принадлежит другому исполнителю")
	}

	return payout, nil
}

// ListMyPayouts возвращает заявки на вывод исполнителя.
func (s *PayoutService) ListMyPayouts(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByProvider(ctx, providerID, limit, offset)
}

// AvailableBalance возвращает доступный исполнителю остаток.
func (s *PayoutService) AvailableBalance(ctx context.Context, providerID uuid.UUID) (float64, error) {
	return s.repo.AvailableBalance(ctx, providerID)
}

// ProcessPayout переводит заявку на вывод в новый статус (операция администратора).
func (s *PayoutService) ProcessPayout(ctx context.Context, id uuid.UUID, status models.PayoutStatus, notes *string) (*models.Payout, error) {
	payout, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPayoutNotFound) {
			return nil, apperror.NotFound("заявка на вывод не найдена")
		}
		return nil, err
	}

	allowed := false
	for _, next := range payoutTransitions[payout.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, apperror.Unprocessable("недопустимый переход статуса заявки на вывод")
	}

	return s.repo.UpdateStatus(ctx, id, status, notes)
}
