// Package gateway содержит узкий клиент платёжного шлюза: создание
// hosted checkout-сессий, опрос их статуса и возвраты. Внутренности
// шлюза вне зоны ответственности сервиса.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Статусы checkout-сессии на стороне шлюза.
const (
	SessionStatusActive   = "ACTIVE"
	SessionStatusExpired  = "EXPIRED"
	SessionStatusCanceled = "CANCELED"
)

// CheckoutSession — ссылка на hosted платёжную страницу шлюза.
type CheckoutSession struct {
	ID              string `json:"id"`
	CheckoutURL     string `json:"checkout_url"`
	ReferenceNumber string `json:"reference_number"`
	Status          string `json:"status"`
}

// Refund — результат операции возврата.
type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateSessionInput описывает параметры новой checkout-сессии.
type CreateSessionInput struct {
	Amount      float64           `json:"amount"`
	Currency    string            `json:"currency"`
	Description string            `json:"description"`
	SuccessURL  string            `json:"success_url"`
	CancelURL   string            `json:"cancel_url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Client описывает контракт платёжного шлюза, потребляемый оркестратором.
type Client interface {
	CreateCheckoutSession(ctx context.Context, in CreateSessionInput) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateRefund(ctx context.Context, paymentID string, amount float64, reason string) (*Refund, error)
}

// HTTPClient реализует Client поверх REST API шлюза.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient создаёт экземпляр клиента шлюза.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateCheckoutSession создаёт hosted checkout-сессию.
func (c *HTTPClient) CreateCheckoutSession(ctx context.Context, in CreateSessionInput) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout_sessions", in, &session); err != nil {
		return nil, fmt.Errorf("gateway: create checkout session: %w", err)
	}
	return &session, nil
}

// GetCheckoutSession возвращает текущий статус checkout-сессии.
func (c *HTTPClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var session CheckoutSession
	if err := c.do(ctx, http.MethodGet, "/v1/checkout_sessions/"+sessionID, nil, &session); err != nil {
		return nil, fmt.Errorf("gateway: get checkout session %s: %w", sessionID, err)
	}
	return &session, nil
}

// CreateRefund инициирует возврат по внешнему платежу.
func (c *HTTPClient) CreateRefund(ctx context.Context, paymentID string, amount float64, reason string) (*Refund, error) {
	body := map[string]interface{}{
		"payment_id": paymentID,
		"amount":     amount,
		"reason":     reason,
	}

	var refund Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", body, &refund); err != nil {
		return nil, fmt.Errorf("gateway: create refund for %s: %w", paymentID, err)
	}
	return &refund, nil
}

// Параметры повторов для идемпотентных запросов к шлюзу.
const (
	maxAttempts = 3
	retryDelay  = 300 * time.Millisecond
)

type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

// do выполняет запрос к шлюзу. GET-запросы идемпотентны и повторяются
// ограниченное число раз при сетевой ошибке или 5xx; POST не повторяется:
// у шлюза нет ключа идемпотентности, и повтор создал бы дубликат.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = c.doOnce(ctx, method, path, raw, out)
		if lastErr == nil {
			return nil
		}
		if method != http.MethodGet || !isRetryable(lastErr) || attempt == maxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}

	return lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{status: resp.StatusCode, body: string(raw)}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// isRetryable отделяет временные сбои (транспорт, 5xx) от конечных ответов.
func isRetryable(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status >= http.StatusInternalServerError
	}
	return true
}
