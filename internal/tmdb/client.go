// Package tmdb клиент The Movie Database API с автоматом отключения при сбоях.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/magabrotheeeer/vortextv/internal/config"
	"github.com/magabrotheeeer/vortextv/internal/metrics"
)

const breakerName = "tmdb-api"

// maxErrorBody ограничивает чтение тела ответа с ошибкой.
const maxErrorBody = 4 << 10

// ErrUnavailable автомат разомкнут, запрос не отправлялся.
var ErrUnavailable = errors.New("metadata provider unavailable")

// Error ошибка обращения к TMDB. Текст возвращается клиенту как есть.
type Error struct {
	Status  int
	Message string
	// Err исходная ошибка транспорта, если ответа не было.
	Err error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Client выполняет GET-запросы к TMDB.
type Client struct {
	apiKey     string
	apiURL     string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[json.RawMessage]
	log        *slog.Logger
}

// NewClient создаёт клиент TMDB. Автомат размыкается после 60% ошибок
// минимум на 10 запросах и пробует восстановиться через минуту.
func NewClient(log *slog.Logger, cfg config.TMDB) *Client {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// 4xx означает неверный запрос клиента, а не сбой провайдера.
		// Отмена запроса вызывающим тоже не говорит о здоровье провайдера.
		IsSuccessful: func(err error) bool {
			if errors.Is(err, context.Canceled) {
				return true
			}
			var apiErr *Error
			if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
				return true
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Client{
		apiKey:     cfg.APIKey,
		apiURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cb:         cb,
		log:        log,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Get запрашивает path с параметрами params и возвращает тело ответа.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	const op = "tmdb.Get"
	body, err := c.cb.Execute(func() (json.RawMessage, error) {
		return c.do(ctx, path, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.RecordUpstream("breaker_open")
			return nil, fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
		metrics.RecordUpstream("error")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.RecordUpstream("ok")
	return body, nil
}

func (c *Client) newRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, path, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Message: transportMessage(err), Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Status: resp.StatusCode, Message: statusMessage(resp.Body)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Message: transportMessage(err), Err: err}
	}
	if !json.Valid(body) {
		return nil, &Error{Status: resp.StatusCode, Message: "malformed response body"}
	}
	return body, nil
}

// statusMessage достает status_message из ответа TMDB с ошибкой.
func statusMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var payload struct {
		StatusMessage string `json:"status_message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.StatusMessage != "" {
		return payload.StatusMessage
	}
	return strings.TrimSpace(string(raw))
}

// transportMessage скрывает URL запроса, в котором передается api_key.
func transportMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
