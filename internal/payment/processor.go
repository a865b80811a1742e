package payment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"gopay-be/internal/logger"
	"gopay-be/internal/metrics"
)

const maxProcessorBody = 64 << 10

// ProcessorResponse is the pipe-delimited reply of a direct post:
// code|subcode|reason_code|reason_text.
type ProcessorResponse struct {
	Code       string
	SubCode    string
	ReasonCode string
	ReasonText string
}

// Approved reports an approved (1) or held-for-review (4) transaction.
func (r ProcessorResponse) Approved() bool {
	return r.Code == "1" || r.Code == "4"
}

// ProcessorClient posts payment requests server to server.
type ProcessorClient struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
}

func NewProcessorClient(httpClient *http.Client, log *zap.Logger) *ProcessorClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gopay-processor",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("processor circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &ProcessorClient{httpClient: httpClient, breaker: breaker, log: log}
}

// Submit posts form to endpoint and parses the reply. Transport failures,
// non-2xx statuses, and unparseable bodies are ErrGatewayUnavailable; a
// decline is a successful call with a non-approved response.
func (p *ProcessorClient) Submit(ctx context.Context, endpoint, apiKey string, form url.Values, timeout time.Duration) (*ProcessorResponse, error) {
	log := logger.FromCtx(ctx, p.log).With(zap.String("order_id", form.Get("order_id")))
	timer := metrics.StartTimer()

	res, err := p.breaker.Execute(func() (interface{}, error) {
		return p.post(ctx, endpoint, apiKey, form, timeout)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn("processor circuit open, skipping request")
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		log.Error("processor request failed", zap.Error(err), zap.Duration("duration", timer.Duration()))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	resp := res.(*ProcessorResponse)
	log.Info("processor responded",
		zap.String("code", resp.Code),
		zap.String("reason_code", resp.ReasonCode),
		zap.Duration("duration", timer.Duration()),
	)
	return resp, nil
}

func (p *ProcessorClient) post(ctx context.Context, endpoint, apiKey string, form url.Values, timeout time.Duration) (*ProcessorResponse, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if apiKey != "" {
		req.SetBasicAuth(apiKey, "")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProcessorBody))
	if err != nil {
		return nil, fmt.Errorf("read processor response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("processor returned status %d", resp.StatusCode)
	}

	return parseProcessorResponse(string(body))
}

// parseProcessorResponse reads the first non-empty line of the body.
func parseProcessorResponse(body string) (*ProcessorResponse, error) {
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 4 {
			return nil, fmt.Errorf("unexpected processor response %q", line)
		}
		return &ProcessorResponse{
			Code:       strings.TrimSpace(parts[0]),
			SubCode:    strings.TrimSpace(parts[1]),
			ReasonCode: strings.TrimSpace(parts[2]),
			ReasonText: strings.TrimSpace(strings.Join(parts[3:], "|")),
		}, nil
	}
	return nil, errors.New("empty processor response")
}
