package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"git.sr.ht/~aondrejcak/payrecon/kernel"
	"github.com/rs/zerolog/log"
	"go.nhat.io/otelsql/attribute"
	"go.opentelemetry.io/otel/metric"
)

// a single transaction envelope is a few KiB
const maxResponseBytes = 1 << 20

// Client queries one gateway transaction per call. It does no pacing of its
// own; callers space calls out.
type Client struct {
	baseUrl  string
	clientID string
	apiKey   string

	httpClient *http.Client
	diag       *kernel.AppDiagnostic
}

func NewClient(baseUrl, clientID, apiKey string, timeout time.Duration, diag *kernel.AppDiagnostic) *Client {
	return &Client{
		baseUrl:    baseUrl,
		clientID:   clientID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		diag:       diag,
	}
}

func NewClientFromRuntime(art *kernel.AppRuntime) *Client {
	return NewClient(art.GatewayUrl, art.GatewayClientID, art.GatewayApiKey, art.GatewayTimeout, art.Diagnostic)
}

// FetchTransaction returns the gateway's view of orderCode. Errors are either
// ErrTransactionNotFound or an *UnavailableError.
func (c *Client) FetchTransaction(ctx context.Context, orderCode string) (*Transaction, error) {
	span, ctx := c.diag.BeginTracing(ctx, "gateway.fetch_transaction")
	defer span.End()
	span.SetAttributes(attribute.KeyValue("payment.order_code", orderCode))

	tx, err := c.fetch(ctx, orderCode)
	outcome := "ok"
	switch {
	case errors.Is(err, ErrTransactionNotFound):
		outcome = "not_found"
	case err != nil:
		var ue *UnavailableError
		if errors.As(err, &ue) {
			outcome = string(ue.Kind)
		}
		kernel.SpanErr(span, err)
	}
	c.diag.GatewayCounter.Add(ctx, 1, metric.WithAttributes(attribute.KeyValue("outcome", outcome)))

	return tx, err
}

func (c *Client) fetch(ctx context.Context, orderCode string) (*Transaction, error) {
	span, ctx := c.diag.BeginTracing(ctx, "gateway.fetch_transaction.request")
	defer span.End()

	unavailable := func(kind UnavailableKind, err error) *UnavailableError {
		return &UnavailableError{Kind: kind, OrderCode: orderCode, Err: err}
	}

	gwUrl := fmt.Sprintf("%s/transaction/%s", c.baseUrl, url.PathEscape(orderCode))
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, gwUrl, nil)
	if err != nil {
		return nil, unavailable(KindTransport, fmt.Errorf("could not create request: %w", err))
	}

	requestId := kernel.MustUuidV7()
	r.Header.Add("x-client-id", c.clientID)
	r.Header.Add("x-api-key", c.apiKey)
	r.Header.Add("X-Request-ID", requestId)
	r.Header.Add("Accept", "application/json")
	span.SetAttributes(attribute.KeyValue("gateway.request_id", requestId))

	rsp, err := c.httpClient.Do(r)
	if err != nil {
		return nil, unavailable(KindTransport, fmt.Errorf("could not execute request: %w", err))
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close gateway response body")
		}
	}(rsp.Body)

	span.SetAttributes(attribute.KeyValue("http.status_code", rsp.StatusCode))

	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		ue := unavailable(KindStatus, fmt.Errorf("gateway returned %s", rsp.Status))
		ue.StatusCode = rsp.StatusCode
		return nil, kernel.SpanHttpErr(span, rsp, ue)
	}

	body, err := io.ReadAll(io.LimitReader(rsp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, unavailable(KindTransport, fmt.Errorf("could not read body: %w", err))
	}
	if int64(len(body)) > maxResponseBytes {
		return nil, unavailable(KindDecode, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, unavailable(KindDecode, fmt.Errorf("could not unmarshal body: %w", err))
	}

	switch env.Code {
	case codeSuccess:
	case codeNotFound:
		return nil, ErrTransactionNotFound
	default:
		ue := unavailable(KindLogical, errors.New(env.Desc))
		ue.Code = env.Code
		return nil, ue
	}

	if env.Data == nil {
		return nil, unavailable(KindDecode, errors.New("success envelope without data"))
	}
	if env.Data.OrderCode == "" {
		env.Data.OrderCode = OrderCode(orderCode)
	}

	span.SetAttributes(attribute.KeyValue("gateway.status", env.Data.Status))
	return env.Data, nil
}
