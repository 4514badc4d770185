package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
)

// QuoteRequest asks the provider to open a payment intent for an order.
type QuoteRequest struct {
	OrderID     uuid.UUID
	PayerID     uuid.UUID
	AmountCents int64
	Currency    enums.Currency
}

// Quote is the provider's answer. TxID is what later webhooks reference.
type Quote struct {
	Provider string
	TxID     string
}

// Provider opens payment intents. Implementations must not be called inside a
// database transaction.
type Provider interface {
	Name() string
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// NewProvider picks the provider implementation from configuration.
func NewProvider(cfg config.PaymentsConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", LocalProviderName:
		return NewLocalProvider(), nil
	default:
		return NewHTTPProvider(cfg)
	}
}

// LocalProviderName identifies payments opened by LocalProvider.
const LocalProviderName = "local"

// LocalProvider mints random txids without calling out. It backs local runs
// and tests; webhooks are then simulated against the returned txid.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (p *LocalProvider) Name() string { return LocalProviderName }

func (p *LocalProvider) Quote(_ context.Context, req QuoteRequest) (*Quote, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return &Quote{Provider: LocalProviderName, TxID: "local_" + uuid.NewString()}, nil
}

// HTTPProvider opens intents on the provider's REST API.
type HTTPProvider struct {
	name   string
	client *resty.Client
}

type intentRequest struct {
	Reference   string `json:"reference"`
	Payer       string `json:"payer"`
	AmountCents int64  `json:"amountCents"`
	Currency    string `json:"currency"`
}

type intentResponse struct {
	TxID string `json:"txid"`
}

// NewHTTPProvider builds a provider client against cfg.BaseURL.
func NewHTTPProvider(cfg config.PaymentsConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("payments base url required for provider %q", cfg.Provider)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetAuthToken(cfg.APIKey)
	return &HTTPProvider{name: strings.ToLower(cfg.Provider), client: client}, nil
}

func (p *HTTPProvider) Name() string { return p.name }

// Quote posts an intent. The order id is sent as the idempotency key so a
// retried quote returns the same txid.
func (p *HTTPProvider) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	var out intentResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.OrderID.String()).
		SetBody(intentRequest{
			Reference:   req.OrderID.String(),
			Payer:       req.PayerID.String(),
			AmountCents: req.AmountCents,
			Currency:    req.Currency.String(),
		}).
		SetResult(&out).
		Post("/intents")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePaymentFailed, err, "payment provider request failed")
	}
	if resp.IsError() {
		return nil, pkgerrors.New(pkgerrors.CodePaymentFailed, fmt.Sprintf("payment provider returned %d", resp.StatusCode()))
	}
	if strings.TrimSpace(out.TxID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeMalformed, "payment provider returned no txid")
	}
	return &Quote{Provider: p.name, TxID: out.TxID}, nil
}
