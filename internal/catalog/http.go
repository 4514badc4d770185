package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
)

// HTTPReader reads listings from the catalog service.
type HTTPReader struct {
	client *resty.Client
}

type listingResponse struct {
	Data struct {
		ID           uuid.UUID `json:"id"`
		SellerID     uuid.UUID `json:"sellerId"`
		Title        string    `json:"title"`
		PriceCents   int64     `json:"priceCents"`
		Currency     string    `json:"currency"`
		Status       string    `json:"status"`
		DeliveryMode string    `json:"deliveryMode"`
	} `json:"data"`
}

// NewHTTPReader builds a reader against cfg.BaseURL.
func NewHTTPReader(cfg config.CatalogConfig) (*HTTPReader, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("catalog base url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond)
	return &HTTPReader{client: client}, nil
}

func (r *HTTPReader) Listing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var out listingResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetPathParam("id", id.String()).
		SetResult(&out).
		Get("/listings/{id}")
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "catalog request failed")
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	case resp.IsError():
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("catalog returned %d", resp.StatusCode()))
	}

	currency, err := enums.ParseCurrency(out.Data.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "catalog listing currency")
	}
	status, err := enums.ParseListingStatus(out.Data.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "catalog listing status")
	}
	mode := enums.DeliveryModeAuto
	if out.Data.DeliveryMode != "" {
		if mode, err = enums.ParseDeliveryMode(out.Data.DeliveryMode); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeMalformed, err, "catalog listing delivery mode")
		}
	}

	return &models.Listing{
		ID:           out.Data.ID,
		SellerID:     out.Data.SellerID,
		Title:        out.Data.Title,
		PriceCents:   out.Data.PriceCents,
		Currency:     currency,
		Status:       status,
		DeliveryMode: mode,
	}, nil
}
