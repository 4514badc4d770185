package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lootbay/marketplace-backend/internal/notifications"
	"github.com/lootbay/marketplace-backend/pkg/db/models"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	pkgerrors "github.com/lootbay/marketplace-backend/pkg/errors"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/money"
	"github.com/lootbay/marketplace-backend/pkg/outbox"
	"github.com/lootbay/marketplace-backend/pkg/outbox/payloads"
	"github.com/lootbay/marketplace-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// Service posts settlement entries and answers balance questions.
type Service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	notifier *notifications.Dispatcher
	logg     *logger.Logger
}

// ServiceParams wires ledger dependencies.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Outbox     outboxPublisher
	Notifier   *notifications.Dispatcher
	Logger     *logger.Logger
}

// NewService wires a ledger service with the provided dependencies.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:     params.Repository,
		tx:       params.Tx,
		outbox:   params.Outbox,
		notifier: params.Notifier,
		logg:     params.Logger,
	}, nil
}

// CreditInput describes a credit posting.
type CreditInput struct {
	UserID      uuid.UUID
	OrderID     uuid.UUID
	PaymentID   uuid.UUID
	AmountCents int64
	Currency    enums.Currency
	State       enums.LedgerEntryState
	Source      enums.LedgerSource
	Description string
}

// Credit posts a credit inside tx. Posting the same (payment, state, source)
// twice returns the original entry.
func (s *Service) Credit(ctx context.Context, tx *gorm.DB, input CreditInput) (*models.LedgerEntry, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.State.IsValid() || !input.Source.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid ledger state or source")
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.FindPosting(ctx, input.PaymentID, enums.LedgerCredit, input.State, input.Source)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup ledger posting")
	}
	if existing != nil {
		return existing, nil
	}

	orderID, paymentID := input.OrderID, input.PaymentID
	entry := &models.LedgerEntry{
		UserID:      input.UserID,
		OrderID:     &orderID,
		PaymentID:   &paymentID,
		Type:        enums.LedgerCredit,
		State:       input.State,
		Source:      input.Source,
		AmountCents: input.AmountCents,
		Currency:    input.Currency,
		Description: input.Description,
	}
	if err := repo.Insert(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicatePosting) {
			existing, findErr := repo.FindPosting(ctx, input.PaymentID, enums.LedgerCredit, input.State, input.Source)
			if findErr != nil || existing == nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload ledger posting")
			}
			return existing, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert ledger entry")
	}

	s.logPosting(ctx, entry)
	return entry, nil
}

// Settlement summarizes the ledger postings of one order.
type Settlement struct {
	OrderID   uuid.UUID      `json:"order_id"`
	Status    string         `json:"status"`
	Held      money.Amount   `json:"held"`
	Available money.Amount   `json:"available"`
	Refunded  money.Amount   `json:"refunded"`
	Currency  enums.Currency `json:"currency"`
}

const (
	SettlementNone     = "none"
	SettlementHeld     = "held"
	SettlementReleased = "released"
	SettlementRefunded = "refunded"
)

type orderPostings struct {
	heldCredit      *models.LedgerEntry
	availableCredit *models.LedgerEntry
	refundDebit     *models.LedgerEntry
	entries         []models.LedgerEntry
}

func collectPostings(entries []models.LedgerEntry) orderPostings {
	p := orderPostings{entries: entries}
	for i := range entries {
		entry := &entries[i]
		switch {
		case entry.Type == enums.LedgerCredit && entry.State == enums.LedgerHeld && entry.Source == enums.LedgerSourceOrderPayment:
			p.heldCredit = entry
		case entry.Type == enums.LedgerCredit && entry.State == enums.LedgerAvailable && entry.Source == enums.LedgerSourceOrderPayment:
			p.availableCredit = entry
		case entry.Type == enums.LedgerDebit && entry.State == enums.LedgerHeld && entry.Source == enums.LedgerSourceRefund:
			p.refundDebit = entry
		}
	}
	return p
}

func (p orderPostings) settlement(orderID uuid.UUID) *Settlement {
	var held, available, refunded int64
	currency := enums.CurrencyUSD
	for _, entry := range p.entries {
		currency = entry.Currency
		switch entry.State {
		case enums.LedgerHeld:
			held += entry.Signed()
		case enums.LedgerAvailable:
			available += entry.Signed()
		}
		if entry.Source == enums.LedgerSourceRefund && entry.Type == enums.LedgerDebit {
			refunded += entry.AmountCents
		}
	}
	status := SettlementNone
	switch {
	case p.refundDebit != nil:
		status = SettlementRefunded
	case p.availableCredit != nil:
		status = SettlementReleased
	case p.heldCredit != nil:
		status = SettlementHeld
	}
	return &Settlement{
		OrderID:   orderID,
		Status:    status,
		Held:      money.NewAmount(held, currency),
		Available: money.NewAmount(available, currency),
		Refunded:  money.NewAmount(refunded, currency),
		Currency:  currency,
	}
}

func (s *Service) loadPostings(ctx context.Context, repo Repository, orderID uuid.UUID) (orderPostings, error) {
	entries, err := repo.ListByOrder(ctx, orderID)
	if err != nil {
		return orderPostings{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order ledger entries")
	}
	return collectPostings(entries), nil
}

func guardSettled(p orderPostings) error {
	if p.heldCredit == nil {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "no held funds for order")
	}
	if p.refundDebit != nil {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "already refunded")
	}
	if p.availableCredit != nil {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "already released")
	}
	return nil
}

// Release moves the order's held funds to the seller's available balance by
// posting a HELD debit and an AVAILABLE credit. The original credit stays.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*Settlement, error) {
	repo := s.repo.WithTx(tx)
	postings, err := s.loadPostings(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := guardSettled(postings); err != nil {
		return nil, err
	}

	held := postings.heldCredit
	for _, entry := range []*models.LedgerEntry{
		posting(held, enums.LedgerDebit, enums.LedgerHeld, enums.LedgerSourceOrderPayment, "release held funds"),
		posting(held, enums.LedgerCredit, enums.LedgerAvailable, enums.LedgerSourceOrderPayment, "funds released"),
	} {
		if err := repo.Insert(ctx, entry); err != nil {
			if errors.Is(err, ErrDuplicatePosting) {
				return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "already released")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert release entry")
		}
		s.logPosting(ctx, entry)
	}

	postings, err = s.loadPostings(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	return postings.settlement(orderID), nil
}

// Refund reverses the order's held funds with a HELD REFUND debit. It refuses
// once the funds were released.
func (s *Service) Refund(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*Settlement, error) {
	repo := s.repo.WithTx(tx)
	postings, err := s.loadPostings(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	if err := guardSettled(postings); err != nil {
		return nil, err
	}

	entry := posting(postings.heldCredit, enums.LedgerDebit, enums.LedgerHeld, enums.LedgerSourceRefund, "refund to buyer")
	if err := repo.Insert(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicatePosting) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "already refunded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert refund entry")
	}
	s.logPosting(ctx, entry)

	postings, err = s.loadPostings(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	return postings.settlement(orderID), nil
}

func posting(held *models.LedgerEntry, entryType enums.LedgerEntryType, state enums.LedgerEntryState, source enums.LedgerSource, description string) *models.LedgerEntry {
	return &models.LedgerEntry{
		UserID:      held.UserID,
		OrderID:     held.OrderID,
		PaymentID:   held.PaymentID,
		Type:        entryType,
		State:       state,
		Source:      source,
		AmountCents: held.AmountCents,
		Currency:    held.Currency,
		Description: description,
	}
}

// OrderSettlement reports the held, available and refunded totals of an order.
func (s *Service) OrderSettlement(ctx context.Context, orderID uuid.UUID) (*Settlement, error) {
	postings, err := s.loadPostings(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	return postings.settlement(orderID), nil
}

// OrderSettlementTx is OrderSettlement inside an open transaction.
func (s *Service) OrderSettlementTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*Settlement, error) {
	postings, err := s.loadPostings(ctx, s.repo.WithTx(tx), orderID)
	if err != nil {
		return nil, err
	}
	return postings.settlement(orderID), nil
}

// RequestPayout debits the seller's available balance. The balance check and
// the debit run under a per-seller lock so concurrent requests cannot overdraw.
func (s *Service) RequestPayout(ctx context.Context, sellerID uuid.UUID, amountCents int64, currency enums.Currency) (*models.LedgerEntry, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if amountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.LockUser(ctx, sellerID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock seller ledger")
		}
		available, err := repo.Sum(ctx, sellerID, currency, enums.LedgerAvailable)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum available balance")
		}
		if available < amountCents {
			return pkgerrors.New(pkgerrors.CodeInvalidState, "insufficient available balance").
				WithDetails(map[string]any{"available_cents": available, "requested_cents": amountCents})
		}

		entry = &models.LedgerEntry{
			UserID:      sellerID,
			Type:        enums.LedgerDebit,
			State:       enums.LedgerAvailable,
			Source:      enums.LedgerSourcePayout,
			AmountCents: amountCents,
			Currency:    currency,
			Description: "payout requested",
		}
		if err := repo.Insert(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payout entry")
		}
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregatePayout,
			AggregateID:   entry.ID,
			Actor:         &outbox.Actor{UserID: sellerID, Role: string(enums.RoleSeller)},
			Data: payloads.PayoutRequestedEvent{
				EntryID:     entry.ID,
				SellerID:    sellerID,
				AmountCents: amountCents,
				Currency:    currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logPosting(ctx, entry)
	s.notifier.Send(ctx, notifications.PayoutConfirmed(sellerID, nil, amountCents, currency))
	return entry, nil
}

// Balance is a user's settled and pending funds in one currency.
type Balance struct {
	Available money.Amount `json:"available"`
	Held      money.Amount `json:"held"`
}

// Balance sums the user's postings by state.
func (s *Service) Balance(ctx context.Context, userID uuid.UUID, currency enums.Currency) (*Balance, error) {
	if !currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	available, err := s.repo.Sum(ctx, userID, currency, enums.LedgerAvailable)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum available balance")
	}
	held, err := s.repo.Sum(ctx, userID, currency, enums.LedgerHeld)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum held balance")
	}
	return &Balance{
		Available: money.NewAmount(available, currency),
		Held:      money.NewAmount(held, currency),
	}, nil
}

// EntryList is one page of ledger entries.
type EntryList struct {
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// Entries pages the user's postings, newest first.
func (s *Service) Entries(ctx context.Context, userID uuid.UUID, params pagination.Params) (*EntryList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
	}
	list := &EntryList{}
	list.Entries, list.NextCursor = pagination.Trim(rows, params.Limit, func(row models.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: row.CreatedAt, ID: row.ID}
	})
	return list, nil
}

func (s *Service) logPosting(ctx context.Context, entry *models.LedgerEntry) {
	fields := map[string]any{
		"entry_id":     entry.ID.String(),
		"user_id":      entry.UserID.String(),
		"type":         entry.Type,
		"state":        entry.State,
		"source":       entry.Source,
		"amount_cents": entry.AmountCents,
	}
	if entry.OrderID != nil {
		fields["order_id"] = entry.OrderID.String()
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "ledger.posting")
}
