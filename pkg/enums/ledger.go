package enums

// LedgerEntryType is the direction of a ledger posting.
type LedgerEntryType string

const (
	LedgerCredit LedgerEntryType = "CREDIT"
	LedgerDebit  LedgerEntryType = "DEBIT"
)

var ledgerEntryTypes = newSet(
	LedgerCredit,
	LedgerDebit,
)

func (t LedgerEntryType) String() string {
	return string(t)
}

func (t LedgerEntryType) IsValid() bool {
	return ledgerEntryTypes.has(t)
}

func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	return ledgerEntryTypes.parse("ledger entry type", value)
}

// LedgerEntryState is the balance bucket a posting affects.
type LedgerEntryState string

const (
	LedgerHeld      LedgerEntryState = "HELD"
	LedgerAvailable LedgerEntryState = "AVAILABLE"
)

var ledgerEntryStates = newSet(
	LedgerHeld,
	LedgerAvailable,
)

func (s LedgerEntryState) String() string {
	return string(s)
}

func (s LedgerEntryState) IsValid() bool {
	return ledgerEntryStates.has(s)
}

func ParseLedgerEntryState(value string) (LedgerEntryState, error) {
	return ledgerEntryStates.parse("ledger entry state", value)
}

// LedgerSource names the business event behind a posting.
type LedgerSource string

const (
	LedgerSourceOrderPayment LedgerSource = "ORDER_PAYMENT"
	LedgerSourcePayout       LedgerSource = "PAYOUT"
	LedgerSourceRefund       LedgerSource = "REFUND"
)

var ledgerSources = newSet(
	LedgerSourceOrderPayment,
	LedgerSourcePayout,
	LedgerSourceRefund,
)

func (s LedgerSource) String() string {
	return string(s)
}

func (s LedgerSource) IsValid() bool {
	return ledgerSources.has(s)
}

func ParseLedgerSource(value string) (LedgerSource, error) {
	return ledgerSources.parse("ledger source", value)
}
