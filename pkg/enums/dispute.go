package enums

// DisputeStatus tracks a buyer dispute.
type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "OPEN"
	DisputeStatusResolved DisputeStatus = "RESOLVED"
	DisputeStatusRejected DisputeStatus = "REJECTED"
)

var disputeStatuses = newSet(
	DisputeStatusOpen,
	DisputeStatusResolved,
	DisputeStatusRejected,
)

func (s DisputeStatus) String() string {
	return string(s)
}

func (s DisputeStatus) IsValid() bool {
	return disputeStatuses.has(s)
}

func ParseDisputeStatus(value string) (DisputeStatus, error) {
	return disputeStatuses.parse("dispute status", value)
}

// DisputeAction is the admin decision on a dispute.
type DisputeAction string

const (
	DisputeActionRelease DisputeAction = "release"
	DisputeActionRefund  DisputeAction = "refund"
)

var disputeActions = newSet(
	DisputeActionRelease,
	DisputeActionRefund,
)

func (a DisputeAction) String() string {
	return string(a)
}

func (a DisputeAction) IsValid() bool {
	return disputeActions.has(a)
}

func ParseDisputeAction(value string) (DisputeAction, error) {
	return disputeActions.parse("dispute action", value)
}
