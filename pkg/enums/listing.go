package enums

// ListingStatus mirrors the catalog publication state.
type ListingStatus string

const (
	ListingStatusDraft     ListingStatus = "DRAFT"
	ListingStatusPublished ListingStatus = "PUBLISHED"
	ListingStatusArchived  ListingStatus = "ARCHIVED"
)

var listingStatuses = newSet(
	ListingStatusDraft,
	ListingStatusPublished,
	ListingStatusArchived,
)

func (s ListingStatus) String() string {
	return string(s)
}

func (s ListingStatus) IsValid() bool {
	return listingStatuses.has(s)
}

func ParseListingStatus(value string) (ListingStatus, error) {
	return listingStatuses.parse("listing status", value)
}

// DeliveryMode controls how purchased units reach the buyer.
type DeliveryMode string

const (
	DeliveryModeAuto   DeliveryMode = "AUTO"
	DeliveryModeManual DeliveryMode = "MANUAL"
)

var deliveryModes = newSet(
	DeliveryModeAuto,
	DeliveryModeManual,
)

func (m DeliveryMode) String() string {
	return string(m)
}

func (m DeliveryMode) IsValid() bool {
	return deliveryModes.has(m)
}

func ParseDeliveryMode(value string) (DeliveryMode, error) {
	return deliveryModes.parse("delivery mode", value)
}
