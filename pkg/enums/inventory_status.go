package enums

// InventoryStatus tracks a single sellable unit.
type InventoryStatus string

const (
	InventoryStatusAvailable InventoryStatus = "AVAILABLE"
	InventoryStatusReserved  InventoryStatus = "RESERVED"
	InventoryStatusDelivered InventoryStatus = "DELIVERED"
)

var inventoryStatuses = newSet(
	InventoryStatusAvailable,
	InventoryStatusReserved,
	InventoryStatusDelivered,
)

func (s InventoryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known InventoryStatus.
func (s InventoryStatus) IsValid() bool {
	return inventoryStatuses.has(s)
}

// ParseInventoryStatus converts raw input into a InventoryStatus.
func ParseInventoryStatus(value string) (InventoryStatus, error) {
	return inventoryStatuses.parse("inventory status", value)
}
