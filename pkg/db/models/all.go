package models

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&Listing{},
		&InventoryItem{},
		&Order{},
		&OrderItem{},
		&OrderEvent{},
		&Payment{},
		&WebhookRejection{},
		&LedgerEntry{},
		&Dispute{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
