package enums

// WebhookOutcome classifies how a webhook record was handled.
type WebhookOutcome string

const (
	WebhookOutcomeConfirmed WebhookOutcome = "confirmed"
	WebhookOutcomeFailed    WebhookOutcome = "failed"
	WebhookOutcomeIgnored   WebhookOutcome = "ignored"
	WebhookOutcomeRejected  WebhookOutcome = "rejected"
)

var webhookOutcomes = newSet(
	WebhookOutcomeConfirmed,
	WebhookOutcomeFailed,
	WebhookOutcomeIgnored,
	WebhookOutcomeRejected,
)

func (o WebhookOutcome) String() string {
	return string(o)
}

func (o WebhookOutcome) IsValid() bool {
	return webhookOutcomes.has(o)
}

func ParseWebhookOutcome(value string) (WebhookOutcome, error) {
	return webhookOutcomes.parse("webhook outcome", value)
}
