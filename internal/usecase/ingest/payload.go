package ingest

// Event payloads are decoded from the raw webhook JSON into the narrow
// shapes this service needs. Identifiers arrive unexpanded (plain ids),
// which is how the gateway delivers webhook objects.

type checkoutSessionPayload struct {
	ID          string            `json:"id"`
	Mode        string            `json:"mode"`
	Customer    string            `json:"customer"`
	AmountTotal int64             `json:"amount_total"`
	Metadata    map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
	PeriodStart  int64             `json:"period_start"`
	PeriodEnd    int64             `json:"period_end"`
}

type subscriptionPayload struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	Metadata         map[string]string `json:"metadata"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
}
