package wallet

// Payment statuses recorded in the settlement ledger. They mirror the
// processor's payment entity statuses.
const (
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusFailed     = "failed"
)

// PaymentData is the normalized shape forwarded to the main backend after a
// successful settlement. The forwarder signs the marshalled bytes of exactly
// this structure.
type PaymentData struct {
	PaymentID  string            `json:"paymentId"`
	OrderID    string            `json:"orderId"`
	CustomerID string            `json:"customerId"`
	Amount     int64             `json:"amount"`
	Status     string            `json:"status"`
	EventType  string            `json:"eventType"`
	Timestamp  string            `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
