package webhooks

import "time"

// Endpoint is a tenant-registered webhook receiver.
type Endpoint struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// DeliveryStatus tracks one delivery attempt's lifecycle.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliverySuccess, DeliveryFailed:
		return true
	}
	return false
}

// Delivery records one dispatch of an event to an endpoint.
type Delivery struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenantId"`
	EndpointID    string         `json:"endpointId"`
	EventType     string         `json:"eventType"`
	Payload       []byte         `json:"payload"`
	Status        DeliveryStatus `json:"status"`
	AttemptCount  int            `json:"attemptCount"`
	LastAttemptAt *time.Time     `json:"lastAttemptAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}
