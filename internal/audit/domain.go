package audit

import "time"

// Record mewakili satu baris audit trail keputusan akses.
type Record struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	UserID    string         `json:"userId"`
	Resource  string         `json:"resource"`
	Action    string         `json:"action"`
	Allowed   bool           `json:"allowed"`
	Source    string         `json:"source"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Filters menampung filter dasar untuk audit timeline.
type Filters struct {
	UserID   string
	Resource string
	Action   string
	Allowed  *bool
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []Record   `json:"rows"`
	Paging PagingInfo `json:"paging"`
}
