package access

// CheckRequest asks whether the authenticated principal may perform an
// action. Log defaults to true; callers probing speculatively set it false
// to keep the audit trail clean.
type CheckRequest struct {
	Resource string         `json:"resource" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Context  map[string]any `json:"context"`
	Log      *bool          `json:"log"`
}

// EvaluateSyncRequest asks for a full decision for an arbitrary user within
// the caller's tenant.
type EvaluateSyncRequest struct {
	UserID   string         `json:"userId" validate:"required"`
	Resource string         `json:"resource" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Context  map[string]any `json:"context"`
}

// EvaluateAsyncRequest queues an evaluation for background processing.
type EvaluateAsyncRequest struct {
	UserID   string         `json:"userId" validate:"required"`
	Resource string         `json:"resource" validate:"required"`
	Action   string         `json:"action" validate:"required"`
	Context  map[string]any `json:"context"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

type enqueuedResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}
