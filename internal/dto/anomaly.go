package dto

// TrainRequest starts a training run. Async queues the run and returns immediately.
type TrainRequest struct {
	TenantID       string `json:"tenant_id" validate:"omitempty,max=64"`
	Async          bool   `json:"async"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"omitempty,min=1,max=3600"`
}

// DetectRequest scores either a stored scan or a raw feature map.
type DetectRequest struct {
	TenantID string             `json:"tenant_id" validate:"omitempty,max=64"`
	ScanID   string             `json:"attendance_id" validate:"required_without=Features"`
	Features map[string]float64 `json:"features" validate:"required_without=ScanID"`
}

// ThresholdsRequest overrides severity cut-offs of a tenant. High must not exceed Medium.
type ThresholdsRequest struct {
	TenantID string  `json:"tenant_id" validate:"omitempty,max=64"`
	High     float64 `json:"high" validate:"gte=-1,lte=1,ltefield=Medium"`
	Medium   float64 `json:"medium" validate:"gte=-1,lte=1"`
}

// TrainingQueued acknowledges an async training request.
type TrainingQueued struct {
	TenantID string `json:"tenant_id"`
	JobID    string `json:"job_id"`
	Queued   bool   `json:"queued"`
}
