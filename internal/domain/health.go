package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// ChatbotMetrics is returned by GET /v1/metrics/chatbot.
type ChatbotMetrics struct {
	TotalTurns       int64              `json:"totalTurns"`
	TurnsByRoute     map[string]int64   `json:"turnsByRoute"`
	IntentCounts     map[string]int64   `json:"intentCounts"`
	ShortcutHitRate  float64            `json:"shortcutHitRate"`
	FallbackRate     float64            `json:"fallbackRate"`
	ErrorRate        float64            `json:"errorRate"`
	OracleErrors     map[string]int64   `json:"oracleErrors"`
	ExternalErrors   map[string]int64   `json:"externalErrors"`
	PartialWrites    int64              `json:"partialWrites"`
	PromptTokens     int64              `json:"promptTokens"`
	CompletionTokens int64              `json:"completionTokens"`
	CacheHitRate     float64            `json:"cacheHitRate"`
	AvgLatencyMs     map[string]float64 `json:"avgLatencyMs"`
	Period           string             `json:"period"`
}
