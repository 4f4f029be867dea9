package domain

import (
	"strings"
	"time"
)

// ProviderConfig carries per-provider credentials. A provider whose required
// fields are blank is excluded from a search run rather than failed.
type ProviderConfig struct {
	MouserAPIKey        string
	DigiKeyClientID     string
	DigiKeyClientSecret string
	TMEToken            string
	TMESecret           string
	FarnellAPIKey       string
	FarnellRegion       string
	ChipDipEnabled      bool
}

// Fingerprint identifies which providers a config enables without exposing
// any secret. Used in cache keys.
func (c ProviderConfig) Fingerprint() string {
	parts := make([]string, 0, 5)
	if strings.TrimSpace(c.MouserAPIKey) != "" {
		parts = append(parts, "mouser")
	}
	if strings.TrimSpace(c.DigiKeyClientID) != "" && strings.TrimSpace(c.DigiKeyClientSecret) != "" {
		parts = append(parts, "digikey")
	}
	if strings.TrimSpace(c.TMEToken) != "" && strings.TrimSpace(c.TMESecret) != "" {
		parts = append(parts, "tme")
	}
	if strings.TrimSpace(c.FarnellAPIKey) != "" {
		parts = append(parts, "farnell@"+strings.ToLower(strings.TrimSpace(c.FarnellRegion)))
	}
	if c.ChipDipEnabled {
		parts = append(parts, "chipdip")
	}
	return strings.Join(parts, ",")
}

type OutcomeStatus string

const (
	OutcomeOK    OutcomeStatus = "ok"
	OutcomeError OutcomeStatus = "error"
)

type OutcomeMeta struct {
	TotalRows int    `json:"totalRows"`
	UsedQuery string `json:"usedQuery"`
	ElapsedMS int64  `json:"elapsedMs"`
}

// ProviderOutcome is the settled result of one provider task.
type ProviderOutcome struct {
	Status  OutcomeStatus
	Rows    []CanonicalRow
	Meta    OutcomeMeta
	Message string
}

func (o ProviderOutcome) OK() bool {
	return o.Status == OutcomeOK
}

// ProviderSummary is the diagnostic line per provider in a search result.
type ProviderSummary struct {
	Provider  string        `json:"provider"`
	Status    OutcomeStatus `json:"status"`
	Total     *int          `json:"total,omitempty"`
	ElapsedMS *int64        `json:"elapsedMs,omitempty"`
	UsedQuery string        `json:"usedQuery,omitempty"`
	Message   string        `json:"message,omitempty"`
}

type OrchestrationResult struct {
	Rows      []CanonicalRow    `json:"rows"`
	Providers []ProviderSummary `json:"providerSummaries"`
}

type SearchRequest struct {
	Query   string
	NoCache bool
}

type SearchResponse struct {
	Query     string            `json:"query"`
	Rows      []CanonicalRow    `json:"rows"`
	Providers []ProviderSummary `json:"providerSummaries"`
	TotalRows int               `json:"totalRows"`
	ElapsedMS int64             `json:"elapsedMs"`
	Cached    bool              `json:"cached,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	Phase     string            `json:"phase,omitempty"`
	Final     bool              `json:"final"`
	Error     string            `json:"error,omitempty"`
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	LastRows            int        `json:"lastRows"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
	PanicCount          int64      `json:"panicCount,omitempty"`
}
