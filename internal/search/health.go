package search

import (
	"sort"
	"strings"
	"sync"
	"time"

	"componentsearch/searchservice/internal/domain"
)

// healthTracker keeps per-provider diagnostics. It is observational only and
// never decides whether a provider runs.
type healthTracker struct {
	mu     sync.Mutex
	states map[string]*providerHealth
}

type providerHealth struct {
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastTimeout         bool
	lastQuery           string
	lastRows            int
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
	panicCount          int64
}

func newHealthTracker() *healthTracker {
	return &healthTracker{states: make(map[string]*providerHealth)}
}

func (h *healthTracker) record(providerName, query, status string, err error, latency time.Duration, rows int, now time.Time) {
	if h == nil {
		return
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	if name == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	state := h.states[name]
	if state == nil {
		state = &providerHealth{}
		h.states[name] = state
	}
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	state.lastLatency = latency
	state.lastTimeout = status == "timeout"
	if state.lastTimeout {
		state.timeoutCount++
	}
	if status == "panic" {
		state.panicCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.lastError = ""
		state.lastSuccessAt = now
		state.lastRows = rows
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()
	state.lastRows = 0
}

func (h *healthTracker) diagnostics(infos []domain.ProviderInfo) []domain.ProviderDiagnostics {
	items := make([]domain.ProviderDiagnostics, 0, len(infos))

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, info := range infos {
		item := domain.ProviderDiagnostics{
			Name:    info.Name,
			Label:   info.Label,
			Kind:    info.Kind,
			Enabled: info.Enabled,
		}
		if state := h.states[strings.ToLower(info.Name)]; state != nil {
			item.ConsecutiveFailures = state.consecutiveFailures
			item.LastError = state.lastError
			if !state.lastSuccessAt.IsZero() {
				lastSuccessAt := state.lastSuccessAt
				item.LastSuccessAt = &lastSuccessAt
			}
			if !state.lastFailureAt.IsZero() {
				lastFailureAt := state.lastFailureAt
				item.LastFailureAt = &lastFailureAt
			}
			item.LastLatencyMS = state.lastLatency.Milliseconds()
			item.LastTimeout = state.lastTimeout
			item.LastQuery = state.lastQuery
			item.LastRows = state.lastRows
			item.TotalRequests = state.totalRequests
			item.TotalFailures = state.totalFailures
			item.TimeoutCount = state.timeoutCount
			item.PanicCount = state.panicCount
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items
}
