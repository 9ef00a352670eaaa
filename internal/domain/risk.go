package domain

import "time"

// RiskEventType identifies a boundary-hitting risk decision.
type RiskEventType string

const (
	RiskEventDailyLossHit  RiskEventType = "DAILY_LOSS_HIT"
	RiskEventCityCapHit    RiskEventType = "CITY_CAP_HIT"
	RiskEventClusterCapHit RiskEventType = "CLUSTER_CAP_HIT"
	RiskEventTradeCapHit   RiskEventType = "TRADE_CAP_HIT"
	RiskEventRejectBurst   RiskEventType = "REJECT_BURST"
	RiskEventStaleWeather  RiskEventType = "STALE_WEATHER"
)

// RiskSeverity grades a risk event for alert routing.
type RiskSeverity string

const (
	RiskSeverityInfo     RiskSeverity = "INFO"
	RiskSeverityWarning  RiskSeverity = "WARNING"
	RiskSeverityCritical RiskSeverity = "CRITICAL"
)

// RiskEvent is an audit record of a cap, breaker, or staleness decision.
type RiskEvent struct {
	ID        string // UUID
	Type      RiskEventType
	Severity  RiskSeverity
	Payload   map[string]any
	CreatedAt time.Time
}

// Refusal is a structured risk-engine rejection. It is a decision outcome,
// not an error: the loop records it and moves to the next candidate.
type Refusal struct {
	Cap     RiskEventType
	Current float64 // exposure already committed, dollars
	Limit   float64 // the cap that would be exceeded, dollars
	Detail  string
}

// Event converts the refusal into a persistable risk event.
func (r Refusal) Event(now time.Time, payload map[string]any) RiskEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["current_exposure"] = r.Current
	payload["limit"] = r.Limit
	if r.Detail != "" {
		payload["detail"] = r.Detail
	}
	return RiskEvent{
		Type:      r.Cap,
		Severity:  RiskSeverityWarning,
		Payload:   payload,
		CreatedAt: now,
	}
}
