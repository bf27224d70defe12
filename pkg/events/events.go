// Package events defines the messages pennant nodes exchange over the
// event bus: document invalidations and flag exposure events. The ingestor
// consumes the same types, so the wire format lives here and nowhere else.
package events

import (
	"time"

	"github.com/pennant-io/pennant/pkg/flags"
)

// NATS subjects.
const (
	// SubjectInvalidate carries document change notices. Every serving node
	// subscribes so a write on one node evicts the cached document on all.
	SubjectInvalidate = "pennant.config.invalidate"

	// SubjectExposure carries exposure events. Ingestors consume it with a
	// queue group so horizontally scaled ingestors share the load.
	SubjectExposure = "pennant.events.exposure"
)

// Invalidation tells every node to drop its cached document for a tenant.
type Invalidation struct {
	App string `json:"app"`
	Env string `json:"env"`
}

// Exposure records one decision on a trackable flag.
type Exposure struct {
	EventID     string     `json:"eventId"`
	App         string     `json:"app"`
	Env         string     `json:"env"`
	FlagID      string     `json:"flagId"`
	FlagType    flags.Type `json:"flagType"`
	Identity    string     `json:"identity"`
	Fired       bool       `json:"fired"`
	VariationID string     `json:"variationId,omitempty"`
	EvaluatedAt time.Time  `json:"evaluatedAt"`
}
