package tickets

import (
	"time"

	"github.com/laces/genesis/internal/domain"
)

// Recommendation is the deterministic maintenance action for a node's
// current health reading.
type Recommendation struct {
	Action        string
	Parts         []string
	Cost          float64
	DowntimeHours float64
}

// HealthInputs is the slice of a NodeHealth result the recommendation
// rule table decides against.
type HealthInputs struct {
	Vibration float64
	Temperature float64
	ToolWear  float64
}

// Config carries the critical thresholds the rule table checks against.
type Config struct {
	VibrationCritical   float64
	TemperatureCritical float64
}

// Recommend walks the rule table top to bottom; the first matching rule
// wins.
func Recommend(h HealthInputs, cfg Config) Recommendation {
	switch {
	case h.ToolWear >= 80:
		return Recommendation{
			Action:        "Replace cutting tool",
			Parts:         []string{"Cutting Tool Assembly"},
			Cost:          450,
			DowntimeHours: 2.0,
		}
	case h.Vibration >= cfg.VibrationCritical:
		return Recommendation{
			Action:        "Inspect & replace bearings",
			Parts:         []string{"Front Bearing Set", "Rear Bearing Set"},
			Cost:          1200,
			DowntimeHours: 8.0,
		}
	case h.Temperature >= cfg.TemperatureCritical:
		return Recommendation{
			Action:        "Check cooling, replace thermal compound",
			Parts:         []string{"Thermal Compound", "Coolant"},
			Cost:          150,
			DowntimeHours: 3.0,
		}
	default:
		return Recommendation{
			Action:        "Routine inspection & lubrication",
			Parts:         []string{"Lubricant", "Filter Kit"},
			Cost:          80,
			DowntimeHours: 1.5,
		}
	}
}

const (
	criticalUrgency = 24 * time.Hour
	defaultUrgency  = 168 * time.Hour
)

// Urgency returns the response window for a ticket of the given
// priority: 24h for critical, 168h (one week) for anything else.
func Urgency(priority domain.TicketPriority) time.Duration {
	if priority == domain.PriorityCritical {
		return criticalUrgency
	}
	return defaultUrgency
}
