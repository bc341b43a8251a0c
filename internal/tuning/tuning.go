// Package tuning holds the engine's balance constants. Defaults are
// compiled in; a YAML file can override any subset of them.
package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config collects every tunable constant in the obligation engine.
// Countdowns and thresholds are denominated in segments (sim-hours).
type Config struct {
	QueueCapacity int `yaml:"queue_capacity"`

	// Leverage.
	DiplomacyDebtThreshold int `yaml:"diplomacy_debt_threshold"` // balance at or below this forces the debt position
	DiplomacyDebtPosition  int `yaml:"diplomacy_debt_position"`

	// Deadlines.
	ExpiryPenaltyTokens   int `yaml:"expiry_penalty_tokens"`
	ExtendCostTokens      int `yaml:"extend_cost_tokens"`
	ExtendBonusSegments   int `yaml:"extend_bonus_segments"`
	UrgentThreshold       int `yaml:"urgent_threshold"`   // remaining under or at this is urgent
	CriticalThreshold     int `yaml:"critical_threshold"` // remaining under or at this is critical
	StandingBonusSegments int `yaml:"standing_bonus_segments"`

	// Delivery.
	DeliveryRewardTokens int `yaml:"delivery_reward_tokens"`
	SkipCostTokens       int `yaml:"skip_cost_tokens"`

	// Displacement.
	AutoBurnCap int `yaml:"auto_burn_cap"` // per-party burn cap during automatic displacement

	// Meetings.
	MeetingUrgentThreshold   int `yaml:"meeting_urgent_threshold"`   // remaining strictly below this is urgent
	MeetingCriticalThreshold int `yaml:"meeting_critical_threshold"` // remaining strictly below this is critical
	MeetingRewardTokens      int `yaml:"meeting_reward_tokens"`
	MeetingEarlyBonusFloor   int `yaml:"meeting_early_bonus_floor"` // remaining at or above this earns a bonus trust token
	MeetingCancelPenalty     int `yaml:"meeting_cancel_penalty"`
	MeetingExpiryPenalty     int `yaml:"meeting_expiry_penalty"`

	// Statistics.
	RiskNegativeBalance  int     `yaml:"risk_negative_balance"` // any balance below this is high risk
	RiskReliabilityFloor float64 `yaml:"risk_reliability_floor"`
}

// Default returns the compiled-in constants.
func Default() Config {
	return Config{
		QueueCapacity: 8,

		DiplomacyDebtThreshold: -3,
		DiplomacyDebtPosition:  2,

		ExpiryPenaltyTokens:   2,
		ExtendCostTokens:      2,
		ExtendBonusSegments:   48,
		UrgentThreshold:       4,
		CriticalThreshold:     2,
		StandingBonusSegments: 24,

		DeliveryRewardTokens: 1,
		SkipCostTokens:       1,

		AutoBurnCap: 3,

		MeetingUrgentThreshold:   6,
		MeetingCriticalThreshold: 3,
		MeetingRewardTokens:      1,
		MeetingEarlyBonusFloor:   12,
		MeetingCancelPenalty:     1,
		MeetingExpiryPenalty:     2,

		RiskNegativeBalance:  -5,
		RiskReliabilityFloor: 0.3,
	}
}

// Load reads a YAML override file on top of the defaults. A missing path
// returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("tuning %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("tuning %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue_capacity must be at least 1, got %d", c.QueueCapacity)
	}
	if c.DiplomacyDebtPosition < 1 || c.DiplomacyDebtPosition > c.QueueCapacity {
		return fmt.Errorf("diplomacy_debt_position %d outside queue [1,%d]", c.DiplomacyDebtPosition, c.QueueCapacity)
	}
	if c.ExtendBonusSegments <= 0 {
		return fmt.Errorf("extend_bonus_segments must be positive, got %d", c.ExtendBonusSegments)
	}
	return nil
}
