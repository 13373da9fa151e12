package timeline

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
)

const (
	// WaitlistLead is how long after approval a utility token's waitlist opens.
	WaitlistLead = 24 * time.Hour

	DefaultUtilityLaunchDays  = 14
	DefaultSecurityLaunchDays = 21

	// MaxLaunchDays caps an owner's estimate at ten years.
	MaxLaunchDays = 3650

	// FieldEstimatedLaunchDays is the content key holding the owner's launch estimate.
	FieldEstimatedLaunchDays = "estimated_launch_days"
)

// Timeline holds the dates derived from an approval.
type Timeline struct {
	ApprovedAt          time.Time  `json:"approvedAt"`
	WaitlistOpensAt     *time.Time `json:"waitlistOpensAt"`
	MarketplaceLaunchAt time.Time  `json:"marketplaceLaunchAt"`
	EstimatedLaunchDays int        `json:"estimatedLaunchDays"`
}

// Defaults carries the per-type launch durations applied when a draft has no estimate.
type Defaults struct {
	UtilityDays  int
	SecurityDays int
}

// StandardDefaults returns the stock launch durations.
func StandardDefaults() Defaults {
	return Defaults{UtilityDays: DefaultUtilityLaunchDays, SecurityDays: DefaultSecurityLaunchDays}
}

// Days returns the default launch duration for the given token type.
func (d Defaults) Days(tokenType enums.TokenType) (int, error) {
	switch tokenType {
	case enums.TokenTypeUtility:
		if d.UtilityDays > 0 {
			return d.UtilityDays, nil
		}
		return DefaultUtilityLaunchDays, nil
	case enums.TokenTypeSecurity:
		if d.SecurityDays > 0 {
			return d.SecurityDays, nil
		}
		return DefaultSecurityLaunchDays, nil
	default:
		return 0, fmt.Errorf("unsupported token type %q", tokenType)
	}
}

// DefaultLaunchDays returns the stock launch duration for tokenType.
func DefaultLaunchDays(tokenType enums.TokenType) (int, error) {
	return StandardDefaults().Days(tokenType)
}

// Compute derives the timeline using the stock defaults.
func Compute(approvedAt time.Time, tokenType enums.TokenType, estimatedLaunchDays *int) (Timeline, error) {
	return StandardDefaults().Compute(approvedAt, tokenType, estimatedLaunchDays)
}

// Compute derives the waitlist and launch dates for an approval at approvedAt.
// A positive estimatedLaunchDays overrides the type default.
func (d Defaults) Compute(approvedAt time.Time, tokenType enums.TokenType, estimatedLaunchDays *int) (Timeline, error) {
	days, err := d.Days(tokenType)
	if err != nil {
		return Timeline{}, err
	}
	if estimatedLaunchDays != nil && *estimatedLaunchDays > 0 {
		days = *estimatedLaunchDays
	}

	approvedAt = approvedAt.UTC()
	out := Timeline{
		ApprovedAt:          approvedAt,
		MarketplaceLaunchAt: approvedAt.AddDate(0, 0, days),
		EstimatedLaunchDays: days,
	}
	if tokenType == enums.TokenTypeUtility {
		opens := approvedAt.Add(WaitlistLead)
		out.WaitlistOpensAt = &opens
	}
	return out, nil
}

// EstimatedLaunchDays reads the launch estimate from a draft's content document.
// It returns nil when the key is absent, null, or blank. Values must be whole numbers
// no larger than MaxLaunchDays.
func EstimatedLaunchDays(fields map[string]any) (*int, error) {
	raw, ok := fields[FieldEstimatedLaunchDays]
	if !ok || raw == nil {
		return nil, nil
	}

	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", FieldEstimatedLaunchDays)
		}
		value = f
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number", FieldEstimatedLaunchDays)
		}
		value = f
	default:
		return nil, fmt.Errorf("%s must be a number", FieldEstimatedLaunchDays)
	}

	if value != math.Trunc(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%s must be a whole number of days", FieldEstimatedLaunchDays)
	}
	if value > MaxLaunchDays {
		return nil, fmt.Errorf("%s must be at most %d", FieldEstimatedLaunchDays, MaxLaunchDays)
	}
	days := int(value)
	return &days, nil
}
