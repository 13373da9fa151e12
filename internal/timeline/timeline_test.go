package timeline

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tokenizr-backend/pkg/enums"
)

func intPtr(v int) *int { return &v }

func TestComputeUtilityDefaults(t *testing.T) {
	approvedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := Compute(approvedAt, enums.TokenTypeUtility, nil)
	require.NoError(t, err)
	require.NotNil(t, got.WaitlistOpensAt)
	require.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), *got.WaitlistOpensAt)
	require.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), got.MarketplaceLaunchAt)
	require.Equal(t, 14, got.EstimatedLaunchDays)
}

func TestComputeSecurityCustomDuration(t *testing.T) {
	approvedAt := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := Compute(approvedAt, enums.TokenTypeSecurity, intPtr(30))
	require.NoError(t, err)
	require.Nil(t, got.WaitlistOpensAt)
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), got.MarketplaceLaunchAt)
	require.Equal(t, 30, got.EstimatedLaunchDays)
}

func TestComputeSecurityDefault(t *testing.T) {
	approvedAt := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := Compute(approvedAt, enums.TokenTypeSecurity, nil)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC), got.MarketplaceLaunchAt)
}

func TestComputeNonPositiveFallsBackToDefault(t *testing.T) {
	approvedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, days := range []int{0, -3} {
		got, err := Compute(approvedAt, enums.TokenTypeUtility, intPtr(days))
		require.NoError(t, err)
		require.Equal(t, 14, got.EstimatedLaunchDays)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	approvedAt := time.Date(2025, 6, 30, 17, 45, 12, 0, time.UTC)
	cases := []struct {
		tokenType enums.TokenType
		days      *int
	}{
		{enums.TokenTypeUtility, nil},
		{enums.TokenTypeUtility, intPtr(7)},
		{enums.TokenTypeSecurity, nil},
		{enums.TokenTypeSecurity, intPtr(45)},
	}

	for _, tc := range cases {
		first, err := Compute(approvedAt, tc.tokenType, tc.days)
		require.NoError(t, err)
		second, err := Compute(approvedAt, tc.tokenType, tc.days)
		require.NoError(t, err)
		require.Equal(t, first, second)
		if tc.tokenType == enums.TokenTypeUtility {
			require.Equal(t, approvedAt.Add(24*time.Hour), *first.WaitlistOpensAt)
		}
	}
}

func TestComputeNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	approvedAt := time.Date(2025, 1, 1, 2, 0, 0, 0, loc)

	got, err := Compute(approvedAt, enums.TokenTypeUtility, nil)
	require.NoError(t, err)
	require.Equal(t, time.UTC, got.ApprovedAt.Location())
	require.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), got.MarketplaceLaunchAt)
}

func TestComputeUnknownTokenType(t *testing.T) {
	_, err := Compute(time.Now(), enums.TokenType("nft"), nil)
	require.Error(t, err)
}

func TestDefaultsOverride(t *testing.T) {
	d := Defaults{UtilityDays: 10}
	approvedAt := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := d.Compute(approvedAt, enums.TokenTypeUtility, nil)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC), got.MarketplaceLaunchAt)

	sec, err := d.Days(enums.TokenTypeSecurity)
	require.NoError(t, err)
	require.Equal(t, DefaultSecurityLaunchDays, sec)
}

func TestEstimatedLaunchDays(t *testing.T) {
	cases := []struct {
		name    string
		fields  map[string]any
		want    *int
		wantErr bool
	}{
		{name: "absent", fields: map[string]any{}},
		{name: "null", fields: map[string]any{"estimated_launch_days": nil}},
		{name: "json float", fields: map[string]any{"estimated_launch_days": float64(30)}, want: intPtr(30)},
		{name: "json number", fields: map[string]any{"estimated_launch_days": json.Number("12")}, want: intPtr(12)},
		{name: "numeric string", fields: map[string]any{"estimated_launch_days": " 21 "}, want: intPtr(21)},
		{name: "blank string", fields: map[string]any{"estimated_launch_days": ""}},
		{name: "fraction", fields: map[string]any{"estimated_launch_days": 1.5}, wantErr: true},
		{name: "garbage", fields: map[string]any{"estimated_launch_days": "soon"}, wantErr: true},
		{name: "bool", fields: map[string]any{"estimated_launch_days": true}, wantErr: true},
		{name: "at cap", fields: map[string]any{"estimated_launch_days": float64(MaxLaunchDays)}, want: intPtr(MaxLaunchDays)},
		{name: "beyond cap", fields: map[string]any{"estimated_launch_days": 1e20}, wantErr: true},
		{name: "huge json number", fields: map[string]any{"estimated_launch_days": json.Number("1e300")}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EstimatedLaunchDays(tc.fields)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
