package metrics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatmetrics/watchtower/pkg/alerts"
	"github.com/chatmetrics/watchtower/pkg/auditstore"
	"github.com/chatmetrics/watchtower/pkg/events"
)

func newTestService(store auditstore.Store) *Service {
	return NewService(store, zerolog.Nop())
}

func activeAlert(alertType alerts.AlertType) alerts.Alert {
	return alerts.Alert{
		ID:        fmt.Sprintf("a-%s-%d", alertType, time.Now().UnixNano()),
		Timestamp: time.Now(),
		Severity:  alerts.SeverityHigh,
		Type:      alertType,
	}
}

func TestCalculate_EmptyIsHealthy(t *testing.T) {
	svc := newTestService(auditstore.NewMemoryStore())
	now := time.Now()

	m, err := svc.Calculate(context.Background(), now.Add(-24*time.Hour), now, "", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, m.TotalEvents)
	assert.Equal(t, 100, m.SecurityScore)
	assert.Equal(t, ThreatLow, m.ThreatLevel)
	assert.Empty(t, m.UserRiskScores)
	assert.Empty(t, m.TopAlertTypes)
}

func TestCalculate_CriticalEventsAndAlertsForceCritical(t *testing.T) {
	store := auditstore.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Append(ctx, auditstore.Record{
			Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
			Type:      events.EventAuthentication,
			Action:    "login",
			Outcome:   events.OutcomeFailure,
			Severity:  events.SeverityCritical,
		}))
	}

	var snapshot []alerts.Alert
	for i := 0; i < 5; i++ {
		snapshot = append(snapshot, activeAlert(alerts.TypeRateLimitBreach))
	}

	svc := newTestService(store)
	m, err := svc.Calculate(ctx, now.Add(-time.Hour), now, "", snapshot)
	require.NoError(t, err)

	assert.Equal(t, 3, m.CriticalEvents)
	assert.Equal(t, 5, m.ActiveAlerts)
	assert.Equal(t, ThreatCritical, m.ThreatLevel)
}

func TestCalculate_BreakdownsAndCompanyScope(t *testing.T) {
	store := auditstore.NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Append(ctx, auditstore.Record{
		Timestamp: now.Add(-time.Minute), Type: events.EventAuthentication,
		Action: "login", Outcome: events.OutcomeSuccess, Severity: events.SeverityInfo,
		Country: "DE", CompanyID: "acme",
	}))
	require.NoError(t, store.Append(ctx, auditstore.Record{
		Timestamp: now.Add(-2 * time.Minute), Type: events.EventRateLimiting,
		Action: "api_call", Outcome: events.OutcomeRateLimited, Severity: events.SeverityLow,
		Country: "DE", CompanyID: "other",
	}))

	svc := newTestService(store)

	m, err := svc.Calculate(ctx, now.Add(-time.Hour), now, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, m.TotalEvents)
	assert.Equal(t, 2, m.EventsByCountry["DE"])
	assert.Equal(t, 1, m.EventsByType[string(events.EventAuthentication)])

	scoped, err := svc.Calculate(ctx, now.Add(-time.Hour), now, "acme", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, scoped.TotalEvents)
}

func TestSecurityScore(t *testing.T) {
	cases := []struct {
		name           string
		total          int
		critical       int
		active         int
		highRiskAlerts int
		want           int
	}{
		{"Healthy", 10, 0, 0, 0, 100},
		{"CriticalEvents", 10, 5, 0, 0, 90},
		{"CriticalEventsCapAt30", 10, 100, 0, 0, 70},
		{"ActiveAlerts", 10, 0, 2, 0, 94},
		{"ActiveAlertsCapAt25", 10, 0, 50, 0, 75},
		{"HighRiskAlertsCapAt20", 10, 0, 0, 10, 80},
		{"VolumePenalty", 1500, 0, 0, 0, 95},
		{"VolumePenaltyCapAt15", 10000, 0, 0, 0, 85},
		{"AllPenaltiesStack", 10000, 100, 50, 10, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			counts := map[alerts.AlertType]int{
				alerts.TypeBruteForceAttack: tc.highRiskAlerts,
			}
			got := securityScore(tc.total, tc.critical, tc.active, counts)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestThreatLevel(t *testing.T) {
	cases := []struct {
		score    int
		active   int
		critical int
		want     ThreatLevel
	}{
		{100, 0, 0, ThreatLow},
		{90, 0, 0, ThreatLow},
		{84, 0, 0, ThreatModerate},
		{100, 1, 0, ThreatModerate},
		{100, 0, 1, ThreatModerate},
		{69, 0, 0, ThreatHigh},
		{100, 3, 0, ThreatHigh},
		{100, 0, 2, ThreatHigh},
		{49, 0, 0, ThreatCritical},
		{100, 5, 0, ThreatCritical},
		{100, 0, 3, ThreatCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, threatLevel(tc.score, tc.active, tc.critical),
			"score=%d active=%d critical=%d", tc.score, tc.active, tc.critical)
	}
}

func TestThreatLevel_MonotonicInScore(t *testing.T) {
	rank := map[ThreatLevel]int{ThreatLow: 0, ThreatModerate: 1, ThreatHigh: 2, ThreatCritical: 3}
	prev := threatLevel(0, 0, 0)
	for score := 1; score <= 100; score++ {
		cur := threatLevel(score, 0, 0)
		assert.LessOrEqual(t, rank[cur], rank[prev], "score %d", score)
		prev = cur
	}
}

func TestUserRiskScores(t *testing.T) {
	now := time.Now()
	var records []auditstore.Record

	// heavy-hitter: enough weighted events to clamp at 100
	for i := 0; i < 20; i++ {
		records = append(records, auditstore.Record{
			Timestamp: now, Type: events.EventAuthentication, Action: "login",
			Outcome: events.OutcomeFailure, Severity: events.SeverityMedium, UserID: "heavy",
		})
	}
	// traveller: one failure in each of three countries (10 + 20 bonus)
	for _, country := range []string{"DE", "FR", "JP"} {
		records = append(records, auditstore.Record{
			Timestamp: now, Type: events.EventAuthentication, Action: "login",
			Outcome: events.OutcomeSuccess, Severity: events.SeverityInfo,
			UserID: "traveller", Country: country,
		})
	}
	records = append(records, auditstore.Record{
		Timestamp: now, Type: events.EventAuthentication, Action: "login",
		Outcome: events.OutcomeFailure, Severity: events.SeverityMedium, UserID: "traveller",
	})
	// twelve light users to exercise the top-10 cut
	for i := 0; i < 12; i++ {
		records = append(records, auditstore.Record{
			Timestamp: now, Type: events.EventAuthentication, Action: "login",
			Outcome: events.OutcomeFailure, Severity: events.SeverityMedium,
			UserID: fmt.Sprintf("light-%02d", i),
		})
	}

	risks := userRiskScores(records)

	require.Len(t, risks, 10)
	assert.Equal(t, "heavy", risks[0].UserID)
	assert.Equal(t, 100, risks[0].Score)
	assert.Equal(t, "traveller", risks[1].UserID)
	assert.Equal(t, 30, risks[1].Score)

	for i := 1; i < len(risks); i++ {
		assert.LessOrEqual(t, risks[i].Score, risks[i-1].Score)
	}
	for _, r := range risks {
		assert.GreaterOrEqual(t, r.Score, 0)
		assert.LessOrEqual(t, r.Score, 100)
	}
}

func TestTopAlertTypes(t *testing.T) {
	counts := map[alerts.AlertType]int{
		alerts.TypeBruteForceAttack:     7,
		alerts.TypeRateLimitBreach:      5,
		alerts.TypeCSRFAttack:           3,
		alerts.TypeGeolocationAnomaly:   2,
		alerts.TypeTemporalAnomaly:      2,
		alerts.TypeUnusualAdminActivity: 1,
	}

	top := topAlertTypes(counts, 5)
	require.Len(t, top, 5)
	assert.Equal(t, string(alerts.TypeBruteForceAttack), top[0].Type)
	assert.Equal(t, 7, top[0].Count)
	for i := 1; i < len(top); i++ {
		assert.LessOrEqual(t, top[i].Count, top[i-1].Count)
	}
}

func TestIPThreatLevel(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	seed := func(failedLogins, rateLimited, users int) *Service {
		store := auditstore.NewMemoryStore()
		for i := 0; i < failedLogins; i++ {
			store.Append(ctx, auditstore.Record{
				Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
				Type:      events.EventAuthentication, Action: "login",
				Outcome: events.OutcomeFailure, Severity: events.SeverityMedium,
				IPAddress: "1.2.3.4",
			})
		}
		for i := 0; i < rateLimited; i++ {
			store.Append(ctx, auditstore.Record{
				Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
				Type:      events.EventRateLimiting, Action: "api_call",
				Outcome: events.OutcomeRateLimited, Severity: events.SeverityLow,
				IPAddress: "1.2.3.4",
			})
		}
		for i := 0; i < users; i++ {
			store.Append(ctx, auditstore.Record{
				Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
				Type:      events.EventAuthentication, Action: "login",
				Outcome: events.OutcomeSuccess, Severity: events.SeverityInfo,
				IPAddress: "1.2.3.4", UserID: fmt.Sprintf("user-%d", i),
			})
		}
		return newTestService(store)
	}

	t.Run("QuietIPIsLow", func(t *testing.T) {
		a, err := seed(1, 0, 1).IPThreatLevel(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, ThreatLow, a.ThreatLevel)
		assert.Len(t, a.RiskFactors, 1)
		assert.Contains(t, a.Recommendations, "Continue monitoring")
	})

	t.Run("OneFactorIsModerate", func(t *testing.T) {
		a, err := seed(11, 0, 1).IPThreatLevel(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, ThreatModerate, a.ThreatLevel)
		assert.Len(t, a.RiskFactors, 1)
	})

	t.Run("TwoFactorsAreHigh", func(t *testing.T) {
		a, err := seed(11, 6, 1).IPThreatLevel(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, ThreatHigh, a.ThreatLevel)
		assert.Len(t, a.RiskFactors, 2)
	})

	t.Run("ThreeFactorsAreCritical", func(t *testing.T) {
		a, err := seed(11, 6, 6).IPThreatLevel(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, ThreatCritical, a.ThreatLevel)
		assert.Len(t, a.RiskFactors, 3)
	})
}
