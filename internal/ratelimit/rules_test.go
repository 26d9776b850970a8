package ratelimit

import (
	"testing"
	"time"

	"github.com/aman-churiwal/api-guard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRules() []Rule {
	return []Rule{
		{Endpoint: "/search", Limit: 3, Window: 60 * time.Second, BlockFor: 120 * time.Second},
		{Endpoint: "/repos", Method: "POST", Limit: 10, Window: 60 * time.Second},
		{Method: "DELETE", Limit: 5, Window: 60 * time.Second},
		{Limit: 60, Window: 60 * time.Second},
	}
}

func TestMatchRule(t *testing.T) {
	rules := testRules()

	tests := []struct {
		name     string
		endpoint string
		method   string
		want     Rule
	}{
		{"endpoint specific", "/search", "GET", rules[0]},
		{"endpoint and method", "/repos", "POST", rules[1]},
		{"endpoint without method match falls through", "/repos", "GET", rules[3]},
		{"method only", "/anything", "DELETE", rules[2]},
		{"default", "/other", "GET", rules[3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchRule(rules, tt.endpoint, tt.method)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchRuleDeclarationOrderWins(t *testing.T) {
	rules := []Rule{
		{Endpoint: "/a", Limit: 1, Window: time.Second},
		{Endpoint: "/a", Limit: 99, Window: time.Second},
	}

	got, ok := MatchRule(rules, "/a", "GET")
	require.True(t, ok)
	assert.Equal(t, 1, got.Limit)
}

func TestMatchRuleIsPure(t *testing.T) {
	rules := testRules()

	first, ok := MatchRule(rules, "/search", "GET")
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		got, ok := MatchRule(rules, "/search", "GET")
		require.True(t, ok)
		assert.Equal(t, first, got)
	}
}

func TestMatchRuleNoMatch(t *testing.T) {
	rules := []Rule{{Endpoint: "/only", Limit: 1, Window: time.Second}}

	_, ok := MatchRule(rules, "/other", "GET")
	assert.False(t, ok)
}

func TestRulesFromConfig(t *testing.T) {
	specs := []config.RuleSpec{
		{
			Endpoint:           "/search",
			Limit:              3,
			WindowSeconds:      60,
			BlockForSeconds:    120,
			TokenLimit:         30,
			TokenWindowSeconds: 60,
		},
	}

	rules := RulesFromConfig(specs)
	require.Len(t, rules, 1)
	assert.Equal(t, Rule{
		Endpoint:    "/search",
		Limit:       3,
		Window:      60 * time.Second,
		BlockFor:    120 * time.Second,
		TokenLimit:  30,
		TokenWindow: 60 * time.Second,
	}, rules[0])
}
