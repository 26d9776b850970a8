package ratelimit

import (
	"time"

	"github.com/aman-churiwal/api-guard/internal/config"
)

// MatchRule picks the first rule whose endpoint/method constraints accept
// the request. Matching is pure: same inputs always give the same rule.
// Returns ok=false only if the list holds no match at all, which cannot
// happen with a validated config (a default rule always exists).
func MatchRule(rules []Rule, endpoint, method string) (Rule, bool) {
	for _, rule := range rules {
		if rule.Endpoint != "" && rule.Endpoint != endpoint {
			continue
		}
		if rule.Method != "" && rule.Method != method {
			continue
		}
		return rule, true
	}

	return Rule{}, false
}

// RulesFromConfig converts the config rule specs, preserving order.
func RulesFromConfig(specs []config.RuleSpec) []Rule {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		rules = append(rules, Rule{
			Endpoint:    s.Endpoint,
			Method:      s.Method,
			Limit:       s.Limit,
			Window:      time.Duration(s.WindowSeconds) * time.Second,
			BlockFor:    time.Duration(s.BlockForSeconds) * time.Second,
			TokenLimit:  s.TokenLimit,
			TokenWindow: time.Duration(s.TokenWindowSeconds) * time.Second,
		})
	}
	return rules
}
