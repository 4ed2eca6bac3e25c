package config

import (
	"regexp"
	"strings"
	"time"

	"github.com/saiset-co/sai-resource/types"
)

// Policy is one compiled row of the cacheability table.
type Policy struct {
	pattern *regexp.Regexp
	methods map[string]struct{}
	ttl     time.Duration
}

// PolicyTable decides whether and for how long a request's response may be
// cached. Rows are consulted in declaration order; the first row whose
// pattern matches the path and whose method set contains the method wins.
type PolicyTable struct {
	policies []*Policy
}

func NewPolicyTable(configs []*types.PolicyConfig) (*PolicyTable, error) {
	policies := make([]*Policy, 0, len(configs))

	for _, cfg := range configs {
		pattern, err := regexp.Compile(cfg.Pattern)
		if err != nil {
			return nil, types.Errorf(types.ErrPolicyPatternInvalid, "pattern %q: %v", cfg.Pattern, err)
		}

		methods := make(map[string]struct{}, len(cfg.Methods))
		for _, method := range cfg.Methods {
			methods[strings.ToUpper(method)] = struct{}{}
		}

		policies = append(policies, &Policy{
			pattern: pattern,
			methods: methods,
			ttl:     cfg.TTL,
		})
	}

	return &PolicyTable{policies: policies}, nil
}

// TTLFor returns the TTL of the first matching row. matched reports whether
// any row applied; a matched row with TTL 0 means "never cache".
func (t *PolicyTable) TTLFor(method, path string) (ttl time.Duration, matched bool) {
	method = strings.ToUpper(method)

	for _, policy := range t.policies {
		if _, ok := policy.methods[method]; !ok {
			continue
		}
		if policy.pattern.MatchString(path) {
			return policy.ttl, true
		}
	}

	return 0, false
}

// Len reports the number of compiled rows.
func (t *PolicyTable) Len() int {
	return len(t.policies)
}
