package service

import (
	"errors"
	"isinFlow/internal/domain/model"
	"isinFlow/internal/domain/normalize"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var ErrInvalidRule = errors.New("invalid auto-trigger rule")

// MatchRule returns the first rule whose currency matches the record and whose
// MaxSize covers the record's amount. Records without a positive amount never match.
func MatchRule(rec model.BondRecord, rules []model.AutoTriggerRule) (model.AutoTriggerRule, bool) {
	if rec.Amount <= 0 {
		return model.AutoTriggerRule{}, false
	}
	code := normalize.CurrencyCode(rec.Currency)
	for _, r := range rules {
		if normalize.CurrencyCode(r.Currency) == code && rec.Amount <= r.MaxSize {
			return r, true
		}
	}
	return model.AutoTriggerRule{}, false
}

// RuleSet is the process-lifetime collection of auto-trigger rules.
type RuleSet struct {
	mu    sync.RWMutex
	rules []model.AutoTriggerRule
}

func NewRuleSet(initial ...model.AutoTriggerRule) *RuleSet {
	rs := &RuleSet{}
	for _, r := range initial {
		_, _ = rs.Add(r)
	}
	return rs
}

// Add validates and stores a rule, assigning an ID when missing.
func (rs *RuleSet) Add(rule model.AutoTriggerRule) (model.AutoTriggerRule, error) {
	rule.Currency = strings.TrimSpace(rule.Currency)
	if rule.Currency == "" {
		return model.AutoTriggerRule{}, errors.Join(ErrInvalidRule, errors.New("currency is required"))
	}
	if rule.MaxSize <= 0 {
		return model.AutoTriggerRule{}, errors.Join(ErrInvalidRule, errors.New("maxSize must be positive"))
	}
	rule.Currency = normalize.CurrencyCode(rule.Currency)
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i, existing := range rs.rules {
		if existing.ID == rule.ID {
			rs.rules[i] = rule
			return rule, nil
		}
	}
	rs.rules = append(rs.rules, rule)
	return rule, nil
}

func (rs *RuleSet) Remove(id string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for i, r := range rs.rules {
		if r.ID == id {
			rs.rules = append(rs.rules[:i], rs.rules[i+1:]...)
			return true
		}
	}
	return false
}

func (rs *RuleSet) List() []model.AutoTriggerRule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]model.AutoTriggerRule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

func (rs *RuleSet) Match(rec model.BondRecord) (model.AutoTriggerRule, bool) {
	return MatchRule(rec, rs.List())
}
