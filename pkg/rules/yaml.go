package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dukex/wardflow/pkg/models"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []map[string]any `yaml:"rules"`
}

// LoadYAML reads a rules file of the form
//
//	rules:
//	  - name: Low oxygen
//	    trigger_event_type: vitals.recorded
//	    conditions: {payload.spo2: {$lt: 90}}
//	    actions:
//	      - {type: escalate, reason: spo2 below 90, severity: critical}
//
// Rules without a tenant_id are assigned tenantID.
func LoadYAML(reader io.Reader, tenantID string) ([]*models.WorkflowRule, error) {
	var file ruleFile

	err := yaml.NewDecoder(reader).Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	rules := make([]*models.WorkflowRule, 0, len(file.Rules))

	for i, raw := range file.Rules {
		body, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		var rule models.WorkflowRule

		err = json.Unmarshal(body, &rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		if rule.TenantID == "" {
			rule.TenantID = tenantID
		}

		rules = append(rules, &rule)
	}

	return rules, nil
}

// Import saves every rule, stopping at the first failure.
func (r *Repository) Import(ctx context.Context, rules []*models.WorkflowRule) (int, error) {
	for i, rule := range rules {
		_, err := r.Save(ctx, rule)
		if err != nil {
			return i, fmt.Errorf("failed to import rule %q: %w", rule.Name, err)
		}
	}

	return len(rules), nil
}
