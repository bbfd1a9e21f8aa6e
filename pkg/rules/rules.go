// Package rules stores workflow rules and answers which rules apply to an event.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	ErrRuleNotFound = errors.New("workflow rule not found")
	ErrInvalidRule  = errors.New("invalid workflow rule")
)

// Repository reads rules from the entity store on every call. Nothing is cached, so rule
// edits are visible to the next event.
type Repository struct {
	store    persistence.Store
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewRepository(store persistence.Store, validate *validator.Validate, logger *slog.Logger) *Repository {
	return &Repository{
		store:    store,
		validate: validate,
		logger:   logger.With("module", "rules"),
		now:      time.Now,
	}
}

// ActiveRules returns the active rules of a tenant for an event type, highest priority first
// and by id within equal priority.
func (r *Repository) ActiveRules(ctx context.Context, tenantID, eventType string) ([]*models.WorkflowRule, error) {
	records, err := r.store.Query(ctx, models.EntityWorkflowRules, persistence.Query{
		TenantID: tenantID,
		Where: map[string]any{
			"trigger_event_type": eventType,
			"active":             true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rules for %s: %w", eventType, err)
	}

	rules := r.decode(ctx, records)
	models.SortRules(rules)

	return rules, nil
}

// Touch records when a rule last matched an event.
func (r *Repository) Touch(ctx context.Context, rule *models.WorkflowRule, at time.Time) error {
	_, err := r.store.Update(ctx, models.EntityWorkflowRules, rule.TenantID, rule.ID, map[string]any{
		"last_triggered_at": at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to touch rule %s: %w", rule.ID, err)
	}

	rule.LastTriggeredAt = &at

	return nil
}

func (r *Repository) List(ctx context.Context, tenantID string) ([]*models.WorkflowRule, error) {
	records, err := r.store.Query(ctx, models.EntityWorkflowRules, persistence.Query{TenantID: tenantID})
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	rules := r.decode(ctx, records)
	models.SortRules(rules)

	return rules, nil
}

func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.WorkflowRule, error) {
	record, err := r.store.Get(ctx, models.EntityWorkflowRules, tenantID, id)
	if err != nil {
		if persistence.IsRecordNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
		}

		return nil, err
	}

	var rule models.WorkflowRule

	err = models.FromRecord(record, &rule)
	if err != nil {
		return nil, err
	}

	return &rule, nil
}

// Save validates and creates a rule, or replaces it when a rule with the same id exists.
func (r *Repository) Save(ctx context.Context, rule *models.WorkflowRule) (*models.WorkflowRule, error) {
	err := r.validate.Struct(rule)
	if err != nil {
		return nil, errors.Join(ErrInvalidRule, err)
	}

	now := r.now().UTC()
	rule.UpdatedAt = now

	if rule.ID != "" {
		existing, err := r.Get(ctx, rule.TenantID, rule.ID)
		if err == nil {
			rule.CreatedAt = existing.CreatedAt

			return r.replace(ctx, rule)
		}

		if !errors.Is(err, ErrRuleNotFound) {
			return nil, err
		}
	} else {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate rule id: %w", err)
		}

		rule.ID = id.String()
	}

	rule.CreatedAt = now

	record, err := models.ToRecord(rule)
	if err != nil {
		return nil, err
	}

	_, err = r.store.Insert(ctx, models.EntityWorkflowRules, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule %s: %w", rule.ID, err)
	}

	r.logger.InfoContext(ctx, "Workflow rule created", "tenant_id", rule.TenantID, "rule_id", rule.ID, "name", rule.Name)

	return rule, nil
}

func (r *Repository) Delete(ctx context.Context, tenantID, id string) error {
	err := r.store.Delete(ctx, models.EntityWorkflowRules, tenantID, id)
	if err != nil {
		if persistence.IsRecordNotFound(err) {
			return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
		}

		return err
	}

	return nil
}

func (r *Repository) replace(ctx context.Context, rule *models.WorkflowRule) (*models.WorkflowRule, error) {
	record, err := models.ToRecord(rule)
	if err != nil {
		return nil, err
	}

	// Fields dropped by omitempty must be cleared explicitly.
	for _, field := range []string{"conditions", "description", "last_triggered_at"} {
		if _, ok := record[field]; !ok {
			record[field] = nil
		}
	}

	_, err = r.store.Update(ctx, models.EntityWorkflowRules, rule.TenantID, rule.ID, record)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule %s: %w", rule.ID, err)
	}

	r.logger.InfoContext(ctx, "Workflow rule updated", "tenant_id", rule.TenantID, "rule_id", rule.ID)

	return rule, nil
}

func (r *Repository) decode(ctx context.Context, records []models.Record) []*models.WorkflowRule {
	rules := make([]*models.WorkflowRule, 0, len(records))

	for _, record := range records {
		var rule models.WorkflowRule

		err := models.FromRecord(record, &rule)
		if err != nil {
			r.logger.WarnContext(ctx, "Skipping undecodable workflow rule", "rule_id", record.ID(), "error", err)

			continue
		}

		rules = append(rules, &rule)
	}

	return rules
}
