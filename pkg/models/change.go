package models

import (
	"errors"
	"slices"

	"github.com/dukex/wardflow/pkg/predicate"
)

type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

var (
	ErrInvalidNotification = errors.New("invalid change notification")
	ErrInvalidDescriptor   = errors.New("invalid subscription descriptor")
)

// ChangeNotification describes one row-level change of the entity store.
// Deletes may carry only RecordID; OldRecord is present when the source can provide it.
type ChangeNotification struct {
	TenantID   string    `json:"tenant_id"`
	EntityType string    `json:"entity_type"`
	Operation  Operation `json:"operation"`
	Record     Record    `json:"record,omitempty"`
	OldRecord  Record    `json:"old_record,omitempty"`
	RecordID   string    `json:"record_id,omitempty"`
	// Truncated is set by sources that had to drop the record bodies to fit their payload limit.
	Truncated bool `json:"truncated,omitempty"`
}

// ID returns the identifier of the changed record.
func (n ChangeNotification) ID() string {
	if n.RecordID != "" {
		return n.RecordID
	}

	if id := n.Record.ID(); id != "" {
		return id
	}

	return n.OldRecord.ID()
}

func (n ChangeNotification) Validate() error {
	if n.EntityType == "" {
		return errors.Join(ErrInvalidNotification, errors.New("entity_type is required"))
	}

	switch n.Operation {
	case OperationInsert, OperationUpdate:
		if n.Record == nil || n.Record.ID() == "" {
			return errors.Join(ErrInvalidNotification, errors.New("record with id is required for "+string(n.Operation)))
		}
	case OperationDelete:
		if n.ID() == "" {
			return errors.Join(ErrInvalidNotification, errors.New("record_id is required for delete"))
		}
	default:
		return errors.Join(ErrInvalidNotification, errors.New("unknown operation "+string(n.Operation)))
	}

	return nil
}

// SubscriptionDescriptor declares which changes a consumer cares about and which
// named lists of its cache they affect. Empty Operations means every operation.
type SubscriptionDescriptor struct {
	EntityType        string         `json:"entity_type"                   mapstructure:"entity_type"          validate:"required"`
	Operations        []Operation    `json:"operations,omitempty"          mapstructure:"operations"           validate:"dive,oneof=insert update delete"`
	Filter            map[string]any `json:"filter,omitempty"              mapstructure:"filter"`
	AffectedCacheKeys []string       `json:"affected_cache_keys,omitempty" mapstructure:"affected_cache_keys"`
	// Seed prefills the affected lists from the entity store when the subscription opens.
	Seed bool `json:"seed,omitempty" mapstructure:"seed"`
}

func (d SubscriptionDescriptor) Validate() error {
	if d.EntityType == "" {
		return errors.Join(ErrInvalidDescriptor, errors.New("entity_type is required"))
	}

	for _, op := range d.Operations {
		switch op {
		case OperationInsert, OperationUpdate, OperationDelete:
		default:
			return errors.Join(ErrInvalidDescriptor, errors.New("unknown operation "+string(op)))
		}
	}

	return nil
}

func (d SubscriptionDescriptor) Accepts(op Operation) bool {
	return len(d.Operations) == 0 || slices.Contains(d.Operations, op)
}

// Matches reports whether the notification concerns this descriptor. The filter is evaluated
// against the new record, or the old record for deletes; a delete without an old record
// matches on entity type and operation alone.
func (d SubscriptionDescriptor) Matches(n ChangeNotification) bool {
	if n.EntityType != d.EntityType || !d.Accepts(n.Operation) {
		return false
	}

	return d.FilterMatches(n)
}

func (d SubscriptionDescriptor) FilterMatches(n ChangeNotification) bool {
	if len(d.Filter) == 0 {
		return true
	}

	record := n.Record
	if n.Operation == OperationDelete {
		record = n.OldRecord
	}

	if record == nil {
		return n.Operation == OperationDelete
	}

	ok, err := predicate.Match(d.Filter, record)

	return err == nil && ok
}
