package cache

import (
	"log/slog"

	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/models"
)

// Reconciler applies change notifications to a Store for a fixed set of descriptors.
// Apply must be called from one goroutine, in delivery order.
type Reconciler struct {
	store       *Store
	descriptors []models.SubscriptionDescriptor
	logger      *slog.Logger
}

func NewReconciler(store *Store, descriptors []models.SubscriptionDescriptor, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:       store,
		descriptors: append([]models.SubscriptionDescriptor(nil), descriptors...),
		logger:      logger.With("module", "cache_reconciler"),
	}
}

func (r *Reconciler) Store() *Store {
	return r.store
}

// Apply reconciles one notification and reports whether the store changed.
//
// insert appends to each affected list unless the id is already there; update replaces by id
// and never inserts; delete removes by id. An update whose record no longer passes a
// descriptor's filter removes it from that descriptor's lists. The single-record cache follows
// every notification a descriptor accepts by entity type and operation, filters aside.
func (r *Reconciler) Apply(notification models.ChangeNotification) bool {
	if err := notification.Validate(); err != nil {
		r.logger.Warn("Ignoring invalid change notification", "error", err)

		return false
	}

	id := notification.ID()

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	changed := false
	accepted := false

	for _, descriptor := range r.descriptors {
		if descriptor.EntityType != notification.EntityType || !descriptor.Accepts(notification.Operation) {
			continue
		}

		accepted = true
		inView := descriptor.FilterMatches(notification)

		for _, key := range descriptor.AffectedCacheKeys {
			switch notification.Operation {
			case models.OperationInsert:
				if inView && r.store.appendUnique(key, notification.Record) {
					changed = true
				}
			case models.OperationUpdate:
				if inView {
					changed = r.store.replace(key, notification.Record) || changed
				} else {
					changed = r.store.remove(key, id) || changed
				}
			case models.OperationDelete:
				changed = r.store.remove(key, id) || changed
			}
		}
	}

	if !accepted {
		return false
	}

	switch notification.Operation {
	case models.OperationInsert, models.OperationUpdate:
		changed = r.store.setRecord(notification.EntityType, notification.Record) || changed
	case models.OperationDelete:
		changed = r.store.deleteRecord(notification.EntityType, id) || changed
	}

	if changed {
		metrics.NotificationsApplied.WithLabelValues(notification.EntityType, string(notification.Operation)).Inc()
	}

	return changed
}
