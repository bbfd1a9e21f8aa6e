package changes

import "github.com/dukex/wardflow/pkg/models"

// Cache keys used by the built-in views.
const (
	KeyPatient            = "patient"
	KeyPatientTasks       = "patient_tasks"
	KeyPatientEscalations = "patient_escalations"
	KeyInbox              = "inbox"
	KeyOpenEscalations    = "open_escalations"
)

// AdminView follows every change of each entity type, cached under the entity type name.
func AdminView(entityTypes ...string) []models.SubscriptionDescriptor {
	descriptors := make([]models.SubscriptionDescriptor, 0, len(entityTypes))

	for _, entityType := range entityTypes {
		descriptors = append(descriptors, models.SubscriptionDescriptor{
			EntityType:        entityType,
			AffectedCacheKeys: []string{entityType},
			Seed:              true,
		})
	}

	return descriptors
}

// PatientView follows one patient record and the tasks and escalations that reference it.
func PatientView(patientID string) []models.SubscriptionDescriptor {
	byPatient := map[string]any{"entity_ref.type": "patients", "entity_ref.id": patientID}

	return []models.SubscriptionDescriptor{
		{
			EntityType:        "patients",
			Filter:            map[string]any{"id": patientID},
			AffectedCacheKeys: []string{KeyPatient},
			Seed:              true,
		},
		{
			EntityType:        models.EntityTasks,
			Filter:            byPatient,
			AffectedCacheKeys: []string{KeyPatientTasks},
			Seed:              true,
		},
		{
			EntityType:        models.EntityEscalations,
			Filter:            byPatient,
			AffectedCacheKeys: []string{KeyPatientEscalations},
			Seed:              true,
		},
	}
}

// RoleView is a role's work queue: open tasks assigned to the role and open escalations.
// Tasks leave the inbox once their status moves past open.
func RoleView(role string) []models.SubscriptionDescriptor {
	return []models.SubscriptionDescriptor{
		{
			EntityType:        models.EntityTasks,
			Filter:            map[string]any{"assigned_role": role, "status": string(models.TaskOpen)},
			AffectedCacheKeys: []string{KeyInbox},
			Seed:              true,
		},
		{
			EntityType:        models.EntityEscalations,
			Filter:            map[string]any{"status": "open"},
			AffectedCacheKeys: []string{KeyOpenEscalations},
			Seed:              true,
		},
	}
}
