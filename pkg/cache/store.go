// Package cache keeps a consumer's local copy of entity store records and reconciles it
// with change notifications.
package cache

import (
	"reflect"
	"slices"
	"sync"

	"github.com/dukex/wardflow/pkg/models"
)

type recordKey struct {
	entityType string
	id         string
}

// Store holds named ordered lists plus a single-record cache keyed by (entity type, id).
// Readers get copies; only the reconciler mutates the store.
type Store struct {
	mu      sync.RWMutex
	lists   map[string][]models.Record
	records map[recordKey]models.Record
}

func NewStore() *Store {
	return &Store{
		lists:   make(map[string][]models.Record),
		records: make(map[recordKey]models.Record),
	}
}

// List returns a copy of the records cached under key, in list order.
func (s *Store) List(key string) []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.lists[key]
	out := make([]models.Record, 0, len(list))

	for _, record := range list {
		out = append(out, record.Clone())
	}

	return out
}

func (s *Store) Record(entityType, id string) (models.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordKey{entityType, id}]
	if !ok {
		return nil, false
	}

	return record.Clone(), true
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.lists))
	for key := range s.lists {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}

// Seed adds records to the list under key, keeping what is already there and dropping ids the
// list holds, and fills the single-record cache with them. Descriptors sharing a key each seed
// into the same list.
func (s *Store) Seed(key, entityType string, records []models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := slices.Clone(s.lists[key])
	seen := make(map[string]struct{}, len(list)+len(records))

	for _, record := range list {
		seen[record.ID()] = struct{}{}
	}

	for _, record := range records {
		id := record.ID()
		if id == "" {
			continue
		}

		if _, dup := seen[id]; dup {
			continue
		}

		seen[id] = struct{}{}
		list = append(list, record.Clone())
		s.records[recordKey{entityType, id}] = record.Clone()
	}

	s.lists[key] = list
}

func (s *Store) appendUnique(key string, record models.Record) bool {
	list := s.lists[key]
	if indexOf(list, record.ID()) >= 0 {
		return false
	}

	s.lists[key] = append(list, record.Clone())

	return true
}

func (s *Store) replace(key string, record models.Record) bool {
	list := s.lists[key]

	i := indexOf(list, record.ID())
	if i < 0 {
		return false
	}

	updated := slices.Clone(list)
	updated[i] = record.Clone()
	s.lists[key] = updated

	return true
}

func (s *Store) remove(key, id string) bool {
	list := s.lists[key]

	i := indexOf(list, id)
	if i < 0 {
		return false
	}

	s.lists[key] = slices.Delete(slices.Clone(list), i, i+1)

	return true
}

// setRecord reports whether the cached version differed from record.
func (s *Store) setRecord(entityType string, record models.Record) bool {
	key := recordKey{entityType, record.ID()}

	current, ok := s.records[key]
	s.records[key] = record.Clone()

	return !ok || !reflect.DeepEqual(current, record)
}

func (s *Store) deleteRecord(entityType, id string) bool {
	key := recordKey{entityType, id}
	if _, ok := s.records[key]; !ok {
		return false
	}

	delete(s.records, key)

	return true
}

func indexOf(list []models.Record, id string) int {
	return slices.IndexFunc(list, func(record models.Record) bool { return record.ID() == id })
}
