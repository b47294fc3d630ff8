package knowledge

import (
	"sort"

	"github.com/xiaot623/gogo/planner/internal/domain"
)

// AddValidatedPlace caches a validated place. It returns false when the
// name is in the negative cache; invalid entries are only displaced by
// ClearInvalidPlace.
func (sc *SharedContext) AddValidatedPlace(p ValidatedPlace) bool {
	key := domain.NormalizeName(p.Name)
	if key == "" {
		return false
	}
	if p.AddedAt.IsZero() {
		p.AddedAt = sc.now()
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, bad := sc.invalidPlaces[key]; bad {
		return false
	}
	sc.validatedPlaces[key] = p
	return true
}

// MarkPlaceInvalid puts name into the negative cache. Repeated calls keep
// the first reason. Any validated entry with the same name is dropped.
func (sc *SharedContext) MarkPlaceInvalid(name, reason string) {
	key := domain.NormalizeName(name)
	if key == "" {
		return
	}
	now := sc.now()
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.validatedPlaces, key)
	if _, exists := sc.invalidPlaces[key]; exists {
		return
	}
	sc.invalidPlaces[key] = InvalidPlace{Name: name, Reason: reason, MarkedAt: now}
}

// ClearInvalidPlace removes name from the negative cache.
func (sc *SharedContext) ClearInvalidPlace(name string) bool {
	key := domain.NormalizeName(name)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, ok := sc.invalidPlaces[key]; !ok {
		return false
	}
	delete(sc.invalidPlaces, key)
	return true
}

// IsPlaceInvalid reports whether name is in the negative cache.
func (sc *SharedContext) IsPlaceInvalid(name string) bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	_, ok := sc.invalidPlaces[domain.NormalizeName(name)]
	return ok
}

// InvalidPlace returns the negative-cache entry for name.
func (sc *SharedContext) InvalidPlace(name string) (InvalidPlace, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	p, ok := sc.invalidPlaces[domain.NormalizeName(name)]
	return p, ok
}

// InvalidPlaceNames returns the negative cache, sorted by name.
func (sc *SharedContext) InvalidPlaceNames() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	names := make([]string, 0, len(sc.invalidPlaces))
	for _, p := range sc.invalidPlaces {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// ValidatedPlace returns the cached place for name.
func (sc *SharedContext) ValidatedPlace(name string) (ValidatedPlace, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	p, ok := sc.validatedPlaces[domain.NormalizeName(name)]
	return p, ok
}

// ValidatedPlaceNames returns the validated names in sorted order.
func (sc *SharedContext) ValidatedPlaceNames() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	names := make([]string, 0, len(sc.validatedPlaces))
	for _, p := range sc.validatedPlaces {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// ValidatedCount returns the number of validated places.
func (sc *SharedContext) ValidatedCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.validatedPlaces)
}

// InvalidCount returns the size of the negative cache.
func (sc *SharedContext) InvalidCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.invalidPlaces)
}
