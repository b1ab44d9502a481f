package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spec-kit/maintenance-dispatch/internal/docstore"
	"github.com/spec-kit/maintenance-dispatch/internal/domain"
)

// urgentRatingFloor gates the public pool for urgent tickets: urgency >= 4
// requires rating >= 4.0, inclusive at exactly 4.0.
const (
	urgentThreshold   = 4
	urgentRatingFloor = 4.0
	maxRecommended    = 3
)

// MatchError wraps a store-read failure during matching. An empty result is
// a valid non-error outcome meaning "no match".
type MatchError struct {
	Err error
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("contractor matching failed: %v", e.Err)
}

func (e *MatchError) Unwrap() error {
	return e.Err
}

// Matcher selects and ranks up to three candidate contractors for a
// classified ticket.
type Matcher struct {
	store docstore.Store
}

// New creates the matcher.
func New(store docstore.Store) *Matcher {
	return &Matcher{store: store}
}

type candidate struct {
	id                string
	rating            float64
	jobsCompleted     int
	preferredProperty bool
}

// Match returns an ordered list of at most three contractor ids. Landlord
// preference dominates when at least three preferred contractors qualify;
// otherwise qualifying preferred contractors keep their original relative
// order ahead of the ranked public pool.
func (m *Matcher) Match(ctx context.Context, category, landlordID, propertyID string, urgency int) ([]string, error) {
	category = strings.ToLower(category)

	landlord, err := m.loadLandlord(ctx, landlordID)
	if err != nil {
		return nil, err
	}
	if landlord == nil {
		return []string{}, nil
	}

	preferred, err := m.qualifyPreferred(ctx, landlord.Contractors, category, propertyID)
	if err != nil {
		return nil, err
	}

	if len(preferred) >= maxRecommended {
		sort.SliceStable(preferred, func(i, j int) bool {
			a, b := preferred[i], preferred[j]
			if a.preferredProperty != b.preferredProperty {
				return a.preferredProperty
			}
			if a.rating != b.rating {
				return a.rating > b.rating
			}
			return a.jobsCompleted > b.jobsCompleted
		})
		return ids(preferred[:maxRecommended]), nil
	}

	pool, err := m.publicPool(ctx, category, urgency, preferred)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.rating != b.rating {
			return a.rating > b.rating
		}
		return a.jobsCompleted > b.jobsCompleted
	})

	combined := append(preferred, pool...)
	if len(combined) > maxRecommended {
		combined = combined[:maxRecommended]
	}
	return ids(combined), nil
}

func (m *Matcher) loadLandlord(ctx context.Context, landlordID string) (*domain.LandlordProfile, error) {
	doc, err := m.store.Get(ctx, domain.CollectionLandlords, landlordID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			// no profile means "no preference", not a failure
			return nil, nil
		}
		return nil, &MatchError{Err: err}
	}
	landlord, err := domain.LandlordFromFields(doc.ID, doc.Fields)
	if err != nil {
		return nil, &MatchError{Err: err}
	}
	return landlord, nil
}

// qualifyPreferred keeps the landlord's contractors that cover the category
// and are available, preserving the landlord's ordering.
func (m *Matcher) qualifyPreferred(ctx context.Context, contractorIDs []string, category, propertyID string) ([]candidate, error) {
	var qualified []candidate
	for _, id := range contractorIDs {
		doc, err := m.store.Get(ctx, domain.CollectionContractors, id)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				continue
			}
			return nil, &MatchError{Err: err}
		}
		contractor, err := domain.ContractorFromFields(doc.ID, doc.Fields)
		if err != nil {
			continue
		}
		if !contractor.Availability || !contractor.HasSkill(category) {
			continue
		}
		qualified = append(qualified, candidate{
			id:                contractor.ID,
			rating:            contractor.Rating,
			jobsCompleted:     contractor.JobsCompleted,
			preferredProperty: contractor.PrefersProperty(propertyID),
		})
	}
	return qualified, nil
}

// publicPool queries all available contractors covering the category,
// excluding already-qualified preferred ids. Urgent tickets apply the
// rating floor; urgency <= 3 applies none.
func (m *Matcher) publicPool(ctx context.Context, category string, urgency int, preferred []candidate) ([]candidate, error) {
	docs, err := m.store.Query(ctx, domain.CollectionContractors, docstore.Query{
		FieldEquals:   map[string]any{"availability": true},
		ArrayContains: map[string]any{"skills": category},
	})
	if err != nil {
		return nil, &MatchError{Err: err}
	}

	taken := make(map[string]bool, len(preferred))
	for _, c := range preferred {
		taken[c.id] = true
	}

	var pool []candidate
	for i := range docs {
		if taken[docs[i].ID] {
			continue
		}
		contractor, err := domain.ContractorFromFields(docs[i].ID, docs[i].Fields)
		if err != nil {
			continue
		}
		if !contractor.Availability || !contractor.HasSkill(category) {
			continue
		}
		if urgency >= urgentThreshold && contractor.Rating < urgentRatingFloor {
			continue
		}
		pool = append(pool, candidate{
			id:            contractor.ID,
			rating:        contractor.Rating,
			jobsCompleted: contractor.JobsCompleted,
		})
	}
	return pool, nil
}

func ids(candidates []candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.id)
	}
	return out
}
