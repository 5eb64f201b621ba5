package models

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Id prefixes namespace identifiers by entity kind so an objective id can
// never be mistaken for a key result id in tool arguments or URIs.
const (
	ObjectiveIDPrefix = "okr_"
	KeyResultIDPrefix = "kr_"
)

// KeyResult is a measurable sub-goal of an objective. Attainment is a
// percentage between 0 and 100.
type KeyResult struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Attainment int    `json:"attainment"`
}

// Objective is a top-level goal owned by an organization. Key results keep
// insertion order; the list only shrinks through an explicit delete.
type Objective struct {
	ID            string      `json:"id"`
	ObjectiveText string      `json:"objectiveText"`
	KeyResults    []KeyResult `json:"keyResults"`
}

// NewObjectiveID returns a fresh objective identifier. UUIDs are used
// rather than wall-clock timestamps so concurrent creates cannot collide.
func NewObjectiveID() string {
	return fmt.Sprintf("%s%s", ObjectiveIDPrefix, uuid.NewString())
}

// NewKeyResultID returns a fresh key result identifier.
func NewKeyResultID() string {
	return fmt.Sprintf("%s%s", KeyResultIDPrefix, uuid.NewString())
}

// SortObjectives orders objectives by id ascending, in place. Every write
// path sorts before persisting so the store never holds an unsorted
// aggregate at rest.
func SortObjectives(objectives []Objective) {
	sort.Slice(objectives, func(i, j int) bool {
		return objectives[i].ID < objectives[j].ID
	})
}

// FindObjective returns a pointer into the slice for the objective with the
// given id, or nil if no objective matches.
func FindObjective(objectives []Objective, id string) *Objective {
	for i := range objectives {
		if objectives[i].ID == id {
			return &objectives[i]
		}
	}
	return nil
}

// FindKeyResult returns a pointer into the objective's key result list for
// the given id, or nil if no key result matches.
func FindKeyResult(objective *Objective, id string) *KeyResult {
	for i := range objective.KeyResults {
		if objective.KeyResults[i].ID == id {
			return &objective.KeyResults[i]
		}
	}
	return nil
}

// CloneObjectives returns a deep copy of the aggregate. Stores hand out
// clones so callers can mutate freely without aliasing stored state.
func CloneObjectives(objectives []Objective) []Objective {
	if objectives == nil {
		return nil
	}

	cloned := make([]Objective, len(objectives))
	for i, objective := range objectives {
		cloned[i] = objective
		if objective.KeyResults != nil {
			cloned[i].KeyResults = make([]KeyResult, len(objective.KeyResults))
			copy(cloned[i].KeyResults, objective.KeyResults)
		}
	}
	return cloned
}

// DefaultObjectives is the aggregate seeded for an organization on its
// first read. The fixed ids sort ahead of generated UUID ids, keeping the
// starter objective at the top of a fresh board.
func DefaultObjectives() []Objective {
	return []Objective{
		{
			ID:            "okr_0",
			ObjectiveText: "Define OKRs for your Enterprise Business",
			KeyResults: []KeyResult{
				{
					ID:         "kr_0",
					Text:       "Define three OKRs to drive Enterprise Synergy",
					Attainment: 0,
				},
				{
					ID:         "kr_1",
					Text:       "Make a powerpoint presentation on OKRs for the Company Offsite",
					Attainment: 0,
				},
			},
		},
	}
}
