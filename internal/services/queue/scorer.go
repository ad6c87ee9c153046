package queue

import "github.com/forumdesk/foyer/internal/models"

// Priority score components. Lower score = served sooner. Committee members
// rotating through their own interviews must not be blocked; internal
// students are served before external ones. The employment/observation bias
// reflects the forum's educational mission.
const (
	baseCommittee = 0
	baseInternal  = 100
	baseExternal  = 200

	bonusEmployment  = 10
	bonusObservation = 20

	// pausedJoinPenalty pushes entries that joined a paused queue behind
	// every non-penalized entry regardless of category.
	pausedJoinPenalty = 1000
)

// Score computes the priority score for a joining student. The score is
// fixed at join time and at explicit override; reorders never recompute it.
// Ties are broken by joined_at ascending.
func Score(category models.StudentCategory, kind models.OpportunityKind, queuePaused bool) int {
	score := categoryBase(category)

	switch kind {
	case models.KindEmployment:
		score += bonusEmployment
	case models.KindObservation:
		score += bonusObservation
	}

	if queuePaused {
		score += pausedJoinPenalty
	}
	return score
}

func categoryBase(category models.StudentCategory) int {
	switch category {
	case models.CategoryCommittee:
		return baseCommittee
	case models.CategoryInternal:
		return baseInternal
	default:
		return baseExternal
	}
}
