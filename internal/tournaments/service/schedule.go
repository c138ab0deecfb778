package service

import (
	"rally/pkg/model"
)

// groupStageThreshold is the entrant count above which a group is split
// into two pools instead of playing a single round-robin.
const groupStageThreshold = 6

// buildSchedule turns the enrollments of one tournament into matches.
// Groups with up to groupStageThreshold entrants play a full round-robin;
// larger groups are split into two pools seeded by enrollment order, each
// pool playing its own round-robin. A group with fewer than two entrants
// yields no matches.
func buildSchedule(tournament *model.Tournament, enrollments []*model.Enrollment, createdAt model.DateTime) []*model.Match {
	byGroup := make(map[string][]string)
	for _, e := range enrollments {
		byGroup[e.Group] = append(byGroup[e.Group], e.StudentID)
	}

	var matches []*model.Match
	for _, group := range tournament.Groups {
		players := byGroup[group]
		if len(players) < 2 {
			continue
		}

		if len(players) <= groupStageThreshold {
			matches = append(matches, roundRobin(tournament, group, players, createdAt)...)
			continue
		}

		poolA, poolB := splitPools(players)
		matches = append(matches, roundRobin(tournament, group+"-A", poolA, createdAt)...)
		matches = append(matches, roundRobin(tournament, group+"-B", poolB, createdAt)...)
	}
	return matches
}

// splitPools deals players into two pools alternately, preserving the
// enrollment-order seeding.
func splitPools(players []string) ([]string, []string) {
	var poolA, poolB []string
	for i, p := range players {
		if i%2 == 0 {
			poolA = append(poolA, p)
		} else {
			poolB = append(poolB, p)
		}
	}
	return poolA, poolB
}

// roundRobin pairs every player against every other exactly once using the
// circle method: one player fixed, the rest rotating each round. An odd
// field gets a bye slot whose pairings are skipped.
func roundRobin(tournament *model.Tournament, group string, players []string, createdAt model.DateTime) []*model.Match {
	const bye = ""

	field := make([]string, len(players))
	copy(field, players)
	if len(field)%2 != 0 {
		field = append(field, bye)
	}

	n := len(field)
	var matches []*model.Match
	for round := 1; round < n; round++ {
		for i := 0; i < n/2; i++ {
			p1, p2 := field[i], field[n-1-i]
			if p1 == bye || p2 == bye {
				continue
			}
			matches = append(matches, &model.Match{
				TournamentID: tournament.ID,
				Group:        group,
				Round:        round,
				Player1ID:    p1,
				Player2ID:    p2,
				Status:       model.MatchPending,
				StartTime:    tournament.EventDate,
				CreatedAt:    createdAt,
			})
		}

		// Rotate all but the first position.
		last := field[n-1]
		copy(field[2:], field[1:n-1])
		field[1] = last
	}
	return matches
}
