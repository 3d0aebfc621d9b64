package brackets

import (
	"sort"

	"github.com/Dosada05/tournament-engine/models"
)

// RankQualifiers selects the bracket seed from qualification attempts.
//
// Only attempts of approved players count, and only the latest attempt (highest
// ID) per player. Entries are ordered by score descending, then duration
// ascending with a missing duration ranked slowest, then by submission ID
// ascending. At most slots player IDs are returned, best first.
func RankQualifiers(attempts []models.QualificationAttempt, approved map[int]bool, slots int) []int {
	if slots <= 0 {
		slots = models.DefaultBracketSlots
	}

	latest := make(map[int]models.QualificationAttempt)
	for _, a := range attempts {
		if !approved[a.PlayerID] {
			continue
		}
		if cur, ok := latest[a.PlayerID]; !ok || a.ID > cur.ID {
			latest[a.PlayerID] = a
		}
	}

	entries := make([]models.QualificationAttempt, 0, len(latest))
	for _, a := range latest {
		entries = append(entries, a)
	}

	sort.Slice(entries, func(i, j int) bool {
		return rankedBefore(entries[i], entries[j])
	})

	if len(entries) > slots {
		entries = entries[:slots]
	}

	ids := make([]int, len(entries))
	for i, a := range entries {
		ids[i] = a.PlayerID
	}
	return ids
}

func rankedBefore(a, b models.QualificationAttempt) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	switch {
	case a.DurationSeconds == nil && b.DurationSeconds != nil:
		return false
	case a.DurationSeconds != nil && b.DurationSeconds == nil:
		return true
	case a.DurationSeconds != nil && b.DurationSeconds != nil && *a.DurationSeconds != *b.DurationSeconds:
		return *a.DurationSeconds < *b.DurationSeconds
	}
	return a.ID < b.ID
}
