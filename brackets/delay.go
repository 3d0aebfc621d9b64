package brackets

import (
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

// DefaultRoundDelayMinutes applies when neither the tournament nor its rules configure a delay.
const DefaultRoundDelayMinutes = 5

const minutesPerDay = 24 * 60

// RoundDelayMinutes resolves the pause before the next round becomes playable:
// days between rounds when set, else round_delay_minutes from the rules, else
// the default. Unparseable rules fall back to the default. The result never
// exceeds models.MaxRoundDelayMinutes.
func RoundDelayMinutes(t *models.Tournament) int {
	if t.DaysBetweenRounds != nil && *t.DaysBetweenRounds > 0 {
		if *t.DaysBetweenRounds > models.MaxRoundDelayMinutes/minutesPerDay {
			return models.MaxRoundDelayMinutes
		}
		return *t.DaysBetweenRounds * minutesPerDay
	}

	rules, err := t.Rules()
	if err == nil && rules.RoundDelayMinutes != nil && *rules.RoundDelayMinutes >= 0 {
		return *rules.RoundDelayMinutes
	}

	return DefaultRoundDelayMinutes
}

func RoundDelay(t *models.Tournament) time.Duration {
	return time.Duration(RoundDelayMinutes(t)) * time.Minute
}
