package models

import "time"

// LeaderboardEntry is one derived row of the ranking. Never persisted.
type LeaderboardEntry struct {
	ParticipantID uint   `json:"participant_id"`
	DisplayName   string `json:"display_name"`
	IsGroom       bool   `json:"is_groom"`
	Rank          int    `json:"rank"`
	PreviousRank  int    `json:"previous_rank"` // 0 when the participant was not in the previous snapshot
	TotalPoints   int64  `json:"total_points"`
	PointsToday   int64  `json:"points_today"`
}

// LeaderboardSnapshot is a ranked view of every participant at one instant.
// Snapshots are shared between viewers and must be treated as read-only.
type LeaderboardSnapshot struct {
	Version     uint64             `json:"version"`
	GeneratedAt time.Time          `json:"generated_at"`
	Entries     []LeaderboardEntry `json:"entries"`
}

// Find returns the entry for participantID.
func (s *LeaderboardSnapshot) Find(participantID uint) (LeaderboardEntry, bool) {
	for _, e := range s.Entries {
		if e.ParticipantID == participantID {
			return e, true
		}
	}
	return LeaderboardEntry{}, false
}

type LeaderboardStats struct {
	TotalParticipants int     `json:"total_participants"`
	AveragePoints     float64 `json:"average_points"`
	HighestPoints     int64   `json:"highest_points"`
	LowestPoints      int64   `json:"lowest_points"`
	TotalDistributed  int64   `json:"total_points_distributed"`
}
