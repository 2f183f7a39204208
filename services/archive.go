package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"evg-scoreboard/models"
	"evg-scoreboard/utils"

	"github.com/jonboulle/clockwork"
)

// StandingsArchive is the document written for each day.
type StandingsArchive struct {
	Date     string                      `json:"date"`
	Snapshot *models.LeaderboardSnapshot `json:"snapshot"`
	Stats    models.LeaderboardStats     `json:"stats"`
}

// StandingsArchiver uploads the day's final standings to object storage.
type StandingsArchiver struct {
	Store       utils.ObjectStore
	Bucket      string
	Leaderboard *LeaderboardService
	Clock       clockwork.Clock
}

// Archive writes standings/YYYY-MM-DD.json for the current event day and returns the key.
func (a *StandingsArchiver) Archive(ctx context.Context) (string, error) {
	snap, err := a.Leaderboard.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	stats, err := a.Leaderboard.Stats(ctx)
	if err != nil {
		return "", err
	}

	date := a.Leaderboard.StartOfDay(a.Clock.Now()).Format(time.DateOnly)
	key := fmt.Sprintf("standings/%s.json", date)
	doc := StandingsArchive{Date: date, Snapshot: snap, Stats: stats}
	if err := utils.PutJSON(ctx, a.Store, a.Bucket, key, doc); err != nil {
		return "", err
	}
	log.Printf("🗄️ [ARCHIVE] uploaded %s (version %d, %d entries)", key, snap.Version, len(snap.Entries))
	return key, nil
}
