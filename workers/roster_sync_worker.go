// workers/roster_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"evg-scoreboard/models"
	"evg-scoreboard/services"
	"evg-scoreboard/utils"
)

// RemoteRosterEntry matches one element of the identity service response.
type RemoteRosterEntry struct {
	ExternalID  string    `json:"external_id"`
	DisplayName string    `json:"display_name"`
	IsGroom     bool      `json:"is_groom"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GetRosterChangesResponse is the top-level structure of the identity service response.
type GetRosterChangesResponse struct {
	Participants []RemoteRosterEntry `json:"participants"`
}

// RosterSyncWorker pulls roster changes from the identity service and upserts them locally.
// Participants missing from the remote side are kept: the roster never shrinks mid-event.
type RosterSyncWorker struct {
	participants *services.ParticipantService
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/roster"
	serviceToken string
	httpClient   *http.Client

	lastSync time.Time
}

func NewRosterSyncWorker(participants *services.ParticipantService, baseURL, endpointPath, serviceToken string, interval time.Duration) *RosterSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RosterSyncWorker{
		participants: participants,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
	}
}

func (w *RosterSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Roster Sync Worker (identity service → participants)…")
	go w.run(ctx)
}

func (w *RosterSyncWorker) run(ctx context.Context) {
	if err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ [SYNC] initial roster sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				log.Printf("❌ [SYNC] roster sync failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Roster Sync Worker stopped")
			return
		}
	}
}

// SyncOnce fetches changes since the last successful sync and applies them.
func (w *RosterSyncWorker) SyncOnce(ctx context.Context) error {
	since := w.lastSync
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid roster service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	log.Printf("[SYNC] ➡️  GET %s", finalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to roster service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("roster service non-200 response: %d: %s", resp.StatusCode, string(body))
	}

	var response GetRosterChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode roster service response: %w", err)
	}

	if len(response.Participants) == 0 {
		log.Printf("[SYNC] ✅ No roster changes since %s", sinceStr)
		return nil
	}

	entries := make([]models.RosterEntry, 0, len(response.Participants))
	latest := since
	for _, remote := range response.Participants {
		entries = append(entries, models.RosterEntry{
			ExternalID:  remote.ExternalID,
			DisplayName: remote.DisplayName,
			IsGroom:     remote.IsGroom,
			AvatarURL:   remote.AvatarURL,
		})
		if remote.UpdatedAt.After(latest) {
			latest = remote.UpdatedAt
		}
	}

	created, updated, err := w.participants.UpsertRoster(ctx, entries)
	if err != nil {
		return fmt.Errorf("apply roster changes: %w", err)
	}
	w.lastSync = latest

	log.Printf("[SYNC] ✅ Roster synced: %d created, %d updated (latest change %s)",
		created, updated, latest.Format(time.RFC3339))
	return nil
}
