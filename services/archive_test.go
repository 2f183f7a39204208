package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type memoryStore struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memoryStore) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.err != nil {
		return nil, m.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	m.objects[key] = body
	m.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveUploadsDailyStandings(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	env.record(t, hugo, 60, "football")

	store := newMemoryStore()
	archiver := &StandingsArchiver{Store: store, Bucket: "evg", Leaderboard: env.leaderboard, Clock: env.clock}

	key, err := archiver.Archive(context.Background())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if key != "standings/2026-06-12.json" {
		t.Errorf("unexpected key %q", key)
	}
	body, ok := store.objects["evg/"+key]
	if !ok {
		t.Fatalf("object not written, have %v", store.objects)
	}
	if store.types["evg/"+key] != "application/json" {
		t.Errorf("unexpected content type %q", store.types["evg/"+key])
	}

	var doc StandingsArchive
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	if doc.Date != "2026-06-12" || doc.Stats.TotalParticipants != 3 || doc.Stats.HighestPoints != 60 {
		t.Errorf("unexpected archive document: %+v", doc)
	}
	if len(doc.Snapshot.Entries) != 3 || doc.Snapshot.Entries[0].ParticipantID != hugo {
		t.Errorf("unexpected archived ranking: %+v", doc.Snapshot.Entries)
	}
}

func TestArchivePropagatesStoreErrors(t *testing.T) {
	env := newTestEnv(t, BalancePolicy{})
	store := newMemoryStore()
	store.err = errors.New("r2 unavailable")
	archiver := &StandingsArchiver{Store: store, Bucket: "evg", Leaderboard: env.leaderboard, Clock: env.clock}

	if _, err := archiver.Archive(context.Background()); !errors.Is(err, store.err) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
