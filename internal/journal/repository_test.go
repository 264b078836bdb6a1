package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/infrastructure/database"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
	"github.com/thomas-kunnumpurath/openfin-solace-sample/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestFromEvent(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entry, ok := FromEvent(pubsub.Event{
		Kind:  pubsub.EventSubscriptionFailed,
		Topic: "prices/eur",
		Err:   pubsub.ErrTimedOut,
		At:    at,
	})
	if !ok {
		t.Fatal("FromEvent() ok = false, want true")
	}
	if entry.Kind != "subscription_failed" || entry.Topic != "prices/eur" || entry.Error == "" || !entry.OccurredAt.Equal(at) {
		t.Errorf("FromEvent() = %+v", entry)
	}

	if _, ok := FromEvent(pubsub.Event{Kind: pubsub.EventMessage, Topic: "t", Payload: []byte("secret")}); ok {
		t.Error("FromEvent(message) ok = true, want false")
	}
}

func TestCreateAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	inputs := []Entry{
		{Kind: "up", Address: "ws://localhost:80", OccurredAt: base},
		{Kind: "subscription_confirmed", Topic: "a", OccurredAt: base.Add(time.Second)},
		{Kind: "subscription_failed", Topic: "b", Error: "pubsub: subscription failed: pubsub: timed out", OccurredAt: base.Add(2 * time.Second)},
	}
	for i := range inputs {
		if err := repo.Create(ctx, &inputs[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if inputs[i].ID == 0 {
			t.Errorf("Create() did not set ID for %s", inputs[i].Kind)
		}
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 || len(result.Entries) != 3 {
		t.Fatalf("List() total = %d, len = %d, want 3, 3", result.Total, len(result.Entries))
	}
	if result.Entries[0].Kind != "subscription_failed" {
		t.Errorf("List()[0].Kind = %q, want most recent first", result.Entries[0].Kind)
	}
	if !result.Entries[2].OccurredAt.Equal(base) {
		t.Errorf("List()[2].OccurredAt = %v, want %v", result.Entries[2].OccurredAt, base)
	}
	if result.Limit != defaultLimit {
		t.Errorf("List() limit = %d, want %d", result.Limit, defaultLimit)
	}
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, e := range []Entry{
		{Kind: "subscription_confirmed", Topic: "a"},
		{Kind: "subscription_confirmed", Topic: "b"},
		{Kind: "disconnected"},
	} {
		if err := repo.Create(ctx, &e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
	}{
		{"by kind", Filter{Kind: "subscription_confirmed"}, 2, 2},
		{"by topic", Filter{Topic: "b"}, 1, 1},
		{"kind and topic", Filter{Kind: "disconnected", Topic: "a"}, 0, 0},
		{"paged", Filter{Limit: 1, Offset: 1}, 3, 1},
		{"limit clamped", Filter{Limit: 10000}, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.wantTotal || len(result.Entries) != tt.wantLen {
				t.Errorf("List() total = %d, len = %d, want %d, %d",
					result.Total, len(result.Entries), tt.wantTotal, tt.wantLen)
			}
			if result.Limit > maxLimit {
				t.Errorf("List() limit = %d, exceeds %d", result.Limit, maxLimit)
			}
		})
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	repo := newTestRepo(t)

	result, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Entries == nil {
		t.Error("List() entries = nil, want empty slice")
	}
}

func TestCreate_RequiresKind(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.Create(context.Background(), &Entry{Topic: "a"}); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Create() error = %v, want ErrInvalidEntry", err)
	}
}
