package audit

import (
	"context"
	"testing"
	"time"
)

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Action: ActionPaired, EntityType: EntityDevice, EntityID: "dev-1", Source: SourcePairing, CreatedAt: base},
		{Action: ActionPairFailed, EntityType: EntityDevice, EntityID: "uuid-2", Source: SourcePairing, CreatedAt: base.Add(time.Minute),
			Details: map[string]any{"outcome": "timeout"}},
		{Action: ActionRemoved, EntityType: EntityDevice, EntityID: "dev-1", Subject: "admin", Source: SourceAPI, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
		if entries[i].ID == "" {
			t.Fatalf("Create(%d) left ID empty", i)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string // actions, newest first
		total  int
	}{
		{"all", Filter{}, []string{ActionRemoved, ActionPairFailed, ActionPaired}, 3},
		{"by action", Filter{Action: ActionPaired}, []string{ActionPaired}, 1},
		{"by entity", Filter{EntityID: "dev-1"}, []string{ActionRemoved, ActionPaired}, 2},
		{"paged", Filter{Limit: 1, Offset: 1}, []string{ActionPairFailed}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if page.Total != tt.total {
				t.Errorf("Total = %d, want %d", page.Total, tt.total)
			}
			if len(page.Entries) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(page.Entries), len(tt.want))
			}
			for i, action := range tt.want {
				if page.Entries[i].Action != action {
					t.Errorf("entries[%d].Action = %s, want %s", i, page.Entries[i].Action, action)
				}
			}
		})
	}

	page, err := repo.List(ctx, Filter{Action: ActionPairFailed})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := page.Entries[0]
	if got.Details["outcome"] != "timeout" || !got.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("round trip = %+v", got)
	}
	if got.Subject != "" {
		t.Errorf("Subject = %q, want empty", got.Subject)
	}
}

func TestSQLiteRepository_ListClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)

	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-5, defaultLimit},
		{1000, maxLimit},
		{10, 10},
	}
	for _, tt := range tests {
		page, err := repo.List(context.Background(), Filter{Limit: tt.in, Offset: -1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if page.Limit != tt.want || page.Offset != 0 {
			t.Errorf("Limit %d -> %d/%d, want %d/0", tt.in, page.Limit, page.Offset, tt.want)
		}
		if page.Entries == nil {
			t.Error("Entries = nil, want empty slice")
		}
	}
}
