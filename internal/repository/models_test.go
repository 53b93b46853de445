package repository

import (
	"testing"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
)

func TestItemIDsRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ids  []string
	}{
		{name: "empty", ids: nil},
		{name: "single", ids: []string{"a1"}},
		{name: "multiple", ids: []string{"a1", "b2", "c3"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := splitItemIDs(joinItemIDs(tt.ids))
			if len(got) != len(tt.ids) {
				t.Fatalf("expected %d ids, got %d", len(tt.ids), len(got))
			}
			for i := range tt.ids {
				if got[i] != tt.ids[i] {
					t.Errorf("id %d: expected %q, got %q", i, tt.ids[i], got[i])
				}
			}
		})
	}
}

func TestSplitItemIDsBlank(t *testing.T) {
	t.Parallel()

	if got := splitItemIDs("   "); got != nil {
		t.Errorf("expected nil for blank input, got %v", got)
	}
}

func TestWindowModelMapping(t *testing.T) {
	t.Parallel()

	errMsg := "provider down"
	now := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	w := &domain.NotificationWindow{
		ID:             "win-1",
		Kind:           domain.KindDaily,
		WindowStart:    now,
		ItemCount:      2,
		ItemIDs:        []string{"a", "b"},
		RecipientCount: 5,
		SucceededCount: 4,
		FailedCount:    1,
		Status:         domain.WindowStatusCompleted,
		Error:          &errMsg,
		RetryCount:     1,
	}

	got := windowModelToDomain(windowModelFromDomain(w))
	if got.ID != w.ID || got.Kind != w.Kind || !got.WindowStart.Equal(w.WindowStart) {
		t.Errorf("identity fields did not survive mapping: %+v", got)
	}
	if len(got.ItemIDs) != 2 || got.ItemIDs[0] != "a" || got.ItemIDs[1] != "b" {
		t.Errorf("item ids did not survive mapping: %v", got.ItemIDs)
	}
	if got.SucceededCount != 4 || got.FailedCount != 1 || got.RecipientCount != 5 {
		t.Errorf("counts did not survive mapping: %+v", got)
	}
	if got.Error == nil || *got.Error != errMsg {
		t.Errorf("error detail did not survive mapping: %v", got.Error)
	}
}
