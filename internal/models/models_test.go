package models

import (
	"testing"
	"time"
)

func TestTokenIsExpired(t *testing.T) {
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{
			name:      "future expiration",
			expiresAt: time.Now().Add(1 * time.Hour),
			want:      false,
		},
		{
			name:      "just expired",
			expiresAt: time.Now().Add(-1 * time.Second),
			want:      true,
		},
		{
			name:      "expired yesterday",
			expiresAt: time.Now().Add(-24 * time.Hour),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := Token{Value: "abc", UserID: 1, ExpiresAt: tt.expiresAt}
			if got := token.IsExpired(); got != tt.want {
				t.Errorf("Token.IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range AllKinds {
		if !k.Valid() {
			t.Errorf("Kind(%q).Valid() = false, want true", k)
		}
	}
	for _, k := range []Kind{"", "tasks", "note"} {
		if k.Valid() {
			t.Errorf("Kind(%q).Valid() = true, want false", k)
		}
	}
}

func TestItemDisplayTime(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	scheduled := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		item Item
		want *time.Time
	}{
		{name: "scheduled wins", item: Item{CreatedAt: &created, ScheduledAt: &scheduled}, want: &scheduled},
		{name: "falls back to created", item: Item{CreatedAt: &created}, want: &created},
		{name: "neither present", item: Item{}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.item.DisplayTime()
			if got != tt.want {
				t.Errorf("DisplayTime() = %v, want %v", got, tt.want)
			}
		})
	}
}
