package commands

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		badges    map[string]int
		bookmark  bool
		admin     bool
		wantTiers Tier
	}{
		{"regular", nil, false, false, TierRegular},
		{"unknown badges", map[string]int{"premium": 1, "bits": 100}, false, false, TierRegular},
		{"vip only", map[string]int{"vip": 1}, true, false, TierVIP},
		{"subscriber", map[string]int{"subscriber": 6}, true, false, TierSubscriber},
		{"founder", map[string]int{"founder": 0}, true, false, TierSubscriber},
		{"moderator", map[string]int{"moderator": 1}, true, true, TierModerator},
		{"broadcaster", map[string]int{"broadcaster": 1}, true, true, TierOwner},
		{"vip and sub", map[string]int{"vip": 1, "subscriber": 3}, true, false, TierVIP | TierSubscriber},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.badges)
			if got != tt.wantTiers {
				t.Errorf("Classify() = %v, want %v", got, tt.wantTiers)
			}
			if got.Allows(BookmarkTiers) != tt.bookmark {
				t.Errorf("bookmark allowed = %v, want %v", got.Allows(BookmarkTiers), tt.bookmark)
			}
			if got.Allows(AdminTiers) != tt.admin {
				t.Errorf("admin allowed = %v, want %v", got.Allows(AdminTiers), tt.admin)
			}
		})
	}
}

func TestTierString(t *testing.T) {
	if got := (TierOwner | TierVIP).String(); got != "owner|vip" {
		t.Errorf("String() = %q", got)
	}
	if got := TierRegular.String(); got != "regular" {
		t.Errorf("String() = %q", got)
	}
}
