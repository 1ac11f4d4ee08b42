package commands

// Tier is a set of permission tiers derived from chat badges. A user may hold several.
type Tier uint8

const (
	TierOwner Tier = 1 << iota
	TierModerator
	TierSubscriber
	TierVIP

	// TierRegular is the empty set.
	TierRegular Tier = 0
)

// Accepted tier sets for the two command families.
const (
	BookmarkTiers = TierOwner | TierModerator | TierSubscriber | TierVIP
	AdminTiers    = TierOwner | TierModerator
)

// badgeTiers maps Twitch badge names to tiers. Founders are early subscribers.
var badgeTiers = map[string]Tier{
	"broadcaster": TierOwner,
	"moderator":   TierModerator,
	"subscriber":  TierSubscriber,
	"founder":     TierSubscriber,
	"vip":         TierVIP,
}

// Classify returns every tier the badges grant.
func Classify(badges map[string]int) Tier {
	var t Tier
	for name := range badges {
		t |= badgeTiers[name]
	}
	return t
}

// Allows reports whether t holds at least one tier of accepted.
func (t Tier) Allows(accepted Tier) bool { return t&accepted != 0 }

func (t Tier) String() string {
	if t == TierRegular {
		return "regular"
	}
	s := ""
	for _, p := range []struct {
		t    Tier
		name string
	}{{TierOwner, "owner"}, {TierModerator, "moderator"}, {TierSubscriber, "subscriber"}, {TierVIP, "vip"}} {
		if t&p.t != 0 {
			if s != "" {
				s += "|"
			}
			s += p.name
		}
	}
	return s
}
