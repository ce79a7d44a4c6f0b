package model

type Badge string

const (
	BadgeNone     Badge = "None"
	BadgeExplorer Badge = "Explorer"
	BadgeGuardian Badge = "Guardian"
	BadgeLegend   Badge = "Legend"
)

// Badges lists every tier from lowest to highest.
var Badges = []Badge{BadgeNone, BadgeExplorer, BadgeGuardian, BadgeLegend}

// BadgeFor derives the badge tier from lifetime earnings.
func BadgeFor(totalEarned int) Badge {
	switch {
	case totalEarned >= 120:
		return BadgeLegend
	case totalEarned >= 60:
		return BadgeGuardian
	case totalEarned >= 20:
		return BadgeExplorer
	default:
		return BadgeNone
	}
}
