package ledger

const (
	// LevelSize is the amount of XP that makes up one level.
	LevelSize = 100
	// TaskCompletionReward is granted each time a task enters DONE.
	TaskCompletionReward = 10
	// ResonanceReward is granted for every new capture/value link.
	ResonanceReward = 10
)

// floorDiv rounds toward negative infinity so that totals below zero keep
// Level and ProgressWithinLevel consistent with each other.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Level derives the level from a total: floor(xp/100) + 1.
func Level(totalXP int) int {
	return floorDiv(totalXP, LevelSize) + 1
}

// ProgressWithinLevel returns the XP earned inside the current level and the
// same amount as a fraction of LevelSize. current is always in [0, LevelSize).
func ProgressWithinLevel(totalXP int) (current int, fraction float64) {
	current = mod(totalXP, LevelSize)
	return current, float64(current) / LevelSize
}

// XPToNextLevel is the XP still missing to reach Level(totalXP)+1.
func XPToNextLevel(totalXP int) int {
	current, _ := ProgressWithinLevel(totalXP)
	return LevelSize - current
}

// XPRequiredForLevel is the minimum total that yields the given level.
func XPRequiredForLevel(level int) int {
	return (level - 1) * LevelSize
}

// Progress is the derived, never stored, view of a user's XP.
type Progress struct {
	TotalXP        int     `json:"total_xp"`
	Level          int     `json:"level"`
	CurrentLevelXP int     `json:"current_level_xp"`
	Fraction       float64 `json:"fraction"`
	ToNextLevel    int     `json:"to_next_level"`
}

// ProgressFor computes every derived figure for a total.
func ProgressFor(totalXP int) Progress {
	current, fraction := ProgressWithinLevel(totalXP)
	return Progress{
		TotalXP:        totalXP,
		Level:          Level(totalXP),
		CurrentLevelXP: current,
		Fraction:       fraction,
		ToNextLevel:    LevelSize - current,
	}
}
