package rewards

import "time"

// ProgressRow captures a learner's standing in one lesson step.
type ProgressRow struct {
	UserID      string    `json:"userId"`
	ModuleSlug  string    `json:"moduleSlug"`
	LessonSlug  string    `json:"lessonSlug"`
	StepID      string    `json:"stepId"`
	Completed   bool      `json:"completed"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completedAt"`
}

// Key returns the logical resource key for coalescing queued progress writes.
func (p *ProgressRow) Key() string {
	return p.ModuleSlug + ":" + p.LessonSlug + ":" + p.StepID
}

// StreakState carries the persisted streak fields for a user.
type StreakState struct {
	Count         int    `json:"count"`
	LastActiveDay string `json:"lastActiveDay"` // local calendar day, YYYY-MM-DD
	Timezone      string `json:"timezone"`      // IANA name the day was computed in
}

// DailyGoal is the per-user daily XP target configuration.
type DailyGoal struct {
	UserID   string `json:"userId"`
	TargetXP int    `json:"targetXp"`
}
