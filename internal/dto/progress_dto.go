package dto

// DailyCount buckets submission activity by server-local calendar date.
type DailyCount struct {
	Date      string `json:"date"`
	Count     int    `json:"count"`
	Correct   int    `json:"correct"`
	Incorrect int    `json:"incorrect"`
	Pending   int    `json:"pending"`
}

// UnitProgress is a completed/total pair for one material or lesson.
type UnitProgress struct {
	ID        uint   `json:"id"`
	Title     string `json:"title"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// ProgressSnapshot aggregates submission state for a user, class or the
// whole system. The four buckets always sum to TotalAssignments.
type ProgressSnapshot struct {
	TotalAssignments int            `json:"total_assignments"`
	Correct          int            `json:"correct"`
	Incorrect        int            `json:"incorrect"`
	Pending          int            `json:"pending"`
	Unsubmitted      int            `json:"unsubmitted"`
	DailyCounts      []DailyCount   `json:"daily_counts"`
	MaterialProgress []UnitProgress `json:"material_progress"`
	LessonProgress   []UnitProgress `json:"lesson_progress"`
	CacheHit         bool           `json:"-"`
}
