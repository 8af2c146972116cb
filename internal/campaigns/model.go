package campaigns

import "time"

// Campaign is the history row written after each completed dispatch. It
// holds counts only; recipients and letters are never persisted.
type Campaign struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	Total      int       `json:"total"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	ResumeName string    `json:"resumeName"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}
