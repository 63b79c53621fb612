package domain

import (
	"math"
	"time"
	"unicode/utf8"
)

const (
	urgencyHorizonDays = 30
	minNodeRadius      = 10
	maxNodeRadius      = 100
	labelRunes         = 10
)

// RemainingEffort returns the share of effort not yet completed.
func RemainingEffort(t Task) float64 {
	return (1 - t.PercentCompleted) * t.Effort
}

// Urgency maps due-date proximity to [0,1]. Tasks due today or overdue score
// 1 and tasks due 30 or more days out score 0.
func Urgency(t Task, now time.Time) float64 {
	if t.DueDate == nil {
		return 0
	}
	days := math.Floor(t.DueDate.Sub(now).Hours() / 24)
	days = math.Max(0, days)
	return math.Max(0, math.Min(1, 1-days/urgencyHorizonDays))
}

// NodeSize returns the render radius for a task, in [10, 100].
func NodeSize(t Task, now time.Time) float64 {
	base := 10 + RemainingEffort(t)*4
	urgencyFactor := 1 + Urgency(t, now)*0.4
	priorityFactor := 1 + float64(t.Priority.Clamp()-1)/3*0.4
	radius := base * urgencyFactor * priorityFactor
	if math.IsNaN(radius) {
		return minNodeRadius
	}
	return math.Max(minNodeRadius, math.Min(maxNodeRadius, radius))
}

// Opacity returns the fill opacity for a task, in [0.6, 1.0].
func Opacity(t Task) float64 {
	return 0.6 + float64(t.Priority.Clamp()-1)/3*0.4
}

// Label shortens a title for a bubble caption.
func Label(title string) string {
	if utf8.RuneCountInString(title) <= labelRunes {
		return title
	}
	return string([]rune(title)[:labelRunes]) + "..."
}
