// Package schedule turns a start date, cadence and a set of selected modules
// into a fully dated lesson sequence. It is pure: callers persist the result.
package schedule

import (
	"fmt"
	"time"

	"github.com/noah-isme/course-flow-api/internal/models"
)

// Frequency is the cadence between consecutive lessons.
type Frequency string

// Supported frequencies.
const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
)

// Params describes one generation request.
type Params struct {
	StartDate    time.Time
	Frequency    Frequency
	TimeOfDay    string // "HH:MM"
	SkipWeekends bool
	Count        int
	Duration     int // minutes
	Modules      []models.Module
}

// Descriptor is an in-memory, not-yet-persisted lesson.
type Descriptor struct {
	LessonNumber int
	Title        string
	ScheduledAt  time.Time
	Duration     int
	ModuleID     *string
}

func stepDays(f Frequency) (int, error) {
	switch f {
	case FrequencyDaily:
		return 1, nil
	case FrequencyWeekly:
		return 7, nil
	case FrequencyBiweekly:
		return 14, nil
	default:
		return 0, fmt.Errorf("unsupported frequency %q", f)
	}
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// Generate produces the ordered, dated lesson batch.
//
// Lesson 1 is always "Introduction" and the last lesson "Conclusion", both
// without a module; when both apply (count == 1) the introduction wins.
// Interior lessons take the selected modules round-robin, starting at the
// first module, or fall back to a generic title when no modules are supplied.
// With SkipWeekends the cursor advances day by day until it lands on a
// weekday before each emission; the cadence step is applied afterwards.
func Generate(p Params) ([]Descriptor, error) {
	if p.Count < 1 {
		return nil, fmt.Errorf("lesson count must be at least 1, got %d", p.Count)
	}
	step, err := stepDays(p.Frequency)
	if err != nil {
		return nil, err
	}
	var hour, minute int
	if _, err := fmt.Sscanf(p.TimeOfDay, "%d:%d", &hour, &minute); err != nil {
		return nil, fmt.Errorf("invalid time of day %q: %w", p.TimeOfDay, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid time of day %q", p.TimeOfDay)
	}

	cursor := time.Date(p.StartDate.Year(), p.StartDate.Month(), p.StartDate.Day(), hour, minute, 0, 0, p.StartDate.Location())

	lessons := make([]Descriptor, 0, p.Count)
	for i := 1; i <= p.Count; i++ {
		if p.SkipWeekends {
			for isWeekend(cursor) {
				cursor = cursor.AddDate(0, 0, 1)
			}
		}

		lesson := Descriptor{
			LessonNumber: i,
			ScheduledAt:  cursor,
			Duration:     p.Duration,
		}
		switch {
		case i == 1:
			lesson.Title = "Introduction"
		case i == p.Count:
			lesson.Title = "Conclusion"
		case len(p.Modules) > 0:
			module := p.Modules[(i-2)%len(p.Modules)]
			lesson.Title = module.Title
			id := module.ID
			lesson.ModuleID = &id
		default:
			lesson.Title = fmt.Sprintf("Lesson %d", i)
		}
		lessons = append(lessons, lesson)

		cursor = cursor.AddDate(0, 0, step)
	}

	return lessons, nil
}
