package domain

import (
	"fmt"
	"time"
)

// RetentionPolicy bounds the daily lineage: daily artifacts and the weekly
// and monthly copies promoted from them.
type RetentionPolicy struct {
	DailyKeep   int
	WeeklyKeep  int
	MonthlyKeep int

	// WeekBoundary is the ISO weekday (1=Monday .. 7=Sunday) that promotes to weekly.
	WeekBoundary int
	// MonthDay is the day of month that promotes to monthly.
	MonthDay int
}

func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		DailyKeep:    7,
		WeeklyKeep:   4,
		MonthlyKeep:  2,
		WeekBoundary: 7,
		MonthDay:     1,
	}
}

func (p RetentionPolicy) Validate() error {
	if p.DailyKeep < 1 || p.WeeklyKeep < 1 || p.MonthlyKeep < 1 {
		return fmt.Errorf("retention keep counts must be at least 1")
	}
	if p.WeekBoundary < 1 || p.WeekBoundary > 7 {
		return fmt.Errorf("week boundary must be an ISO weekday 1-7, got %d", p.WeekBoundary)
	}
	if p.MonthDay < 1 || p.MonthDay > 28 {
		return fmt.Errorf("month day must be between 1 and 28, got %d", p.MonthDay)
	}
	return nil
}

// Keep returns the retention count for class, or 0 for classes that are
// never pruned.
func (p RetentionPolicy) Keep(class BackupClass) int {
	switch class {
	case ClassDaily:
		return p.DailyKeep
	case ClassWeekly:
		return p.WeeklyKeep
	case ClassMonthly:
		return p.MonthlyKeep
	}
	return 0
}

func (p RetentionPolicy) IsWeekBoundary(t time.Time) bool {
	return ISOWeekday(t) == p.WeekBoundary
}

func (p RetentionPolicy) IsMonthBoundary(t time.Time) bool {
	return t.Day() == p.MonthDay
}

// ISOWeekday maps Sunday to 7 instead of 0.
func ISOWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}
