package services

import (
	"fmt"
	"sync"
	"time"

	"finsync/internal/core"
)

// ScheduleChecker decides whether an account is due for a scheduled sync.
// A nil lastSynced means the account was never synced.
type ScheduleChecker interface {
	IsDue(lastSynced *time.Time, now time.Time) bool
}

// HourlyChecker is due once an hour has passed.
type HourlyChecker struct{}

func (HourlyChecker) IsDue(lastSynced *time.Time, now time.Time) bool {
	if lastSynced == nil || lastSynced.IsZero() {
		return true
	}
	return now.Sub(*lastSynced) >= time.Hour
}

// DailyChecker is due on any UTC date other than the last sync's.
type DailyChecker struct{}

func (DailyChecker) IsDue(lastSynced *time.Time, now time.Time) bool {
	if lastSynced == nil || lastSynced.IsZero() {
		return true
	}
	return lastSynced.UTC().Format(time.DateOnly) != now.UTC().Format(time.DateOnly)
}

// WeeklyChecker is due once seven days have passed.
type WeeklyChecker struct{}

func (WeeklyChecker) IsDue(lastSynced *time.Time, now time.Time) bool {
	if lastSynced == nil || lastSynced.IsZero() {
		return true
	}
	return now.Sub(*lastSynced) >= 7*24*time.Hour
}

var (
	scheduleMu         sync.RWMutex
	scheduleStrategies = map[core.SyncFrequency]ScheduleChecker{
		core.Hourly: HourlyChecker{},
		core.Daily:  DailyChecker{},
		core.Weekly: WeeklyChecker{},
	}
)

// GetScheduleChecker returns the checker registered for a frequency.
func GetScheduleChecker(frequency core.SyncFrequency) (ScheduleChecker, error) {
	scheduleMu.RLock()
	defer scheduleMu.RUnlock()
	checker, ok := scheduleStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown sync frequency: %s", frequency)
	}
	return checker, nil
}

// RegisterScheduleChecker adds or replaces the checker for a frequency.
func RegisterScheduleChecker(frequency core.SyncFrequency, checker ScheduleChecker) {
	scheduleMu.Lock()
	defer scheduleMu.Unlock()
	scheduleStrategies[frequency] = checker
}

// IsAccountDue applies the account's frequency checker. Inactive accounts
// are never due.
func IsAccountDue(a core.LinkedAccount, now time.Time) (bool, error) {
	if !a.IsActive {
		return false, nil
	}
	checker, err := GetScheduleChecker(a.Frequency())
	if err != nil {
		return false, err
	}
	return checker.IsDue(a.LastSyncedAt, now), nil
}
