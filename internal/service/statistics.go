package service

import (
	"context"
	"time"

	"license-server/internal/apperror"
	"license-server/internal/model"
)

const (
	dateLayout       = "2006-01-02"
	defaultStatsDays = 30
	maxStatsDays     = 366
)

// ParseStatsRange turns optional YYYY-MM-DD bounds into a half-open UTC day
// range. A missing start means thirty days before end; a missing end means
// today.
func ParseStatsRange(startDate, endDate string, now time.Time) (time.Time, time.Time, error) {
	today := now.UTC().Truncate(24 * time.Hour)

	end := today
	if endDate != "" {
		t, err := time.Parse(dateLayout, endDate)
		if err != nil {
			return time.Time{}, time.Time{}, apperror.Invalid("end_date must be formatted as YYYY-MM-DD")
		}
		end = t
	}
	start := end.AddDate(0, 0, -defaultStatsDays)
	if startDate != "" {
		t, err := time.Parse(dateLayout, startDate)
		if err != nil {
			return time.Time{}, time.Time{}, apperror.Invalid("start_date must be formatted as YYYY-MM-DD")
		}
		start = t
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, apperror.Invalid("start_date must not be after end_date")
	}
	if end.Sub(start) > maxStatsDays*24*time.Hour {
		return time.Time{}, time.Time{}, apperror.Invalid("date range must not exceed %d days", maxStatsDays)
	}
	return start, end.AddDate(0, 0, 1), nil
}

// ValidationStatistics buckets the audit log per UTC day between start and
// end, both given as YYYY-MM-DD and both optional.
func (m *LicenseManager) ValidationStatistics(ctx context.Context, startDate, endDate string) (*model.ValidationStatistics, error) {
	start, end, err := ParseStatsRange(startDate, endDate, m.now())
	if err != nil {
		return nil, err
	}
	logs, err := m.store.ValidationsBetween(ctx, start, end)
	if err != nil {
		return nil, m.internal(err, "validation statistics")
	}

	days := int(end.Sub(start).Hours() / 24)
	st := &model.ValidationStatistics{
		StartDate:   start.Format(dateLayout),
		EndDate:     end.AddDate(0, 0, -1).Format(dateLayout),
		ByModule:    map[string]int64{},
		DailyCounts: make([]model.DailyValidations, days),
	}
	for i := range st.DailyCounts {
		st.DailyCounts[i].Date = start.AddDate(0, 0, i).Format(dateLayout)
	}

	for _, l := range logs {
		i := int(l.ValidationTime.UTC().Sub(start).Hours() / 24)
		if i < 0 || i >= days {
			continue
		}
		day := &st.DailyCounts[i]
		switch l.ValidationResult {
		case model.ResultSuccess:
			day.Success++
			st.Success++
		case model.ResultFailed:
			day.Failed++
			st.Failed++
		default:
			day.Error++
			st.Error++
		}
		st.Total++
		if l.ModuleName != "" {
			st.ByModule[l.ModuleName]++
		}
	}
	return st, nil
}
