package application

import (
	"time"

	marketreport "aeso-report/internal/marketreport/domain"
)

// maxBatchDays is the longest range the report servlet serves in one request.
const maxBatchDays = 31

// DateRange is an inclusive range of report days.
type DateRange struct {
	Begin time.Time
	End   time.Time
}

// Days returns the number of days covered.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Begin).Hours()/24) + 1
}

// DateBatches splits the rolling window ending yesterday into request ranges, newest first.
// The current day is excluded because the report only serves finished days.
func DateBatches(now time.Time, rollingDays, batchDays int) []DateRange {
	if rollingDays <= 0 || batchDays <= 0 {
		return nil
	}
	if batchDays > maxBatchDays {
		batchDays = maxBatchDays
	}
	end := marketreport.Yesterday(now)
	var batches []DateRange
	for remaining := rollingDays; remaining > 0; {
		span := min(batchDays, remaining)
		begin := end.AddDate(0, 0, -(span - 1))
		batches = append(batches, DateRange{Begin: begin, End: end})
		remaining -= span
		end = begin.AddDate(0, 0, -1)
	}
	return batches
}

// SplitRange splits an explicit range into request-sized batches, oldest first.
func SplitRange(begin, end time.Time, batchDays int) []DateRange {
	begin = marketreport.DayStart(begin)
	end = marketreport.DayStart(end)
	if end.Before(begin) || batchDays <= 0 {
		return nil
	}
	if batchDays > maxBatchDays {
		batchDays = maxBatchDays
	}
	var batches []DateRange
	for start := begin; !start.After(end); {
		stop := start.AddDate(0, 0, batchDays-1)
		if stop.After(end) {
			stop = end
		}
		batches = append(batches, DateRange{Begin: start, End: stop})
		start = stop.AddDate(0, 0, 1)
	}
	return batches
}
