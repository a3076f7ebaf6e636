package borrows

import "time"

// OverdueDays reports how many whole days end is past due. Partial days
// truncate, so a record 23 hours late is 0 days overdue. Returns 0 when end
// is not past due.
func OverdueDays(due, end time.Time) int {
	if !end.After(due) {
		return 0
	}
	return int(end.Sub(due).Hours() / 24)
}
