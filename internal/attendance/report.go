package attendance

import "sort"

const (
	minWindowDays     = 1
	maxWindowDays     = 30
	reportDayLimit    = 7
	reportTopUsers    = 5
	dayUsernamesShown = 5
)

// ReportSummary is the aggregate returned by AttendanceReport.
type ReportSummary struct {
	WindowDays    int          `json:"window_days"`
	Total         int          `json:"total"`
	DistinctUsers int          `json:"distinct_users"`
	ActiveDays    int          `json:"active_days"`
	Days          []DaySummary `json:"days"`
	TopUsers      []UserCount  `json:"top_users"`
}

// DaySummary is the breakdown of one local day.
type DaySummary struct {
	Day       string   `json:"day"`
	Count     int      `json:"count"`
	Usernames []string `json:"usernames"`
	Overflow  int      `json:"overflow"`
	WithImage int      `json:"with_image"`
}

// UserCount is one entry of the most-active ranking.
type UserCount struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Count    int    `json:"count"`
}

// ClampWindow bounds a report window to [1, 30] days.
func ClampWindow(days int) int {
	if days < minWindowDays {
		return minWindowDays
	}
	if days > maxWindowDays {
		return maxWindowDays
	}
	return days
}

// BuildReport groups rows by reference-zone day. Rows are expected in clock-in
// order; ranking ties keep first-seen order.
func BuildReport(rows []ReportRow, windowDays int) ReportSummary {
	out := ReportSummary{
		WindowDays: windowDays,
		Total:      len(rows),
		Days:       []DaySummary{},
		TopUsers:   []UserCount{},
	}

	days := map[string]*DaySummary{}
	users := map[string]*UserCount{}
	var userOrder []string

	for _, row := range rows {
		key := LocalDay(row.ClockIn)
		d, ok := days[key]
		if !ok {
			d = &DaySummary{Day: key, Usernames: []string{}}
			days[key] = d
		}
		d.Count++
		if len(d.Usernames) < dayUsernamesShown {
			d.Usernames = append(d.Usernames, row.Username)
		} else {
			d.Overflow++
		}
		if row.ImageURL != "" {
			d.WithImage++
		}

		u, ok := users[row.UserID]
		if !ok {
			u = &UserCount{UserID: row.UserID, Username: row.Username}
			users[row.UserID] = u
			userOrder = append(userOrder, row.UserID)
		}
		u.Count++
	}

	out.DistinctUsers = len(users)
	out.ActiveDays = len(days)

	for _, d := range days {
		out.Days = append(out.Days, *d)
	}
	sort.Slice(out.Days, func(i, j int) bool { return out.Days[i].Day > out.Days[j].Day })
	if len(out.Days) > reportDayLimit {
		out.Days = out.Days[:reportDayLimit]
	}

	for _, id := range userOrder {
		out.TopUsers = append(out.TopUsers, *users[id])
	}
	sort.SliceStable(out.TopUsers, func(i, j int) bool { return out.TopUsers[i].Count > out.TopUsers[j].Count })
	if len(out.TopUsers) > reportTopUsers {
		out.TopUsers = out.TopUsers[:reportTopUsers]
	}
	return out
}
