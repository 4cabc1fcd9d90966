package calendar

import "time"

// lunarHoliday is a single day of a lunar-calendar holiday group (Seollal,
// Buddha's Birthday, Chuseok) already resolved to its Gregorian date for a
// given year. Lunisolar conversion has no closed-form arithmetic, so these
// are looked up as data rather than computed.
type lunarHoliday struct {
	year        int
	month, day  int
	name        string
}

// lunarHolidaysKR carries the resolved Gregorian dates for the movable
// Korean holidays across the years this platform is expected to run.
// Extend this table, not the calendar logic, when a new year is needed.
var lunarHolidaysKR = []lunarHoliday{
	// 2024
	{2024, 2, 9, "Seollal eve"}, {2024, 2, 10, "Seollal"}, {2024, 2, 11, "Seollal +1"},
	{2024, 5, 15, "Buddha's Birthday"},
	{2024, 9, 16, "Chuseok eve"}, {2024, 9, 17, "Chuseok"}, {2024, 9, 18, "Chuseok +1"},
	// 2024-10-06 (Sunday) is also a closed Chuseok day, with substitute
	// Monday 2024-10-07 observed as a market holiday.
	{2024, 10, 6, "Chuseok (extended)"}, {2024, 10, 7, "Chuseok substitute holiday"},

	// 2025
	{2025, 1, 28, "Seollal eve"}, {2025, 1, 29, "Seollal"}, {2025, 1, 30, "Seollal +1"},
	{2025, 5, 5, "Buddha's Birthday"},
	{2025, 10, 5, "Chuseok eve"}, {2025, 10, 6, "Chuseok"}, {2025, 10, 7, "Chuseok +1"},

	// 2026
	{2026, 2, 16, "Seollal eve"}, {2026, 2, 17, "Seollal"}, {2026, 2, 18, "Seollal +1"},
	{2026, 5, 24, "Buddha's Birthday"},
	{2026, 9, 24, "Chuseok eve"}, {2026, 9, 25, "Chuseok"}, {2026, 9, 26, "Chuseok +1"},

	// 2027
	{2027, 2, 6, "Seollal eve"}, {2027, 2, 7, "Seollal"}, {2027, 2, 8, "Seollal +1"},
	{2027, 5, 13, "Buddha's Birthday"},
	{2027, 9, 14, "Chuseok eve"}, {2027, 9, 15, "Chuseok"}, {2027, 9, 16, "Chuseok +1"},
}

// fixedHolidayKR is a holiday that recurs on the same Gregorian month/day
// every year.
type fixedHolidayKR struct {
	month, day int
	name       string
}

// fixedHolidaysKR are the calendar-fixed KRX closures.
var fixedHolidaysKR = []fixedHolidayKR{
	{1, 1, "New Year"},
	{3, 1, "Independence Movement Day"},
	{5, 1, "Labour Day"},
	{5, 5, "Children's Day"},
	{6, 6, "Memorial Day"},
	{8, 15, "Liberation Day"},
	{10, 3, "National Foundation Day"},
	{10, 9, "Hangeul Day"},
	{12, 25, "Christmas"},
}

// baseHolidays returns every KRX holiday date, fixed and lunar, in the
// range [fromYear, toYear] inclusive, before the substitute-holiday rule is
// applied.
func baseHolidays(fromYear, toYear int, loc *time.Location) []time.Time {
	var days []time.Time
	for y := fromYear; y <= toYear; y++ {
		for _, h := range fixedHolidaysKR {
			days = append(days, time.Date(y, time.Month(h.month), h.day, 0, 0, 0, 0, loc))
		}
	}
	for _, h := range lunarHolidaysKR {
		if h.year < fromYear || h.year > toYear {
			continue
		}
		days = append(days, time.Date(h.year, time.Month(h.month), h.day, 0, 0, 0, 0, loc))
	}
	return days
}
