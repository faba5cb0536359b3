package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned when a scraped date cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

// persianGregorianMonths are Gregorian month names as written in Persian.
var persianGregorianMonths = map[string]time.Month{
	"ژانویه":  time.January,
	"فوریه":   time.February,
	"مارس":    time.March,
	"آوریل":   time.April,
	"می":      time.May,
	"مه":      time.May,
	"ژوئن":    time.June,
	"جولای":   time.July,
	"ژوئیه":   time.July,
	"آگوست":   time.August,
	"اوت":     time.August,
	"سپتامبر": time.September,
	"اکتبر":   time.October,
	"نوامبر":  time.November,
	"دسامبر":  time.December,
}

// jalaliMonths are the Solar Hijri month names, 1-based.
var jalaliMonths = map[string]int{
	"فروردین":  1,
	"اردیبهشت": 2,
	"خرداد":    3,
	"تیر":      4,
	"مرداد":    5,
	"شهریور":   6,
	"مهر":      7,
	"آبان":     8,
	"آذر":      9,
	"دی":       10,
	"بهمن":     11,
	"اسفند":    12,
}

// ParseGregorianPersianMonth parses dates such as "ژوئن 5, 2021" whose month
// is a Gregorian month written in Persian.
func ParseGregorianPersianMonth(raw string) (time.Time, error) {
	fields := strings.Fields(strings.ReplaceAll(Digits(StripBOM(raw)), "،", ","))
	if len(fields) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	month, ok := persianGregorianMonths[fields[0]]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month %q", ErrInvalidDate, fields[0])
	}
	day, err := strconv.Atoi(strings.TrimSuffix(fields[1], ","))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q", ErrInvalidDate, fields[1])
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: year %q", ErrInvalidDate, fields[2])
	}
	return gregorianDate(year, int(month), day, raw)
}

// ParseJalali parses Jalali dates written either as "1400/03/15" (any of
// / - . separators) or as "15 خرداد 1400", and returns the Gregorian date.
func ParseJalali(raw string) (time.Time, error) {
	s := strings.TrimSpace(Digits(StripBOM(raw)))
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	if parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' || r == '.' }); len(parts) == 3 {
		nums := make([]int, 3)
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
			}
			nums[i] = n
		}
		return JalaliToGregorian(nums[0], nums[1], nums[2])
	}
	fields := strings.Fields(strings.ReplaceAll(s, "،", " "))
	if len(fields) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: day %q", ErrInvalidDate, fields[0])
	}
	month, ok := jalaliMonths[fields[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: unknown month %q", ErrInvalidDate, fields[1])
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: year %q", ErrInvalidDate, fields[2])
	}
	return JalaliToGregorian(year, month, day)
}

// jalaliLeapDays counts the leap days before shifted year y on the 33-year
// cycle the conversion below uses.
func jalaliLeapDays(y int) int {
	return (y/33)*8 + ((y%33)+3)/4
}

// IsJalaliLeap reports whether Esfand of jy has 30 days.
func IsJalaliLeap(jy int) bool {
	y := jy + 1595
	return jalaliLeapDays(y+1)-jalaliLeapDays(y) == 1
}

// JalaliToGregorian converts a Solar Hijri date to a UTC Gregorian date.
func JalaliToGregorian(jy, jm, jd int) (time.Time, error) {
	if jm < 1 || jm > 12 || jd < 1 || jd > 31 || (jm > 6 && jd > 30) || jy < 1 ||
		(jm == 12 && jd == 30 && !IsJalaliLeap(jy)) {
		return time.Time{}, fmt.Errorf("%w: jalali %d/%d/%d", ErrInvalidDate, jy, jm, jd)
	}
	jy += 1595
	days := -355668 + 365*jy + jalaliLeapDays(jy) + jd
	if jm < 7 {
		days += (jm - 1) * 31
	} else {
		days += (jm-7)*30 + 186
	}
	gy := 400 * (days / 146097)
	days %= 146097
	if days > 36524 {
		days--
		gy += 100 * (days / 36524)
		days %= 36524
		if days >= 365 {
			days++
		}
	}
	gy += 4 * (days / 1461)
	days %= 1461
	if days > 365 {
		gy += (days - 1) / 365
		days = (days - 1) % 365
	}
	gd := days + 1
	monthDays := []int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	if (gy%4 == 0 && gy%100 != 0) || gy%400 == 0 {
		monthDays[2] = 29
	}
	gm := 1
	for gm <= 12 && gd > monthDays[gm] {
		gd -= monthDays[gm]
		gm++
	}
	return time.Date(gy, time.Month(gm), gd, 0, 0, 0, 0, time.UTC), nil
}

func gregorianDate(year, month, day int, raw string) (time.Time, error) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t, nil
}
