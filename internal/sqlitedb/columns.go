package sqlitedb

import (
	"errors"
	"time"
)

// TimeLayout is fixed width so stored timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Now is FormatTime(time.Now()).
func Now() string {
	return FormatTime(time.Now())
}

func NullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func NullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return FormatTime(*value)
}

func BoolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// ParseTime accepts TimeLayout, RFC3339 variants and SQLite's CURRENT_TIMESTAMP format.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseTimePtr returns nil for empty or unparsable values.
func ParseTimePtr(value string) *time.Time {
	t, err := ParseTime(value)
	if err != nil {
		return nil
	}
	return &t
}

func Placeholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
