package attendance

import (
	"fmt"
	"strings"
	"time"
)

const (
	keyPrefix      = "attendance"
	reportedPrefix = "absent"
	dateLayout     = "2006-01-02"
)

// Key identifies one class roll call on one day.
type Key struct {
	DirectorateID string `json:"directorateId"`
	SchoolID      string `json:"schoolId"`
	Date          string `json:"date"`
	ClassName     string `json:"className"`
}

// DateOf formats t in local time as a record date.
func DateOf(t time.Time) string {
	return t.Format(dateLayout)
}

func (k Key) Validate() error {
	if k.DirectorateID == "" || k.SchoolID == "" || k.ClassName == "" {
		return fmt.Errorf("directorate, school and class are required")
	}
	if strings.Contains(k.DirectorateID, ":") || strings.Contains(k.SchoolID, ":") {
		return fmt.Errorf("directorate and school ids must not contain ':'")
	}
	if _, err := time.Parse(dateLayout, k.Date); err != nil {
		return fmt.Errorf("invalid date %q: %w", k.Date, err)
	}
	return nil
}

// String renders attendance:<do>:<school>:<YYYY-MM-DD>:<class>.
func (k Key) String() string {
	return k.join(keyPrefix)
}

func (k Key) reportedKey() string {
	return k.join(reportedPrefix)
}

func (k Key) join(prefix string) string {
	return strings.Join([]string{prefix, k.DirectorateID, k.SchoolID, k.Date, k.ClassName}, ":")
}

// ParseKey is the inverse of Key.String. Class names may contain ':'.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, ":", 5)
	if len(parts) != 5 || parts[0] != keyPrefix {
		return Key{}, fmt.Errorf("invalid attendance key %q", s)
	}
	k := Key{DirectorateID: parts[1], SchoolID: parts[2], Date: parts[3], ClassName: parts[4]}
	if err := k.Validate(); err != nil {
		return Key{}, fmt.Errorf("invalid attendance key %q: %w", s, err)
	}
	return k, nil
}

func dayPrefix(directorateID, schoolID, date string) string {
	return strings.Join([]string{keyPrefix, directorateID, schoolID, date}, ":") + ":"
}
