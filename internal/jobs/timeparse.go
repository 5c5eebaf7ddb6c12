package jobs

import (
	"errors"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var ErrInvalidTimeFormat = errors.New("invalid time format")

var naturalParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseTime turns a reminder time text into an absolute instant. Full
// timestamps ("2024-01-15T20:00:00") are tried first, then natural
// expressions ("8 PM", "tomorrow at 9am") relative to now.
func ParseTime(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrInvalidTimeFormat
	}

	if t, err := dateparse.ParseIn(text, now.Location()); err == nil && t.Year() >= 1970 {
		return t, nil
	}

	r, err := naturalParser.Parse(text, now)
	if err != nil || r == nil {
		return time.Time{}, ErrInvalidTimeFormat
	}
	return r.Time, nil
}
