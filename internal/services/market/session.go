package market

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

const dateLayout = "2006-01-02"

// Session is the exchange trading calendar: timezone, open, square-off and
// close times on weekdays.
type Session struct {
	loc       *time.Location
	open      time.Duration
	squareOff time.Duration
	close     time.Duration
}

// NewSession parses "HH:MM" clock times in the named zone.
func NewSession(timezone, open, squareOff, close string) (*Session, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	s := &Session{loc: loc}
	if s.open, err = parseClock(open); err != nil {
		return nil, err
	}
	if s.squareOff, err = parseClock(squareOff); err != nil {
		return nil, err
	}
	if s.close, err = parseClock(close); err != nil {
		return nil, err
	}
	if !(s.open < s.squareOff && s.squareOff <= s.close) {
		return nil, fmt.Errorf("session times must satisfy open < square_off <= close")
	}
	return s, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (s *Session) Location() *time.Location { return s.loc }

// Local converts t to the exchange zone.
func (s *Session) Local(t time.Time) time.Time { return t.In(s.loc) }

// TradingDate is the exchange calendar date of t, formatted YYYY-MM-DD.
func (s *Session) TradingDate(t time.Time) string { return t.In(s.loc).Format(dateLayout) }

// ParseDate reads a trading date back as midnight in the session zone.
func (s *Session) ParseDate(date string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, date, s.loc)
}

func (s *Session) IsTradingDay(t time.Time) bool {
	wd := t.In(s.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (s *Session) sinceMidnight(t time.Time) time.Duration {
	l := t.In(s.loc)
	return time.Duration(l.Hour())*time.Hour + time.Duration(l.Minute())*time.Minute + time.Duration(l.Second())*time.Second
}

// IsOpen reports whether t falls inside regular trading hours.
func (s *Session) IsOpen(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	tod := s.sinceMidnight(t)
	return tod >= s.open && tod < s.close
}

// AfterSquareOff reports whether t is at or after the square-off time of its day.
func (s *Session) AfterSquareOff(t time.Time) bool {
	return s.sinceMidnight(t) >= s.squareOff
}

// OpenAt returns the session open on the exchange date of t.
func (s *Session) OpenAt(t time.Time) time.Time {
	l := t.In(s.loc)
	y, m, d := l.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc).Add(s.open)
}
