package auth

import "time"

// Clock supplies the current time. Tests substitute a fixed or manual clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock is the wall clock in UTC.
var SystemClock Clock = realClock{}
