package breakerbox

import "time"

// Clock supplies the current time. The breaker reads it to expire window
// records and to move an open circuit to half-open. Tests substitute a
// manual clock to drive both deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
