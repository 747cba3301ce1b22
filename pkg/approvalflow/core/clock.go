package core

import "time"

// Clock abstracts time so repositories and the engine can be tested
// against a fixed time source.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
