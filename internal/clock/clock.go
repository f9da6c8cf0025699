package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so lifecycle timestamps can be pinned in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the current UTC time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
