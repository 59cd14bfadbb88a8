package safego

import (
	"go.uber.org/zap"
)

// Go runs fn on a new goroutine and converts any panic into an error log
// instead of a process crash. Every background goroutine in the relay (the
// stream driver, the search call, the upstream body watcher) starts here so
// a misbehaving upstream payload can never take the whole proxy down.
//
//	safego.Go(logger, "stream-driver", func() { ... })
func Go(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panic recovered",
					zap.String("goroutine", name),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
			}
		}()
		fn()
	}()
}
