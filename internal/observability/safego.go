package observability

import (
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// SafeGo launches fn in a goroutine and logs a panic instead of crashing the process.
func SafeGo(logger *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("goroutine panicked",
					zap.String("goroutine", name),
					zap.String("panic", fmt.Sprintf("%v", r)),
					zap.ByteString("stack", debug.Stack()))
			}
		}()
		fn()
	}()
}
