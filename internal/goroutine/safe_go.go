package goroutine

import (
	"context"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/marketplace-backend/internal/logger"
)

// SafeGo запускает горутину с обработкой panic.
func SafeGo(fn func()) {
	go func() {
		defer recoverPanic()
		fn()
	}()
}

// SafeGoWithContext запускает горутину с контекстом и обработкой panic.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverPanic()
		fn(ctx)
	}()
}

func recoverPanic() {
	if r := recover(); r != nil {
		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("goroutine: panic перехвачен")
		}
	}
}
