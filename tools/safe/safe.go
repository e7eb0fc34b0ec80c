package safe

import (
	"github.com/ankit-kumarpr/lastchat/logger"
)

// Go starts a goroutine that recovers from panic, so one misbehaving
// connection pump cannot take the process down.
func Go(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] panic recovered: %v", r)
			}
		}()
		f()
	}()
}
