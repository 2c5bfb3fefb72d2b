package detection

import (
	"sync"
	"time"
)

const (
	ProgressStep     = 15
	ProgressCeiling  = 90
	ProgressInterval = 400 * time.Millisecond
)

// startProgress bumps the workspace progress on a fixed interval until the
// returned func is called, calling onTick after each bump when set. Calling
// stop ends the ticker, waits for the goroutine and sets progress to 100. It
// is safe to call more than once.
func startProgress(w *Workspace, every time.Duration, onTick func()) (stop func()) {
	quit := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				w.advance(ProgressStep, ProgressCeiling)
				if onTick != nil {
					onTick()
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
			w.setProgress(100)
		})
	}
}
