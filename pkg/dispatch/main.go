package dispatch

import "sync"

var (
	mainOnce  sync.Once
	mainQueue *SerialQueue
)

// Main returns the process-wide serial queue that user-observable state is
// updated on.
func Main() *SerialQueue {
	mainOnce.Do(func() {
		mainQueue = NewSerialQueue()
	})
	return mainQueue
}
