//go:build !windows

package pump

func newPlatformQueue() Queue {
	return NewChanQueue(64)
}
