package audio

import (
	"context"
	"time"
)

// SleepFunc blocks for d or until ctx is done and reports whether the full
// duration elapsed.
type SleepFunc func(ctx context.Context, d time.Duration) bool

// Sleep is the wall-clock [SleepFunc].
func Sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Pace emits pcm in chunks of frame duration with sleep between chunks, so
// recorded audio arrives the way a live microphone would deliver it. A nil
// sleep selects [Sleep]. The channel is closed after the last chunk or when
// ctx is done.
func Pace(ctx context.Context, pcm []byte, f Format, frame time.Duration, sleep SleepFunc) <-chan []byte {
	if sleep == nil {
		sleep = Sleep
	}
	size := max(f.BytesFor(frame), f.FrameBytes())
	out := make(chan []byte, 8)
	go func() {
		defer close(out)
		for off := 0; off < len(pcm); off += size {
			end := min(off+size, len(pcm))
			select {
			case out <- pcm[off:end]:
			case <-ctx.Done():
				return
			}
			if end < len(pcm) && !sleep(ctx, frame) {
				return
			}
		}
	}()
	return out
}
