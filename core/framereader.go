package orchestration

import (
	"context"
	"errors"

	livekittransport "github.com/onyxvoice/onyx-core/core/transport/livekit"
)

// readFrames runs for the session lifetime: it waits for a video track,
// drains its frames into the cache, and re-acquires whenever the track ends
// or changes. Each wait is bounded by the configured track await timeout and
// retried while the source stays open.
func (o *Orchestrator) readFrames(ctx context.Context) {
	for {
		track, err := o.awaitVideoTrack(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-o.videoSource.Done():
				return
			default:
			}
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, livekittransport.ErrNoVideoTrack) {
				logger.WarnContext(ctx, "waiting for a video track failed, retrying", "error", err)
			}
			continue
		}

		logger.InfoContext(ctx, "reading video frames", "track", track.ID())

		for {
			frame, err := track.NextFrame(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.InfoContext(ctx, "video track ended, reacquiring", "track", track.ID(), "error", err)
				break
			}
			o.frames.Set(frame)
		}
	}
}

func (o *Orchestrator) awaitVideoTrack(ctx context.Context) (VideoTrack, error) {
	waitCtx, cancel := context.WithTimeout(ctx, o.trackAwaitTimeout)
	defer cancel()

	return o.videoSource.AwaitVideoTrack(waitCtx)
}
