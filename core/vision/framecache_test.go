package vision

import (
	"bytes"
	"sync"
	"testing"
	"time"
)

func TestFrameCacheEmpty(t *testing.T) {
	cache := NewFrameCache()

	if _, ok := cache.Get(); ok {
		t.Fatalf("expected empty cache to report no frame")
	}
}

func TestFrameCacheLatestWins(t *testing.T) {
	cache := NewFrameCache()

	cache.Set(Frame{Data: []byte{0x01}, Timestamp: time.Unix(1, 0)})
	cache.Set(Frame{Data: []byte{0x02}, Timestamp: time.Unix(2, 0)})

	frame, ok := cache.Get()
	if !ok {
		t.Fatalf("expected a frame after Set")
	}
	if !bytes.Equal(frame.Data, []byte{0x02}) {
		t.Errorf("expected latest frame data, got %v", frame.Data)
	}
	if !frame.Timestamp.Equal(time.Unix(2, 0)) {
		t.Errorf("expected latest frame timestamp, got %v", frame.Timestamp)
	}
}

func TestFrameCacheClear(t *testing.T) {
	cache := NewFrameCache()

	cache.Set(Frame{Data: []byte{0x01}})
	cache.Clear()

	if _, ok := cache.Get(); ok {
		t.Fatalf("expected no frame after Clear")
	}
}

func TestFrameCacheNilReceiver(t *testing.T) {
	var cache *FrameCache

	cache.Set(Frame{Data: []byte{0x01}})
	cache.Clear()
	if _, ok := cache.Get(); ok {
		t.Fatalf("expected nil cache to report no frame")
	}
}

func TestFrameCacheConcurrentAccess(t *testing.T) {
	cache := NewFrameCache()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			cache.Set(Frame{Data: []byte{byte(i)}})
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				if frame, ok := cache.Get(); ok && len(frame.Data) != 1 {
					t.Errorf("observed torn frame: %v", frame.Data)
					return
				}
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(stop)
	wg.Wait()
}
