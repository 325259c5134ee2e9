package track

import (
	"io"
	"sync"
	"testing"
)

func TestSetLogWritersDuringUpdates(t *testing.T) {
	defer SetLogWriters(nil, nil, nil)

	tr := NewTracker(testConfig())
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		frame := 0
		for {
			select {
			case <-stop:
				return
			default:
				tr.Update([]Detection{playerDet(frame, 20, 20)}, frameTime(frame))
				frame++
			}
		}
	}()

	// Flip the writers while the tracker logs from its predict workers.
	for i := 0; i < 200; i++ {
		SetLogWriters(io.Discard, io.Discard, io.Discard)
		SetLogWriters(nil, nil, nil)
	}
	close(stop)
	wg.Wait()
}
