package audio

import (
	"testing"
	"time"
)

func frame(i int) AudioFrame {
	return AudioFrame{
		Data:       []byte{byte(i), 0},
		SampleRate: 16000,
		Timestamp:  time.Unix(0, int64(i)*int64(time.Millisecond)),
	}
}

func TestFrameQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(8)
	for i := 0; i < 5; i++ {
		if dropped := q.Push(frame(i)); dropped {
			t.Fatalf("unexpected drop at frame %d", i)
		}
	}
	q.Close()

	i := 0
	for f := range q.Frames() {
		if f.Data[0] != byte(i) {
			t.Fatalf("frame %d out of order: got %d", i, f.Data[0])
		}
		i++
	}
	if i != 5 {
		t.Fatalf("want 5 frames, got %d", i)
	}
}

func TestFrameQueueDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	q := NewFrameQueue(3)
	for i := 0; i < 5; i++ {
		q.Push(frame(i))
	}
	q.Close()

	var got []byte
	for f := range q.Frames() {
		got = append(got, f.Data[0])
	}

	// Frames 0 and 1 were evicted; 2, 3, 4 remain in order.
	want := []byte{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("want %d frames, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame %d: want %d, got %d", i, want[i], got[i])
		}
	}
	if q.Dropped() != 2 {
		t.Fatalf("want 2 dropped, got %d", q.Dropped())
	}
}

func TestFrameDuration(t *testing.T) {
	t.Parallel()

	// 480 samples at 16 kHz is 30 ms.
	f := AudioFrame{Data: make([]byte, 960), SampleRate: 16000}
	if d := f.Duration(); d != 30*time.Millisecond {
		t.Fatalf("want 30ms, got %v", d)
	}

	if d := (AudioFrame{Data: make([]byte, 960)}).Duration(); d != 0 {
		t.Fatalf("want 0 for unset sample rate, got %v", d)
	}
}

func TestSegmentPCMConcatenatesInOrder(t *testing.T) {
	t.Parallel()

	seg := SpeechSegment{
		Frames: []AudioFrame{
			{Data: []byte{1, 2}, SampleRate: 16000},
			{Data: []byte{3, 4}, SampleRate: 16000},
		},
	}
	pcm := seg.PCM()
	want := []byte{1, 2, 3, 4}
	if len(pcm) != len(want) {
		t.Fatalf("want %d bytes, got %d", len(want), len(pcm))
	}
	for i := range want {
		if pcm[i] != want[i] {
			t.Fatalf("byte %d: want %d, got %d", i, want[i], pcm[i])
		}
	}
	if seg.SampleRate() != 16000 {
		t.Fatalf("want 16000, got %d", seg.SampleRate())
	}
}
