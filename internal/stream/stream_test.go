package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeSender records SendWrite/CloseStream calls and lets the test
// control ack timing by calling back into the stream's Ack()/Dispose()
// directly.
type fakeSender struct {
	mu     sync.Mutex
	sent   [][]byte
	onErr  error
	closed []uint32 // localIDs passed to CloseStream
}

func (f *fakeSender) SendWrite(ctx context.Context, localID, remoteID uint32, payload []byte) error {
	if f.onErr != nil {
		return f.onErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) CloseStream(ctx context.Context, localID, remoteID uint32) error {
	f.mu.Lock()
	f.closed = append(f.closed, localID)
	f.mu.Unlock()
	return nil
}

func TestReadDeliversEnqueuedPayload(t *testing.T) {
	s := New(1, 17, "shell:", true, &fakeSender{})

	go func() {
		_ = s.Enqueue(context.Background(), []byte("hello"))
	}()

	got, err := s.Read(context.Background())
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want %q", got, "hello")
	}
}

func TestReadReturnsEOFAfterClose(t *testing.T) {
	s := New(1, 17, "shell:", true, &fakeSender{})
	s.Close()

	_, err := s.Read(context.Background())
	if err != io.EOF {
		t.Errorf("got %v, want io.EOF", err)
	}
}

func TestWriteCompletesOnAck(t *testing.T) {
	fs := &fakeSender{}
	s := New(1, 17, "shell:", true, fs)

	done := make(chan error, 1)
	go func() { done <- s.Write(context.Background(), []byte("A")) }()

	// Give the write a chance to register as pending before acking.
	time.Sleep(10 * time.Millisecond)
	s.Ack()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Write did not complete after Ack")
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.sent) != 1 || string(fs.sent[0]) != "A" {
		t.Errorf("unexpected sent payloads: %v", fs.sent)
	}
}

// TestStopAndWaitSerializesWrites verifies that a second Write does not
// reach the sender until the first has been acknowledged.
func TestStopAndWaitSerializesWrites(t *testing.T) {
	fs := &fakeSender{}
	s := New(1, 17, "shell:", true, fs)

	firstDone := make(chan struct{})
	go func() {
		_ = s.Write(context.Background(), []byte("A"))
		close(firstDone)
	}()
	time.Sleep(10 * time.Millisecond)

	secondStarted := make(chan struct{})
	go func() {
		close(secondStarted)
		_ = s.Write(context.Background(), []byte("B"))
	}()
	<-secondStarted
	time.Sleep(10 * time.Millisecond)

	fs.mu.Lock()
	sentSoFar := len(fs.sent)
	fs.mu.Unlock()
	if sentSoFar != 1 {
		t.Fatalf("expected only the first write on the wire before ack, got %d", sentSoFar)
	}

	s.Ack() // completes "A", unblocks writeMu for "B"
	<-firstDone
	time.Sleep(10 * time.Millisecond)
	s.Ack() // completes "B"

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.sent) != 2 {
		t.Fatalf("expected both writes eventually sent, got %d", len(fs.sent))
	}
}

func TestDisposeFailsPendingWrite(t *testing.T) {
	s := New(1, 17, "shell:", true, &fakeSender{})

	done := make(chan error, 1)
	go func() { done <- s.Write(context.Background(), []byte("A")) }()
	time.Sleep(10 * time.Millisecond)

	wantErr := errors.New("transport failure")
	s.Dispose(wantErr)

	select {
	case err := <-done:
		if err != wantErr {
			t.Errorf("got %v, want %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("Write did not unblock after Dispose")
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	s := New(1, 17, "shell:", true, &fakeSender{})
	s.Dispose(nil)
	s.Dispose(errors.New("second call must be a no-op"))

	if !s.Closed() {
		t.Fatal("expected stream to be closed")
	}
}

func TestCloseNTimesSameAsOnce(t *testing.T) {
	s := New(1, 17, "shell:", true, &fakeSender{})
	for i := 0; i < 5; i++ {
		s.Close()
	}
	if !s.Closed() {
		t.Fatal("expected stream to be closed")
	}
}

// TestCloseNotifiesSenderExactlyOnce verifies that a local Close tells
// the sender to notify the peer and tear down dispatcher state, and that
// repeated/concurrent Close calls only trigger that once.
func TestCloseNotifiesSenderExactlyOnce(t *testing.T) {
	fs := &fakeSender{}
	s := New(1, 17, "shell:", true, fs)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close()
		}()
	}
	wg.Wait()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.closed) != 1 || fs.closed[0] != 1 {
		t.Fatalf("CloseStream calls = %v, want exactly one call with localID 1", fs.closed)
	}
}

// TestDisposeDoesNotNotifySender verifies that a dispatcher-driven
// Dispose (used when the peer already initiated teardown) does not also
// tell the sender to close, which would double-send CLSE.
func TestDisposeDoesNotNotifySender(t *testing.T) {
	fs := &fakeSender{}
	s := New(1, 17, "shell:", true, fs)

	s.Dispose(nil)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.closed) != 0 {
		t.Fatalf("CloseStream calls = %v, want none after Dispose", fs.closed)
	}
}
