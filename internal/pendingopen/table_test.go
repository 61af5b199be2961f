package pendingopen

import (
	"errors"
	"testing"
)

func TestResolveDeliversRemoteID(t *testing.T) {
	tbl := New()
	f := tbl.Add(1)

	if !tbl.Resolve(1, 17) {
		t.Fatal("Resolve should report the entry existed")
	}

	res := <-f.Done()
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.RemoteID != 17 {
		t.Errorf("got remote id %d, want 17", res.RemoteID)
	}
	if tbl.Has(1) {
		t.Error("entry should be removed after resolution")
	}
}

func TestRejectDeliversError(t *testing.T) {
	tbl := New()
	f := tbl.Add(1)

	wantErr := errors.New("boom")
	if !tbl.Reject(1, wantErr) {
		t.Fatal("Reject should report the entry existed")
	}

	res := <-f.Done()
	if res.Err != wantErr {
		t.Errorf("got %v, want %v", res.Err, wantErr)
	}
}

func TestDuplicateResolveIsNoop(t *testing.T) {
	tbl := New()
	tbl.Add(1)

	if !tbl.Resolve(1, 17) {
		t.Fatal("first resolve should succeed")
	}
	if tbl.Resolve(1, 99) {
		t.Error("duplicate resolve must return false")
	}
	if tbl.Reject(1, errors.New("late")) {
		t.Error("reject after resolve must return false")
	}
}

func TestResolveUnknownIDIsNoop(t *testing.T) {
	tbl := New()
	if tbl.Resolve(5, 17) {
		t.Error("resolving an id that was never added must return false")
	}
}

func TestAbortRejectsAllPending(t *testing.T) {
	tbl := New()
	f1 := tbl.Add(1)
	f2 := tbl.Add(2)

	wantErr := errors.New("transport failure")
	tbl.Abort(wantErr)

	for _, f := range []*Future{f1, f2} {
		res := <-f.Done()
		if res.Err != wantErr {
			t.Errorf("got %v, want %v", res.Err, wantErr)
		}
	}
	if tbl.Has(1) || tbl.Has(2) {
		t.Error("table should be empty after Abort")
	}
}
