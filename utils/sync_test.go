package utils

import (
	"errors"
	"testing"
)

func TestSyncPipe_SignalSuccess(t *testing.T) {
	sp, err := NewSyncPipe()
	if err != nil {
		t.Fatal(err)
	}
	defer sp.Close()

	go func() {
		sp.Signal()
		sp.CloseChild()
	}()

	if err := sp.WaitWithError(); err != nil {
		t.Fatalf("WaitWithError after Signal: %v", err)
	}
}

func TestSyncPipe_SignalError(t *testing.T) {
	sp, err := NewSyncPipe()
	if err != nil {
		t.Fatal(err)
	}
	defer sp.Close()

	go func() {
		sp.SignalError(errBoom)
		sp.CloseChild()
	}()

	err = sp.WaitWithError()
	if err == nil || err.Error() != errBoom.Error() {
		t.Fatalf("WaitWithError after SignalError = %v, want %v", err, errBoom)
	}
}

func TestSyncPipe_ChildDiesWithoutSignalling(t *testing.T) {
	sp, err := NewSyncPipe()
	if err != nil {
		t.Fatal(err)
	}
	defer sp.Close()

	sp.CloseChild()

	if err := sp.WaitWithError(); err == nil {
		t.Fatal("expected an error when the child closes without signalling")
	}
}

var errBoom = errors.New("setup failed")
