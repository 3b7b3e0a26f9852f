package sync

import "testing"

func TestKeyLockExcludesConcurrentHolders(t *testing.T) {
	k := NewKeyLock()

	release, ok := k.TryLock("Customer/C1")
	if !ok {
		t.Fatal("expected first TryLock to succeed")
	}

	if _, ok := k.TryLock("Customer/C1"); ok {
		t.Fatal("expected second TryLock on same key to fail while first is held")
	}

	release()

	if _, ok := k.TryLock("Customer/C1"); !ok {
		t.Fatal("expected TryLock to succeed after release")
	}
}

func TestKeyLockDifferentKeysIndependent(t *testing.T) {
	k := NewKeyLock()

	_, ok1 := k.TryLock("Customer/C1")
	_, ok2 := k.TryLock("Customer/C2")

	if !ok1 || !ok2 {
		t.Fatal("expected independent keys to lock independently")
	}
}
