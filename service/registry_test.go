package service

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAttach(t *testing.T) {
	r := NewRegistry()
	a := NewBasic(200, "a")
	require.NoError(t, r.Attach(a))

	err := r.Attach(NewBasic(200, "dup"))
	assert.ErrorIs(t, err, ErrDuplicateService)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(200)
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Get(201)
	assert.False(t, ok)
}

func TestRegistryStopJoinAll(t *testing.T) {
	r := NewRegistry()
	a := NewBasic(210, "a")
	b := NewBasic(211, "b")
	require.NoError(t, r.Attach(a))
	require.NoError(t, r.Attach(b))
	Launch(a, 0)
	Launch(b, 0)

	r.StopAll()
	r.JoinAll()
	assert.Equal(t, StateClosed, a.State())
	assert.Equal(t, StateClosed, b.State())
}

func TestSignalListenersAreSingleShot(t *testing.T) {
	sig := NewSignalService()
	Launch(sig, 0)
	defer func() { sig.Quit(); sig.Join() }()

	user := launchBasic(t, 220)

	fired := make(chan bool, 4)
	sig.ListenSigUsr1(user, func() { fired <- user.IsInServiceThread() })

	sig.RunInService(func() { sig.Raise(syscall.SIGUSR1) })
	select {
	case onOwner := <-fired:
		assert.True(t, onOwner)
	case <-time.After(time.Second):
		t.Fatal("listener not called")
	}

	sig.RunInService(func() { sig.Raise(syscall.SIGUSR1) })
	waitOn(t, sig)
	waitOn(t, user)
	assert.Len(t, fired, 0)
}

func TestSignalFromOS(t *testing.T) {
	sig := NewSignalService()
	Launch(sig, 0)
	defer func() { sig.Quit(); sig.Join() }()

	user := launchBasic(t, 221)
	fired := make(chan struct{})
	sig.ListenSigUsr2(user, func() { close(fired) })
	waitOn(t, sig)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR2))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("SIGUSR2 not delivered")
	}
}
