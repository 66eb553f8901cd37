package config

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalDispatcher_DeliversToRegisteredWaiter(t *testing.T) {
	d := NewSignalDispatcher(syscall.SIGUSR1)
	defer d.Stop()

	waiter := d.Waiter()
	defer d.Forget(waiter)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case <-waiter:
	case <-time.After(time.Second):
		t.Fatal("waiter did not receive a notification")
	}
}

func TestSignalDispatcher_FansOutToEveryWaiter(t *testing.T) {
	d := NewSignalDispatcher(syscall.SIGUSR1)
	defer d.Stop()

	a := d.Waiter()
	b := d.Waiter()
	defer d.Forget(a)
	defer d.Forget(b)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	for _, w := range []chan struct{}{a, b} {
		select {
		case <-w:
		case <-time.After(time.Second):
			t.Fatal("waiter did not receive a notification")
		}
	}
}

func TestSignalDispatcher_ForgottenWaiterReceivesNothing(t *testing.T) {
	d := NewSignalDispatcher(syscall.SIGUSR1)
	defer d.Stop()

	waiter := d.Waiter()
	d.Forget(waiter)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case <-waiter:
		t.Fatal("forgotten waiter should not receive a notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSignalDispatcher_StopEndsDelivery(t *testing.T) {
	d := NewSignalDispatcher(syscall.SIGUSR1)
	waiter := d.Waiter()

	d.Stop()

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))

	select {
	case <-waiter:
		t.Fatal("stopped dispatcher should not deliver notifications")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSignalDispatcher_CoalescesBurstsIntoOneBufferedNotification(t *testing.T) {
	d := NewSignalDispatcher(syscall.SIGUSR1)
	defer d.Stop()

	waiter := d.Waiter()
	defer d.Forget(waiter)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	time.Sleep(50 * time.Millisecond)

	select {
	case <-waiter:
	case <-time.After(time.Second):
		t.Fatal("waiter did not receive a notification")
	}

	select {
	case <-waiter:
		t.Fatal("second buffered slot should have been drained, not refilled by coalesced signal")
	default:
	}
	assert.True(t, true)
}
