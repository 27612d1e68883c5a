package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easypass/internal/derive"
	"easypass/internal/generator"
	"easypass/internal/replace"
)

type fakeBus struct {
	calls [][]interface{}
	err   error
}

func (f *fakeBus) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, args)
	return &dbus.Call{Method: method, Err: f.err}
}

func newTestNotifier(bus *fakeBus, connectErr error) (*Notifier, *int) {
	connects := 0
	n := New(nil)
	n.connect = func() (busObject, error) {
		connects++
		if connectErr != nil {
			return nil, connectErr
		}
		return bus, nil
	}
	return n, &connects
}

func TestObserveSendsNotification(t *testing.T) {
	bus := &fakeBus{}
	n, connects := newTestNotifier(bus, nil)

	n.Observe(replace.Report{
		Kind: replace.KindDerivation,
		Site: "github.com",
		Mode: derive.ModeSecure,
		Err:  errors.New("boom"),
	})
	n.Observe(replace.Report{
		Kind: replace.KindConfig,
		Site: "example.org",
		Err:  fmt.Errorf("%w: master key not set", generator.ErrConfig),
	})

	assert.Equal(t, 1, *connects, "bus connection is reused")
	require.Len(t, bus.calls, 2)

	args := bus.calls[0]
	require.Len(t, args, 8)
	assert.Equal(t, "easypass", args[0])
	assert.Contains(t, args[4], "github.com")
	hints := args[6].(map[string]dbus.Variant)
	assert.Equal(t, urgencyCritical, hints["urgency"].Value())

	hints = bus.calls[1][6].(map[string]dbus.Variant)
	assert.Equal(t, urgencyNormal, hints["urgency"].Value())
	assert.Contains(t, bus.calls[1][4], "master key not set")
	assert.False(t, n.Disabled())
}

func TestObserveDisablesAfterConnectFailure(t *testing.T) {
	n, connects := newTestNotifier(nil, errors.New("no session bus"))

	n.Observe(replace.Report{Site: "a"})
	n.Observe(replace.Report{Site: "b"})

	assert.True(t, n.Disabled())
	assert.Equal(t, 1, *connects)
}

func TestObserveDisablesAfterCallFailure(t *testing.T) {
	bus := &fakeBus{err: errors.New("service unknown")}
	n, _ := newTestNotifier(bus, nil)

	n.Observe(replace.Report{Site: "a"})
	n.Observe(replace.Report{Site: "b"})

	assert.True(t, n.Disabled())
	assert.Len(t, bus.calls, 1)
}

func TestNotifierAsObserver(t *testing.T) {
	bus := &fakeBus{}
	n, _ := newTestNotifier(bus, nil)

	var logged int
	obs := replace.Observers{replace.ObserverFunc(func(replace.Report) { logged++ }), n}
	obs.Observe(replace.Report{Site: "x"})

	assert.Equal(t, 1, logged)
	assert.Len(t, bus.calls, 1)
}

func TestPing(t *testing.T) {
	bus := &fakeBus{}
	n, connects := newTestNotifier(bus, nil)

	require.NoError(t, n.Ping(context.Background()))
	require.NoError(t, n.Ping(context.Background()))
	assert.Equal(t, 1, *connects)
	assert.Len(t, bus.calls, 2)

	bus.err = errors.New("service unknown")
	assert.Error(t, n.Ping(context.Background()))
	assert.False(t, n.Disabled(), "ping failures do not disable notifications")
}

func TestPingConnectFailure(t *testing.T) {
	n, _ := newTestNotifier(nil, errors.New("no session bus"))

	assert.Error(t, n.Ping(context.Background()))
	assert.False(t, n.Disabled())
}
