// Package notify shows failed replacements as desktop notifications over
// the freedesktop notification service on the session bus.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"easypass/internal/replace"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	method     = busName + ".Notify"
	serverInfo = busName + ".GetServerInformation"

	// callTimeout bounds one Notify call so a stuck bus cannot stall
	// the replacement worker.
	callTimeout = 2 * time.Second
)

// Urgency hint values defined by org.freedesktop.Notifications.
const (
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// busObject is the part of dbus.BusObject the notifier uses.
type busObject interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Notifier implements replace.Observer. After the first bus failure it
// logs once and stays silent.
type Notifier struct {
	AppName string
	Expire  time.Duration

	mu       sync.Mutex
	connect  func() (busObject, error)
	obj      busObject
	disabled bool
	logger   *slog.Logger
}

var _ replace.Observer = (*Notifier)(nil)

// New creates a Notifier on the session bus. The connection is opened on
// the first report.
func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		AppName: "easypass",
		Expire:  5 * time.Second,
		connect: sessionBus,
		logger:  logger.With("component", "notify"),
	}
}

func sessionBus() (busObject, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	return conn.Object(busName, objectPath), nil
}

// Disabled reports whether notifications were turned off after a failure.
func (n *Notifier) Disabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disabled
}

// Observe sends a notification for r.
func (n *Notifier) Observe(r replace.Report) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.disabled {
		return
	}
	if n.obj == nil {
		obj, err := n.connect()
		if err != nil {
			n.disable(fmt.Errorf("connect session bus: %w", err))
			return
		}
		n.obj = obj
	}

	urgency := urgencyCritical
	if r.Kind == replace.KindConfig {
		urgency = urgencyNormal
	}

	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	call := n.obj.CallWithContext(ctx, method, 0,
		n.AppName,
		uint32(0), // replaces_id
		"dialog-password",
		"easypass",
		r.Message(),
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(urgency)},
		int32(n.Expire.Milliseconds()),
	)
	if call.Err != nil {
		n.disable(fmt.Errorf("notify: %w", call.Err))
	}
}

// Ping checks that a notification service answers on the session bus.
// Unlike Observe it never disables the notifier.
func (n *Notifier) Ping(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.obj == nil {
		obj, err := n.connect()
		if err != nil {
			return fmt.Errorf("connect session bus: %w", err)
		}
		n.obj = obj
	}
	return n.obj.CallWithContext(ctx, serverInfo, 0).Err
}

func (n *Notifier) disable(err error) {
	n.disabled = true
	n.logger.Warn("desktop notifications disabled", "error", err)
}
