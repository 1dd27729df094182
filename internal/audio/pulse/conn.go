package pulse

import (
	"os"

	"github.com/godbus/dbus"
	"github.com/sqp/pulseaudio"
)

// conn abstracts the slice of the PulseAudio D-Bus client the engine uses,
// so tests can run against an in-memory sound server.
type conn interface {
	sinkPaths() ([]dbus.ObjectPath, error)
	deviceString(path dbus.ObjectPath, name string) (string, error)
	deviceBool(path dbus.ObjectPath, name string) (bool, error)
	deviceVolume(path dbus.ObjectPath) ([]uint32, error)
	setDeviceProp(path dbus.ObjectPath, name string, value interface{}) error
	register(sink eventSink)
	listen()
	stopListening()
}

// eventSink receives server-push events, already demultiplexed.
type eventSink interface {
	sinkAdded(path dbus.ObjectPath)
	sinkRemoved(path dbus.ObjectPath)
	volumeUpdated(path dbus.ObjectPath, values []uint32)
	muteUpdated(path dbus.ObjectPath, mute bool)
}

// dbusConn is the production conn over github.com/sqp/pulseaudio.
type dbusConn struct {
	client *pulseaudio.Client
}

func newDBusConn() (*dbusConn, error) {
	client, err := pulseaudio.New()
	if err != nil {
		return nil, err
	}
	return &dbusConn{client: client}, nil
}

func (c *dbusConn) sinkPaths() ([]dbus.ObjectPath, error) {
	return c.client.Core().ListPath("Sinks")
}

func (c *dbusConn) deviceString(path dbus.ObjectPath, name string) (string, error) {
	return c.client.Device(path).String(name)
}

func (c *dbusConn) deviceBool(path dbus.ObjectPath, name string) (bool, error) {
	return c.client.Device(path).Bool(name)
}

func (c *dbusConn) deviceVolume(path dbus.ObjectPath) ([]uint32, error) {
	return c.client.Device(path).ListUint32("Volume")
}

func (c *dbusConn) setDeviceProp(path dbus.ObjectPath, name string, value interface{}) error {
	return c.client.Device(path).Set(name, value)
}

func (c *dbusConn) register(sink eventSink) {
	c.client.Register(&signalForwarder{sink: sink})
}

func (c *dbusConn) listen() { c.client.Listen() }

func (c *dbusConn) stopListening() { c.client.StopListening() }

// signalForwarder exposes the callback methods the pulseaudio client
// detects by reflection and forwards them to the engine.
type signalForwarder struct {
	sink eventSink
}

func (f *signalForwarder) NewSink(path dbus.ObjectPath) { f.sink.sinkAdded(path) }

func (f *signalForwarder) SinkRemoved(path dbus.ObjectPath) { f.sink.sinkRemoved(path) }

func (f *signalForwarder) DeviceVolumeUpdated(path dbus.ObjectPath, values []uint32) {
	f.sink.volumeUpdated(path, values)
}

func (f *signalForwarder) DeviceMuteUpdated(path dbus.ObjectPath, mute bool) {
	f.sink.muteUpdated(path, mute)
}

// Available reports whether a session bus looks present. The real
// reachability signal is the engine coming up with sinks; this probe only
// rules out environments with no bus at all.
func Available() bool {
	return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != "" ||
		os.Getenv("XDG_RUNTIME_DIR") != ""
}
