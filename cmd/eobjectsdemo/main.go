package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/nestybox/eobjects-go/binding"
	"github.com/nestybox/eobjects-go/conn"
	"github.com/nestybox/eobjects-go/envelope"
	"github.com/nestybox/eobjects-go/estatus"
	"github.com/nestybox/eobjects-go/object"
	"github.com/nestybox/eobjects-go/process"
	"github.com/nestybox/eobjects-go/property"
	"github.com/nestybox/eobjects-go/route"
	"github.com/nestybox/eobjects-go/variable"
)

const usage = `eobjectsdemo

eobjectsdemo wires up two object-tree threads, one TCP connection between
them, and a single property binding forwarding a sensor reading from the
server thread to the client thread, to exercise the framework end to end.
`

const sensorClassID int32 = 1

// sensorHolder is the class payload for the one object each thread owns:
// its "reading" property is stored directly on the struct rather than in
// the attached value store.
type sensorHolder struct {
	reading float64
}

func (h *sensorHolder) SimpleProperty(nr int32) (variable.Variable, bool) {
	if nr != 1 {
		return variable.Variable{}, false
	}
	var v variable.Variable
	v.SetDouble(h.reading, 2)
	return v, true
}

func (h *sensorHolder) SetSimpleProperty(nr int32, v variable.Variable) {
	if nr == 1 {
		h.reading = v.GetDouble()
	}
}

func (h *sensorHolder) OnPropertyChange(nr int32, val *variable.Variable, flags uint32) {
	if nr == 1 {
		logrus.Infof("sensor reading changed to %.2f", val.GetDouble())
	}
}

func sensorSchema() (*property.Schema, error) {
	s := property.NewSchema(sensorClassID)
	var def variable.Variable
	def.SetDouble(0, 2)
	if err := s.AddProperty(1, "reading", property.Simple, def); err != nil {
		return nil, err
	}
	if err := s.PropertysetDone(); err != nil {
		return nil, err
	}
	return s, nil
}

// dispatcher is the route.Handler shared by both threads and both
// connections: it hands every binding-protocol command to
// binding.Dispatch, and handles SET_PROPERTY locally by calling
// property.SetProperty on the targeted object's own thread — the only
// way a property may be mutated from outside that thread's goroutine.
type dispatcher struct {
	root   *object.RootHelper
	proc   *process.Process
	sender binding.Sender
	schema *property.Schema
}

func (d *dispatcher) OnMessage(target *object.Object, env *envelope.Envelope) error {
	switch env.Command {
	case envelope.CmdBind, envelope.CmdBindReply, envelope.CmdFwrd, envelope.CmdAck, envelope.CmdUnbind, envelope.CmdSrvUnbind, envelope.CmdRebind:
		return binding.Dispatch(d.root, d.proc, d.sender, target, env)
	case envelope.CmdSetProperty:
		val, ok := env.Content.(*variable.Variable)
		if !ok {
			return estatus.Internal("SET_PROPERTY carried no value")
		}
		holder, ok := target.Payload().(property.Holder)
		if !ok {
			return estatus.Internal("SET_PROPERTY target has no property holder")
		}
		return property.SetProperty(d.root, target, d.schema, holder, 1, *val, nil, 0)
	default:
		logrus.Debugf("eobjectsdemo: ignoring envelope command %d", env.Command)
		return nil
	}
}

// loopbackPair opens a TCP listener on 127.0.0.1 and returns two Dialers:
// the first dials out to it, the second returns the one connection the
// listener accepts. Both conn.Conn sides are plain client-role
// connections as far as package conn is concerned; which dialer is handed
// to which side determines who connects to whom.
func loopbackPair() (conn.Dialer, conn.Dialer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, nil, err
	}
	addr := ln.Addr().String()

	accepted := make(chan net.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		ln.Close()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	dialOut := func(string) (net.Conn, error) {
		return net.Dial("tcp", addr)
	}
	dialIn := func(string) (net.Conn, error) {
		select {
		case c := <-accepted:
			return c, nil
		case err := <-acceptErr:
			return nil, err
		}
	}
	return dialOut, dialIn, nil
}

// simulateSensor stands in for a real data source: it nudges the
// server's reading every few seconds. The new value is queued as a
// SET_PROPERTY envelope rather than applied directly, since only the
// server connection's own goroutine may touch its tree; the dispatcher
// applies it on that goroutine's next drain, and the binding's own
// property-change hook carries it on to the client from there.
func simulateSensor(serverConn *conn.Conn, serverObj *object.Object, sensor *sensorHolder, done <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	reading := sensor.reading
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			reading += 0.1
			var v variable.Variable
			v.SetDouble(reading, 2)
			env := envelope.New(envelope.CmdSetProperty, 0, "")
			env.Content = &v
			if err := serverConn.Queue(serverObj, env, true); err != nil {
				logrus.Warnf("eobjectsdemo: failed to queue sensor update: %v", err)
			}
		}
	}
}

func run(ctx *cli.Context) error {
	logrus.Info("eobjectsdemo starting ...")

	proc, err := process.New()
	if err != nil {
		return fmt.Errorf("failed to create process registry: %v", err)
	}

	schema, err := sensorSchema()
	if err != nil {
		return fmt.Errorf("failed to build sensor schema: %v", err)
	}
	if err := proc.RegisterClass(sensorClassID, schema); err != nil {
		return fmt.Errorf("failed to register sensor class: %v", err)
	}

	dialOut, dialIn, err := loopbackPair()
	if err != nil {
		return fmt.Errorf("failed to set up loopback transport: %v", err)
	}

	serverDispatcher := &dispatcher{proc: proc, schema: schema}
	serverConn, serverRoot, err := conn.New(proc, sensorClassID, "@serverconn", "server", dialIn, serverDispatcher)
	if err != nil {
		return fmt.Errorf("failed to create server connection: %v", err)
	}
	serverDispatcher.root = serverConn.Root()
	serverDispatcher.sender = serverConn

	clientDispatcher := &dispatcher{proc: proc, schema: schema}
	clientConn, clientRoot, err := conn.New(proc, sensorClassID, "@clientconn", "client", dialOut, clientDispatcher)
	if err != nil {
		return fmt.Errorf("failed to create client connection: %v", err)
	}
	clientDispatcher.root = clientConn.Root()
	clientDispatcher.sender = clientConn

	serverSensor := &sensorHolder{reading: 21.5}
	serverObj, err := object.New(serverConn.Root(), serverRoot, sensorClassID, object.ItemOid, 0)
	if err != nil {
		return fmt.Errorf("failed to create server sensor object: %v", err)
	}
	serverObj.SetPayload(serverSensor)

	clientSensor := &sensorHolder{}
	clientObj, err := object.New(clientConn.Root(), clientRoot, sensorClassID, object.ItemOid, 0)
	if err != nil {
		return fmt.Errorf("failed to create client sensor object: %v", err)
	}
	clientObj.SetPayload(clientSensor)

	// Bind runs here, before either connection's own goroutine starts,
	// so it touches both trees without racing the goroutines that will
	// shortly own them exclusively.
	if _, err := binding.Bind(clientConn.Root(), clientConn, clientObj, schema, clientSensor, 1, route.FormatOixToken(serverObj.ID()), "reading", binding.NoFlowControl); err != nil {
		return fmt.Errorf("failed to bind sensor reading: %v", err)
	}

	go serverConn.Run()
	go clientConn.Run()

	systemd.SdNotify(false, systemd.SdNotifyReady)
	logrus.Info("eobjectsdemo ready, sensor binding established")

	tickerDone := make(chan struct{})
	go simulateSensor(serverConn, serverObj, serverSensor, tickerDone)

	exitChan := make(chan os.Signal, 1)
	signal.Notify(exitChan, syscall.SIGINT, syscall.SIGTERM)
	<-exitChan

	systemd.SdNotify(false, systemd.SdNotifyStopping)
	logrus.Info("eobjectsdemo stopping (gracefully) ...")

	close(tickerDone)
	clientConn.RequestExit()
	serverConn.RequestExit()

	logrus.Info("eobjectsdemo exiting ...")
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "eobjectsdemo"
	app.Usage = usage

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log level: debug, info, warning, error, fatal",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		logrus.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
			FullTimestamp:   true,
		})
		switch ctx.GlobalString("log-level") {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		default:
			logrus.SetLevel(logrus.InfoLevel)
		}
		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		var prof interface{ Stop() }
		if ctx.Bool("cpu-profiling") {
			prof = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		}
		err := run(ctx)
		if prof != nil {
			prof.Stop()
		}
		return err
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Errorf("eobjectsdemo: %v", err)
		buf := make([]byte, 32768)
		n := runtime.Stack(buf, true)
		logrus.Debugf("\n%s\n", buf[:n])
		os.Exit(1)
	}
}
