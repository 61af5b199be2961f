// adbmux — CLI demo for the packet dispatcher and socket multiplexer.
//
// It runs either side of an ADB-style multiplexed connection over TCP or
// WebRTC, serving (host) or calling (client) a synthetic "echo:" service so
// the dispatcher, flow control, and teardown paths are exercisable without
// real ADB hardware or daemon.
//
// Launch interactively (no flags) or non-interactively via -role/-addr/…
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/quaylabs/adbmux/internal/dispatch"
	"github.com/quaylabs/adbmux/internal/logx"
	"github.com/quaylabs/adbmux/internal/stats"
	"github.com/quaylabs/adbmux/internal/stream"
	"github.com/quaylabs/adbmux/internal/transport"
	"github.com/quaylabs/adbmux/internal/transport/signaling"
)

var version = "dev"

const echoServicePrefix = "echo:"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	role := flag.String("role", "", "Role: host or client")
	addr := flag.String("addr", "", "TCP address: listen addr (host) or dial addr (client)")
	useWebRTC := flag.Bool("webrtc", false, "Use a WebRTC DataChannel instead of TCP")
	wsURL := flag.String("wsUrl", "", "Signaling WebSocket URL (client + webrtc only)")
	message := flag.String("message", "hello", "Message the client writes to the echo service")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		logx.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("adbmux — v%s", version))
	pterm.Println()

	switch *role {
	case "":
		runInteractive(ctx)

	case "host":
		if *useWebRTC {
			runWebRTCHost(ctx)
			return
		}
		if *addr == "" {
			logx.Errorf("missing -addr for host role")
			os.Exit(1)
		}
		runTCPHost(ctx, *addr)

	case "client":
		if *useWebRTC {
			if *wsURL == "" {
				logx.Errorf("missing -wsUrl for webrtc client role")
				os.Exit(1)
			}
			runWebRTCClient(ctx, *wsURL, *message)
			return
		}
		if *addr == "" {
			logx.Errorf("missing -addr for client role")
			os.Exit(1)
		}
		runTCPClient(ctx, *addr, *message)

	default:
		logx.Errorf("invalid -role: must be 'host' or 'client'")
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Interactive mode
// ---------------------------------------------------------------------------

func runInteractive(ctx context.Context) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host — serve the echo: service", "Client — call a host's echo: service"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		addr := askAddr("Address to listen on, e.g. :6800")
		runTCPHost(ctx, addr)
		return
	}

	addr := askAddr("Address to dial, e.g. 127.0.0.1:6800")
	msg := askMessage()
	runTCPClient(ctx, addr, msg)
}

func askAddr(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.WithDefaultText(prompt).Show()
		raw = strings.TrimSpace(raw)
		if raw != "" {
			pterm.Println()
			return raw
		}
		logx.Warnf("address must not be empty")
		pterm.Println()
	}
}

func askMessage() string {
	raw, _ := pterm.DefaultInteractiveTextInput.WithDefaultText("Message to send").Show()
	pterm.Println()
	if strings.TrimSpace(raw) == "" {
		return "hello"
	}
	return raw
}

// ---------------------------------------------------------------------------
// Host
// ---------------------------------------------------------------------------

func runTCPHost(ctx context.Context, addr string) {
	logx.Infof("listening on %s", addr)
	err := transport.ListenTCP(ctx, addr, false, func(conn *transport.TCPConn) {
		serveConnection(ctx, conn)
	})
	if err != nil {
		logx.Errorf("listen failed: %v", err)
		os.Exit(1)
	}
}

func runWebRTCHost(ctx context.Context) {
	conn, err := signaling.EstablishHost(ctx, false)
	if err != nil {
		logx.Errorf("signaling failed: %v", err)
		os.Exit(1)
	}
	defer conn.Close()
	logx.Infof("webrtc data channel established")
	serveConnection(ctx, conn)
}

func serveConnection(ctx context.Context, conn transport.Conn) {
	counters := stats.New()
	counters.StartReporter(ctx, 5*time.Second)

	cfg := dispatch.DefaultConfig()
	cfg.Counters = counters

	d := dispatch.New(ctx, conn, cfg)
	d.OnIncomingStream(handleIncomingEcho)
	d.OnError(func(err error) { logx.Warnf("dispatcher error: %v", err) })

	<-d.Disconnected()
	logx.Infof("connection closed")
}

func handleIncomingEcho(ev *dispatch.IncomingEvent) {
	if !strings.HasPrefix(ev.Service, echoServicePrefix) {
		logx.Debugf("rejecting unknown service %q", ev.Service)
		return
	}
	ev.Handled = true
	go runEcho(ev.Stream)
}

func runEcho(s *stream.LogicalStream) {
	ctx := context.Background()
	for {
		chunk, err := s.Read(ctx)
		if err != nil {
			return
		}
		if err := s.Write(ctx, chunk); err != nil {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func runTCPClient(ctx context.Context, addr, message string) {
	conn, err := transport.DialTCP(ctx, addr, false)
	if err != nil {
		logx.Errorf("dial failed: %v", err)
		os.Exit(1)
	}
	defer conn.Close()
	callEcho(ctx, conn, message)
}

func runWebRTCClient(ctx context.Context, wsURL, message string) {
	conn, err := signaling.EstablishClient(ctx, wsURL, false)
	if err != nil {
		logx.Errorf("signaling failed: %v", err)
		os.Exit(1)
	}
	defer conn.Close()
	callEcho(ctx, conn, message)
}

func callEcho(ctx context.Context, conn transport.Conn, message string) {
	cfg := dispatch.DefaultConfig()
	d := dispatch.New(ctx, conn, cfg)
	defer d.Dispose()

	s, err := d.CreateStream(ctx, echoServicePrefix)
	if err != nil {
		logx.Errorf("create stream failed: %v", err)
		os.Exit(1)
	}
	defer s.Close()

	if err := s.Write(ctx, []byte(message)); err != nil {
		logx.Errorf("write failed: %v", err)
		os.Exit(1)
	}

	reply, err := s.Read(ctx)
	if err != nil {
		logx.Errorf("read failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("echo reply: %s\n", reply)
	logx.Infof("round trip complete")
}
