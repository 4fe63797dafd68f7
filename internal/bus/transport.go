package bus

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Logger is the logging interface used by Transport.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transport owns the single UDP socket used to talk to the BusPro gateway.
// It tracks the last-seen receive peer and maintains a NAT-safe transmit
// address: only the host from peer_rx is adopted, and only when that host
// is not the container's default gateway (a sign the packet was NATed and
// its apparent source is not actually reachable).
type Transport struct {
	conn   *net.UDPConn
	logger Logger

	localPort   int
	defaultGW   net.IP
	onTelegram  func(Telegram)
	debugFrames bool

	mu        sync.RWMutex
	peerRX    *net.UDPAddr
	peerTX    *net.UDPAddr
	configTXPort int

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Config configures a Transport.
type Config struct {
	LocalPort      int
	GatewayHost    string
	GatewayPort    int
	DebugTelegrams bool
}

// NewTransport constructs a Transport bound to cfg.LocalPort, with peer_tx
// initialized from cfg.GatewayHost:cfg.GatewayPort.
func NewTransport(cfg Config) (*Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.GatewayHost, strconv.Itoa(cfg.GatewayPort)))
	if err != nil {
		return nil, fmt.Errorf("resolving gateway address: %w", err)
	}

	t := &Transport{
		logger:       noopLogger{},
		localPort:    cfg.LocalPort,
		peerTX:       addr,
		configTXPort: cfg.GatewayPort,
		debugFrames:  cfg.DebugTelegrams,
		defaultGW:    detectDefaultGateway(),
	}
	return t, nil
}

// SetLogger sets the logger used for receive/send/NAT-guard events.
func (t *Transport) SetLogger(logger Logger) {
	t.logger = logger
}

// SetOnTelegram registers the callback invoked for every successfully
// decoded inbound telegram. Must be called before Start.
func (t *Transport) SetOnTelegram(cb func(Telegram)) {
	t.onTelegram = cb
}

// Start binds the UDP socket and begins the receive loop. The receive loop
// never blocks on downstream work: decode and dispatch happen synchronously
// in the loop, and callers are expected to hand off to channels/queues
// rather than performing slow work in the callback.
func (t *Transport) Start(ctx context.Context) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: t.localPort})
	if err != nil {
		return fmt.Errorf("binding udp socket on port %d: %w", t.localPort, err)
	}
	t.conn = conn

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.receiveLoop(runCtx)

	t.logger.Info("bus transport started", "local_port", t.localPort)
	return nil
}

// Close stops the receive loop and releases the socket.
func (t *Transport) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	t.wg.Wait()
	return err
}

func (t *Transport) receiveLoop(ctx context.Context) {
	defer t.wg.Done()
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("udp read error", "error", err)
			continue
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])
		t.adoptPeer(addr)

		tg, err := Decode(raw)
		if err != nil {
			if t.debugFrames {
				t.logger.Debug("dropping undecodable frame", "error", err, "raw", hex.EncodeToString(raw))
			}
			continue
		}
		if t.debugFrames {
			t.logger.Debug("telegram received", "opcode", fmt.Sprintf("0x%04x", tg.OpCode), "source", tg.SourceAddress, "dest", tg.DestAddress)
		}
		if t.onTelegram != nil {
			t.onTelegram(tg)
		}
	}
}

// adoptPeer applies the NAT guard: peer_rx always tracks the latest sender,
// but peer_tx only adopts that host when it does not match the container's
// default gateway, retaining the configured port since some gateways send
// from a random source port.
func (t *Transport) adoptPeer(addr *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.peerRX = addr

	if t.defaultGW != nil && addr.IP.Equal(t.defaultGW) {
		t.logger.Debug("nat guard: ignoring apparent peer matching default gateway", "host", addr.IP.String())
		return
	}
	t.peerTX = &net.UDPAddr{IP: addr.IP, Port: t.configTXPort}
}

// PeerTX returns the current transmit peer.
func (t *Transport) PeerTX() *net.UDPAddr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peerTX
}

// PeerRX returns the last host:port a frame was received from, or nil if
// nothing has been received yet.
func (t *Transport) PeerRX() *net.UDPAddr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peerRX
}

// Send writes a telegram to the current transmit peer. Sends are
// best-effort: a successful write only means the datagram left the socket,
// not that the gateway or bus device received it.
func (t *Transport) Send(tg Telegram) error {
	if t.conn == nil {
		return ErrTransportNotReady
	}
	peer := t.PeerTX()
	if peer == nil {
		return ErrTransportNotReady
	}

	raw := Encode(tg)
	if t.debugFrames {
		t.logger.Debug("telegram sent", "opcode", fmt.Sprintf("0x%04x", tg.OpCode), "dest", tg.DestAddress, "peer", peer.String())
	}
	_, err := t.conn.WriteToUDP(raw, peer)
	if err != nil {
		return fmt.Errorf("writing udp datagram: %w", err)
	}
	return nil
}

// detectDefaultGateway reads the container's default IPv4 gateway from
// /proc/net/route. It returns nil (disabling the NAT guard) on any
// platform or parse failure rather than failing transport startup over a
// heuristic.
func detectDefaultGateway() net.IP {
	f, err := os.Open("/proc/net/route")
	if err != nil {
		return nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Scan() // header line
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		// Destination "00000000" marks the default route.
		if fields[1] != "00000000" {
			continue
		}
		gw, err := hex.DecodeString(fields[2])
		if err != nil || len(gw) != 4 {
			continue
		}
		// /proc/net/route stores the gateway in little-endian byte order.
		return net.IPv4(gw[3], gw[2], gw[1], gw[0])
	}
	return nil
}
