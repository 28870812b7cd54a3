// Package syslog implements the RFC 3164 UDP listener.
package syslog

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/queue"
	"github.com/marmos91/muttd/internal/severity"
)

// Default fallback values used when the RFC 3164 header fails to parse.
// Parsing never drops a datagram: an unparseable one still produces a
// Message carrying the raw text as payload.
const (
	defaultPriority = 13
	defaultFacility = 1
	defaultHostname = "unknown"
	defaultProcess  = "unknown"
)

var defaultSeverity = severity.Info

// headerPattern matches "<PRI>MMM[ ]D HH:MM:SS HOSTNAME TAG: PAYLOAD".
// (?s) lets PAYLOAD absorb embedded newlines.
var headerPattern = regexp.MustCompile(`(?s)^<(\d+)>\w{3}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}\s+(\S+)\s+([^:]+):\s*(.*)$`)

// tagPattern splits a TAG field into a process name and optional PID,
// e.g. "sshd[1234]" -> ("sshd", 1234).
var tagPattern = regexp.MustCompile(`^(\S+?)(?:\[(\d+)\])?$`)

// Listener binds a UDP socket and decodes each datagram into a Message.
type Listener struct {
	conn         *net.UDPConn
	queue        *queue.Queue
	logger       *slog.Logger
	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New binds a UDP socket on host:port. Binding failure is a startup fatal
// error per the transport-failure policy.
func New(host string, port int, q *queue.Queue, logger *slog.Logger) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return nil, fmt.Errorf("syslog: resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("syslog: listen %s:%d: %w", host, port, err)
	}
	return &Listener{conn: conn, queue: q, logger: logger, shutdown: make(chan struct{})}, nil
}

// Serve reads datagrams until ctx is cancelled or Stop is called.
func (l *Listener) Serve(ctx context.Context) {
	l.wg.Add(1)
	defer l.wg.Done()

	go func() {
		select {
		case <-ctx.Done():
			l.Stop()
		case <-l.shutdown:
		}
	}()

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.shutdown:
				return
			default:
				l.logger.Warn("syslog: read error", "error", err)
				continue
			}
		}

		msg := Parse(addr.IP.String(), buf[:n])
		if !l.queue.TryEnqueue(msg) {
			l.logger.Warn("syslog: queue full, dropping datagram", "dropped", l.queue.Dropped())
		}
	}
}

// Stop closes the UDP socket, unblocking Serve.
func (l *Listener) Stop() {
	l.shutdownOnce.Do(func() {
		close(l.shutdown)
		_ = l.conn.Close()
	})
	l.wg.Wait()
}

// Parse decodes a UTF-8-with-replacement, trailing-whitespace-stripped
// datagram into a Message, falling back to defaults on header parse
// failure rather than dropping the datagram.
func Parse(sourceIP string, raw []byte) message.Message {
	text := strings.TrimRight(strings.ToValidUTF8(string(raw), "�"), " \t\r\n")

	groups := headerPattern.FindStringSubmatch(text)
	if groups == nil {
		msg := message.New(sourceIP, message.TypeSyslog, defaultSeverity, text)
		msg.Syslog = &message.SyslogExt{
			Facility:    defaultFacility,
			Priority:    defaultPriority,
			Hostname:    defaultHostname,
			ProcessName: defaultProcess,
		}
		return msg
	}

	pri, err := strconv.Atoi(groups[1])
	if err != nil {
		pri = defaultPriority
	}
	facility := pri / 8
	sev := severity.FromSyslogNumber(pri % 8)
	hostname := groups[2]
	tag := strings.TrimSpace(groups[3])
	payload := groups[4]

	processName, processID := parseTag(tag)

	msg := message.New(sourceIP, message.TypeSyslog, sev, payload)
	msg.Syslog = &message.SyslogExt{
		Facility:    facility,
		Priority:    pri,
		Hostname:    hostname,
		ProcessName: processName,
		ProcessID:   processID,
	}
	return msg
}

func parseTag(tag string) (name string, pid *int) {
	m := tagPattern.FindStringSubmatch(tag)
	if m == nil {
		return tag, nil
	}
	name = m[1]
	if m[2] != "" {
		if n, err := strconv.Atoi(m[2]); err == nil {
			pid = &n
		}
	}
	return name, pid
}
