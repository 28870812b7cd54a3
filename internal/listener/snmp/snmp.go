// Package snmp implements the v1/v2c/v3 trap listener. PDU decoding and
// USM authentication/privacy are delegated to gosnmp; this package only
// wires credentials, builds Messages from decoded variable bindings, and
// tracks authentication failures.
package snmp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/gosnmp/gosnmp"

	"github.com/marmos91/muttd/internal/credential"
	"github.com/marmos91/muttd/internal/message"
	"github.com/marmos91/muttd/internal/queue"
	"github.com/marmos91/muttd/internal/severity"
)

// trapOID is the well-known OID carrying the trap identity in a v2c/v3
// PDU's variable bindings.
const trapOID = "1.3.6.1.6.3.1.1.4.1"

var authProtocols = map[credential.AuthType]gosnmp.SnmpV3AuthProtocol{
	credential.AuthMD5:    gosnmp.MD5,
	credential.AuthSHA:    gosnmp.SHA,
	credential.AuthSHA224: gosnmp.SHA224,
	credential.AuthSHA256: gosnmp.SHA256,
	credential.AuthSHA384: gosnmp.SHA384,
	credential.AuthSHA512: gosnmp.SHA512,
	credential.AuthNone:   gosnmp.NoAuth,
}

var privProtocols = map[credential.PrivType]gosnmp.SnmpV3PrivProtocol{
	credential.PrivDES:    gosnmp.DES,
	credential.Priv3DES:   gosnmp.DES, // gosnmp has no distinct 3DES constant; DES is the closest USM mapping
	credential.PrivAES:    gosnmp.AES,
	credential.PrivAES128: gosnmp.AES,
	credential.PrivAES192: gosnmp.AES192,
	credential.PrivAES256: gosnmp.AES256,
	credential.PrivNone:   gosnmp.NoPriv,
}

// authFailureTracker is the subset of *store.Store the listener needs.
// gosnmp's TrapListener exposes no authentication-failure callback (see
// the Open Question in DESIGN.md), so only the clear-on-success path is
// reachable here; RecordAuthFailure lives on *store.Store for callers
// that do have a failure signal to report.
type authFailureTracker interface {
	ClearAuthFailure(ctx context.Context, username string) error
}

// Listener binds a UDP socket and decodes v1/v2c/v3 traps via gosnmp's
// TrapListener.
type Listener struct {
	tl       *gosnmp.TrapListener
	queue    *queue.Queue
	tracker  authFailureTracker
	logger   *slog.Logger
	username string // the currently registered v3 user, if any
	creds    credential.Set
	addr     string
	errCh    chan error

	stopOnce sync.Once
}

// Option customizes Listener construction.
type Option func(*Listener)

// WithV3Credentials registers username's highest-priority active
// credential into the USM security parameters. If rotation is later
// required, call Rotate.
func WithV3Credentials(username string, creds credential.Set) Option {
	return func(l *Listener) {
		l.username = username
		l.creds = creds
	}
}

// New prepares a listener for host:port with the given v1/v2c communities
// and any SNMPv3 credential option; the socket is bound later, by Serve.
// Only the first community (or "public" when none is given) is installed
// in the listener's parameters; further communities are not used.
func New(host string, port int, communities []string, q *queue.Queue, tracker authFailureTracker, logger *slog.Logger, opts ...Option) (*Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Listener{queue: q, tracker: tracker, logger: logger}
	for _, opt := range opts {
		opt(l)
	}

	tl := gosnmp.NewTrapListener()
	tl.OnNewTrap = l.handleTrap
	tl.Params = gosnmp.Default
	tl.Params.Version = gosnmp.Version2c
	tl.Params.Community = communityList(communities)[0]

	if l.username != "" {
		if err := l.registerV3(tl, l.creds); err != nil {
			return nil, err
		}
	}

	l.tl = tl
	l.addr = fmt.Sprintf("%s:%d", host, port)
	return l, nil
}

// registerV3 installs the highest-priority active credential for the
// configured user into tl's USM security parameters.
func (l *Listener) registerV3(tl *gosnmp.TrapListener, creds credential.Set) error {
	preferred, ok := creds.Preferred()
	if !ok {
		return fmt.Errorf("snmp: no active v3 credential for user %q", l.username)
	}
	tl.Params.Version = gosnmp.Version3
	tl.Params.SecurityModel = gosnmp.UserSecurityModel
	tl.Params.MsgFlags = securityLevel(preferred)
	tl.Params.SecurityParameters = &gosnmp.UsmSecurityParameters{
		UserName:                 l.username,
		AuthenticationProtocol:   authProtocols[preferred.AuthType],
		AuthenticationPassphrase: preferred.AuthPassword,
		PrivacyProtocol:          privProtocols[preferred.PrivType],
		PrivacyPassphrase:        preferred.PrivPassword,
	}
	return nil
}

// Rotate re-registers the next-priority active credential after current,
// for use from an auth-failure hook if the library exposes one.
func (l *Listener) Rotate(current credential.Credential) error {
	next, ok := l.creds.Next(current)
	if !ok {
		return fmt.Errorf("snmp: no further credential to rotate to for user %q", l.username)
	}
	tl := l.tl
	tl.Params.SecurityParameters = &gosnmp.UsmSecurityParameters{
		UserName:                 l.username,
		AuthenticationProtocol:   authProtocols[next.AuthType],
		AuthenticationPassphrase: next.AuthPassword,
		PrivacyProtocol:          privProtocols[next.PrivType],
		PrivacyPassphrase:        next.PrivPassword,
	}
	tl.Params.MsgFlags = securityLevel(next)
	return nil
}

func securityLevel(c credential.Credential) gosnmp.SnmpV3MsgFlags {
	switch {
	case c.AuthType != credential.AuthNone && c.PrivType != credential.PrivNone:
		return gosnmp.AuthPriv
	case c.AuthType != credential.AuthNone:
		return gosnmp.AuthNoPriv
	default:
		return gosnmp.NoAuthNoPriv
	}
}

// Serve starts listening until ctx is cancelled or Stop is called.
func (l *Listener) Serve(ctx context.Context) error {
	l.errCh = make(chan error, 1)
	go func() { l.errCh <- l.tl.Listen(l.addr) }()

	go func() {
		<-ctx.Done()
		l.Stop()
	}()

	select {
	case <-l.tl.Listening():
		return nil
	case err := <-l.errCh:
		return fmt.Errorf("snmp: listen %s: %w", l.addr, err)
	}
}

// Stop closes the trap listener, unblocking Serve's background Listen call.
func (l *Listener) Stop() {
	l.stopOnce.Do(l.tl.Close)
}

// handleTrap is invoked by gosnmp once a packet has passed USM security
// processing; invocation itself implies authentication success.
func (l *Listener) handleTrap(packet *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	ctx := context.Background()

	if l.username != "" && l.tracker != nil {
		if err := l.tracker.ClearAuthFailure(ctx, l.username); err != nil {
			l.logger.Warn("snmp: clear auth failure", "user", l.username, "error", err)
		}
	}

	msg := buildMessage(addr.IP.String(), packet)
	if !l.queue.TryEnqueue(msg) {
		l.logger.Warn("snmp: queue full, dropping trap", "dropped", l.queue.Dropped())
	}
}

// buildMessage constructs a Message from a decoded trap packet: iterates
// variable bindings into the varbinds map and scans for the trap OID. A
// v1 trap's varbinds don't always carry a snmpTrapOID binding, so the
// payload falls back to a formatted summary rather than going empty
// (an empty payload fails validation and the trap would be dropped).
func buildMessage(sourceIP string, packet *gosnmp.SnmpPacket) message.Message {
	varbinds := map[string]string{}
	oid := ""

	for _, v := range packet.Variables {
		name := strings.TrimPrefix(v.Name, ".")
		value := fmt.Sprintf("%v", v.Value)
		varbinds[name] = value

		if strings.Contains(name, "snmpTrapOID") || name == trapOID || name == trapOID+".0" {
			oid = value
		}
	}

	version := inferVersion(packet.Version)
	payload := oid
	if payload == "" {
		payload = fmt.Sprintf("snmp %s trap from %s (%d varbinds)", version, sourceIP, len(varbinds))
	}

	msg := message.New(sourceIP, message.TypeSNMPTrap, severity.Info, payload)
	msg.SNMPTrap = &message.SNMPTrapExt{
		OID:      oid,
		Varbinds: varbinds,
		Version:  version,
	}
	return msg
}

func inferVersion(v gosnmp.SnmpVersion) string {
	switch v {
	case gosnmp.Version1:
		return "v1"
	case gosnmp.Version3:
		return "v3"
	default:
		return "v2c"
	}
}

// communityList normalizes a possibly empty community slice to the
// documented default.
func communityList(cs []string) []string {
	if len(cs) == 0 {
		return []string{"public"}
	}
	return cs
}
