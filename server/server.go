// Package server implements the multi-peer BGP speaker built on top of
// package session: a peer table resolved by longest-prefix-match, a
// shared Loc-RIB, collision-resolved session registration, and the
// accept/connect/session-run loop of spec.md §4.5 and §5.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fritz0705/bgpkit/bgp"
	"github.com/fritz0705/bgpkit/internal/metrics"
	"github.com/fritz0705/bgpkit/internal/netutil"
	"github.com/fritz0705/bgpkit/rib"
	"github.com/fritz0705/bgpkit/session"
	"github.com/fritz0705/bgpkit/wire"
)

// collisionCeaseNotification is the CEASE NOTIFICATION sent to whichever
// side of a connection collision loses, spec.md §4.4/§6.8.
func collisionCeaseNotification() *wire.NotificationMessage {
	return (&session.CollisionError{}).Notification()
}

// Server holds every peer template, the registry of live sessions keyed
// by peer identity, and the Loc-RIB they all feed. Its exported fields
// are safe to read after construction but must not be mutated
// concurrently with Serve/DialAll running.
type Server struct {
	Logger *zap.Logger

	// Filter admits announced routes into LocRIB. A nil Filter admits
	// everything.
	Filter rib.Filter

	LocRIB *rib.RIB[rib.RouteSet]

	peers *netutil.PeerTable

	mu       sync.Mutex
	sessions map[bgp.Identifier]*registeredSession
}

// registeredSession pairs a live session with the connection carrying
// it, so a session that loses collision resolution after another has
// already been registered can be torn down from the goroutine that
// detected the collision rather than merely unlinked from the map.
type registeredSession struct {
	sess *session.Session
	conn net.Conn
}

// New constructs an empty Server. logger may be nil, in which case a
// no-op logger is used.
func New(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Logger:   logger,
		LocRIB:   rib.New[rib.RouteSet](),
		peers:    netutil.NewPeerTable(),
		sessions: map[bgp.Identifier]*registeredSession{},
	}
}

// AddPeer registers tmpl under its Network, and registers its protocols
// on the shared Loc-RIB so UPDATEs for them can be admitted.
func (srv *Server) AddPeer(tmpl *PeerTemplate) {
	srv.peers.Insert(tmpl.Network, tmpl)
	srv.LocRIB.RegisterProtos(tmpl.Protocols)
}

func (srv *Server) lookupPeer(addr net.IP) (*PeerTemplate, bool) {
	v, ok := srv.peers.Lookup(addr)
	if !ok {
		return nil, false
	}
	return v.(*PeerTemplate), true
}

func (srv *Server) filter() rib.Filter {
	if srv.Filter != nil {
		return srv.Filter
	}
	return rib.AcceptAll
}

// newSession builds a session.Session for tmpl, wired to this server's
// shared Loc-RIB and hook instrumentation.
func (srv *Server) newSession(tmpl *PeerTemplate, conn net.Conn, initiator bool) *session.Session {
	peerLabel := conn.RemoteAddr().String()
	w := bufio.NewWriter(conn)
	send := func(m wire.Message) error {
		raw := wire.Encode(m)
		if _, err := w.Write(raw); err != nil {
			return err
		}
		metrics.MessagesTotal.WithLabelValues(peerLabel, "out", m.Type().String()).Inc()
		return w.Flush()
	}

	return session.New(session.Config{
		LocalRouterID:  tmpl.LocalRouterID,
		LocalASN:       tmpl.LocalASN,
		AdvertiseASN4:  tmpl.AdvertiseASN4,
		HoldTime:       tmpl.HoldTime,
		LocalProtocols: tmpl.Protocols,
		AddPath:        tmpl.AddPath,
		Initiator:      initiator,
		FilterIn:       srv.filter(),
		LocRIB:         srv.LocRIB,
		Send:           send,
		Hooks: session.Hooks{
			OnEstablished: func(s *session.Session) {
				metrics.SessionState.WithLabelValues(peerLabel).Set(float64(session.StateEstablished))
				srv.Logger.Info("session established", zap.String("peer", peerLabel))
			},
			OnShutdown: func(s *session.Session) {
				metrics.SessionFlapsTotal.WithLabelValues(peerLabel).Inc()
				metrics.SessionState.WithLabelValues(peerLabel).Set(float64(session.StateIdle))
				srv.Logger.Info("session shut down", zap.String("peer", peerLabel))
			},
			OnNotification: func(s *session.Session, msg *wire.NotificationMessage) {
				metrics.NotificationsTotal.WithLabelValues(peerLabel, "in", fmt.Sprint(msg.ErrorCode)).Inc()
			},
			OnUpdate: func(s *session.Session, events []rib.RouteEvent) {
				srv.reportRIBGauges(s, peerLabel)
			},
		},
	})
}

// reportRIBGauges recomputes the per-protocol route counts the server
// exposes as bgpd_adj_rib_in_routes and bgpd_loc_rib_routes after an
// UPDATE has been applied to s's Adj-RIB-In and the shared Loc-RIB.
func (srv *Server) reportRIBGauges(s *session.Session, peerLabel string) {
	for proto, n := range protoCounts(s.AdjRIBIn) {
		metrics.AdjRIBInRoutes.WithLabelValues(peerLabel, fmt.Sprint(proto.AFI), fmt.Sprint(proto.SAFI)).Set(float64(n))
	}
	for proto, n := range protoCounts(srv.LocRIB) {
		metrics.LocRIBRoutes.WithLabelValues(fmt.Sprint(proto.AFI), fmt.Sprint(proto.SAFI)).Set(float64(n))
	}
}

// protoCounts tallies r's entries by (AFI,SAFI).
func protoCounts[T any](r *rib.RIB[T]) map[bgp.Proto]int {
	counts := map[bgp.Proto]int{}
	for _, e := range r.All() {
		counts[e.Proto]++
	}
	return counts
}

// Serve accepts inbound connections on ln until ctx is cancelled,
// resolving each against the peer table and running a session for it.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go srv.acceptConn(ctx, conn)
	}
}

func (srv *Server) acceptConn(ctx context.Context, conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return
	}
	addr := net.ParseIP(host)
	tmpl, ok := srv.lookupPeer(addr)
	if !ok {
		srv.Logger.Debug("rejecting connection from unconfigured peer", zap.String("addr", host))
		conn.Close()
		return
	}

	s := srv.newSession(tmpl, conn, false)
	if err := s.Accepted(); err != nil {
		conn.Close()
		return
	}
	srv.runSession(ctx, conn, s)
}

// DialAll starts one background goroutine per non-passive peer
// template that repeatedly dials out and runs the session, waiting the
// connect-retry interval after every failed dial and every ended
// session, until ctx is cancelled.
func (srv *Server) DialAll(ctx context.Context, tmpls []*PeerTemplate) {
	for _, tmpl := range tmpls {
		if tmpl.Passive {
			continue
		}
		go srv.dialLoop(ctx, tmpl)
	}
}

func (srv *Server) dialLoop(ctx context.Context, tmpl *PeerTemplate) {
	addr := net.JoinHostPort(tmpl.Network.IP.String(), "179")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			srv.Logger.Debug("dial failed", zap.String("peer", addr), zap.Error(err))
			time.Sleep(session.DefaultConnectRetryTime)
			continue
		}

		s := srv.newSession(tmpl, conn, true)
		if err := s.Connected(); err != nil {
			conn.Close()
		} else {
			srv.runSession(ctx, conn, s)
		}
		time.Sleep(session.DefaultConnectRetryTime)
	}
}

// runSession drives the read side of an already-OPEN_SENT session:
// await the peer's OPEN, resolve any collision, register the session,
// then relay every subsequent decoded message to s.HandleMessage until
// the connection closes.
func (srv *Server) runSession(ctx context.Context, conn net.Conn, s *session.Session) {
	defer conn.Close()
	peerLabel := conn.RemoteAddr().String()
	r := bufio.NewReader(conn)

	msg, err := readMessage(r, s.Decoder)
	if err != nil {
		srv.Logger.Debug("failed reading peer OPEN", zap.String("peer", peerLabel), zap.Error(err))
		return
	}
	if err := s.HandleMessage(msg); err != nil {
		srv.Logger.Debug("rejecting peer OPEN", zap.String("peer", peerLabel), zap.Error(err))
		return
	}
	if open, ok := msg.(*wire.OpenMessage); ok {
		metrics.MessagesTotal.WithLabelValues(peerLabel, "in", open.Type().String()).Inc()
	}

	if loser := srv.registerSession(s, conn); loser == s {
		srv.Logger.Info("lost connection collision", zap.String("peer", peerLabel))
		s.SendNotification(collisionCeaseNotification())
		return
	}
	defer srv.unregisterSession(s)

	for {
		msg, err := readMessage(r, s.Decoder)
		if err != nil {
			return
		}
		metrics.MessagesTotal.WithLabelValues(peerLabel, "in", msg.Type().String()).Inc()
		if err := s.HandleMessage(msg); err != nil {
			if pe, ok := err.(*session.ProtocolError); ok {
				s.SendNotification(pe.Notification())
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// registerSession implements spec.md §4.5's collision-resolved session
// registry: with no registered session for the same peer router-id, s is
// registered and nil is returned. Otherwise CollisionLoser decides; if s
// loses, or neither session has reached OPEN_CONFIRM yet, s is returned
// without being registered. When the existing, already-registered
// incumbent loses instead, s replaces it and it is actively evicted: a
// CEASE NOTIFICATION is sent on its connection and the connection is
// closed, which unblocks its own runSession goroutine's read loop so
// that its own deferred unregisterSession tears it down exactly once.
func (srv *Server) registerSession(s *session.Session, conn net.Conn) *session.Session {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	existing, ok := srv.sessions[s.PeerRouterID]
	if !ok {
		srv.sessions[s.PeerRouterID] = &registeredSession{sess: s, conn: conn}
		return nil
	}
	metrics.CollisionsTotal.WithLabelValues(s.PeerRouterID.String()).Inc()
	loser := session.CollisionLoser(existing.sess, s)
	if loser == nil {
		// Neither side has reached OPEN_CONFIRM yet; keep the incumbent.
		return s
	}
	if loser == existing.sess {
		srv.sessions[s.PeerRouterID] = &registeredSession{sess: s, conn: conn}
		existing.sess.SendNotification(collisionCeaseNotification())
		existing.conn.Close()
		return loser
	}
	return loser
}

func (srv *Server) unregisterSession(s *session.Session) {
	s.Shutdown()
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if entry, ok := srv.sessions[s.PeerRouterID]; ok && entry.sess == s {
		delete(srv.sessions, s.PeerRouterID)
	}
}

// readMessage blocks until r holds one complete PDU, then decodes it
// against d.
func readMessage(r *bufio.Reader, d *wire.Decoder) (wire.Message, error) {
	header, err := r.Peek(bgp.HeaderLength)
	if err != nil {
		return nil, err
	}
	length := wire.MessageLength(header)
	raw := make([]byte, length)
	if _, err := readFull(r, raw); err != nil {
		return nil, err
	}
	return d.Decode(raw)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
