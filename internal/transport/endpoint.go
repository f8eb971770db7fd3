// Package transport owns the UDP socket and the request/response
// plumbing around the krpc codec: datagram size capping, decode dispatch,
// transaction-id issue and correlation, and query timeout/retry. The
// codec itself never touches the network.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AtDexters-Lab/nexus-dht/internal/config"
	"github.com/AtDexters-Lab/nexus-dht/internal/krpc"
)

const sendQueueSize = 256

// Handler answers inbound queries with an encoded reply. A nil reply
// with a nil error means the query is deliberately ignored.
type Handler interface {
	HandleQuery(from *net.UDPAddr, env *krpc.Envelope) ([]byte, error)
}

type datagram struct {
	to      *net.UDPAddr
	payload []byte
}

// Endpoint is the UDP front door of the node.
type Endpoint struct {
	cfg     *config.Config
	handler Handler

	conn *net.UDPConn
	send chan datagram
	done chan struct{}
	wg   sync.WaitGroup

	tidSeq  uint32
	mu      sync.Mutex
	pending map[string]chan *krpc.Envelope
}

// New creates an Endpoint. The handler is set separately to break the
// construction cycle with the node that answers queries.
func New(cfg *config.Config) *Endpoint {
	return &Endpoint{
		cfg:     cfg,
		send:    make(chan datagram, sendQueueSize),
		done:    make(chan struct{}),
		pending: make(map[string]chan *krpc.Envelope),
	}
}

// SetHandler sets the query handler. Must be called before Start.
func (e *Endpoint) SetHandler(h Handler) {
	e.handler = h
}

// Start binds the UDP socket and launches the read and write pumps.
func (e *Endpoint) Start() error {
	if e.handler == nil {
		return errors.New("transport: handler must be set before Start")
	}
	addr, err := net.ResolveUDPAddr("udp", e.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("transport: resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen: %w", err)
	}
	e.conn = conn
	log.Info().Str("component", "transport").Stringer("addr", conn.LocalAddr()).Msg("DHT endpoint listening")

	e.wg.Add(2)
	go e.readPump()
	go e.writePump()
	return nil
}

// Stop closes the socket and waits for the pumps to drain.
func (e *Endpoint) Stop() {
	close(e.done)
	if e.conn != nil {
		e.conn.Close()
	}
	e.wg.Wait()
}

// LocalAddr returns the bound address, or nil before Start.
func (e *Endpoint) LocalAddr() net.Addr {
	if e.conn == nil {
		return nil
	}
	return e.conn.LocalAddr()
}

// Send queues a datagram, dropping it when the queue is full. UDP gives
// no delivery guarantee anyway, so blocking the caller would buy nothing.
func (e *Endpoint) Send(to *net.UDPAddr, payload []byte) {
	select {
	case e.send <- datagram{to: to, payload: payload}:
	default:
		log.Warn().Str("component", "transport").Stringer("to", to).Msg("send queue full, dropping datagram")
	}
}

// Query sends a query built by build (which receives the issued
// transaction id) and waits for the matching response or error envelope,
// retrying per the configured attempt budget.
func (e *Endpoint) Query(ctx context.Context, to *net.UDPAddr, build func(tid string) ([]byte, error)) (*krpc.Envelope, error) {
	attempts := e.cfg.QueryRetries + 1
	timeout := e.cfg.QueryTimeout()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		tid := e.nextTransactionID()
		payload, err := build(tid)
		if err != nil {
			return nil, err
		}

		ch := make(chan *krpc.Envelope, 1)
		e.register(tid, ch)
		e.Send(to, payload)

		timer := time.NewTimer(timeout)
		select {
		case env := <-ch:
			timer.Stop()
			e.unregister(tid)
			return env, nil
		case <-timer.C:
			e.unregister(tid)
			lastErr = fmt.Errorf("transport: query to %s timed out after %s", to, timeout)
		case <-ctx.Done():
			timer.Stop()
			e.unregister(tid)
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w (%d attempts)", lastErr, attempts)
}

// nextTransactionID issues the conventional 2-byte transaction id from a
// wrapping counter. Two bytes are plenty for the number of queries that
// can be in flight at once.
func (e *Endpoint) nextTransactionID() string {
	n := atomic.AddUint32(&e.tidSeq, 1)
	return string([]byte{byte(n >> 8), byte(n)})
}

func (e *Endpoint) register(tid string, ch chan *krpc.Envelope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending[tid] = ch
}

func (e *Endpoint) unregister(tid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, tid)
}

func (e *Endpoint) deliver(env *krpc.Envelope) bool {
	e.mu.Lock()
	ch, ok := e.pending[env.TransactionID]
	if ok {
		delete(e.pending, env.TransactionID)
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	ch <- env
	return true
}

func (e *Endpoint) readPump() {
	defer e.wg.Done()

	maxBytes := e.cfg.MaxMessageBytes
	if maxBytes <= 0 {
		maxBytes = krpc.DefaultMaxMessageBytes
	}
	// One byte over the cap so oversized datagrams are detected as such
	// instead of being silently truncated by the read.
	buf := make([]byte, maxBytes+1)
	for {
		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-e.done:
				return
			default:
			}
			log.Error().Str("component", "transport").Err(err).Msg("read failed")
			return
		}
		raw := make([]byte, n)
		copy(raw, buf[:n])
		e.handlePacket(from, raw)
	}
}

func (e *Endpoint) handlePacket(from *net.UDPAddr, raw []byte) {
	env, err := krpc.DecodeEnvelope(raw, e.cfg.MaxMessageBytes)
	if err != nil {
		e.rejectPacket(from, raw, err)
		return
	}

	switch env.Type {
	case krpc.TypeQuery:
		reply, err := e.handler.HandleQuery(from, env)
		if err != nil {
			log.Warn().Str("component", "transport").Stringer("from", from).Err(err).Msg("query handler failed")
			return
		}
		if reply != nil {
			e.Send(from, reply)
		}
	case krpc.TypeResponse, krpc.TypeError:
		if !e.deliver(env) {
			log.Debug().Str("component", "transport").Stringer("from", from).Msg("response for unknown transaction, dropping")
		}
	}
}

// rejectPacket drops an undecodable datagram, answering with a KRPC
// error when a transaction id can be salvaged from it.
func (e *Endpoint) rejectPacket(from *net.UDPAddr, raw []byte, decodeErr error) {
	log.Debug().Str("component", "transport").Stringer("from", from).Err(decodeErr).Msg("dropping malformed datagram")

	tid, ok := krpc.TransactionIDHint(raw)
	if !ok {
		return
	}
	code := int64(krpc.ErrorCodeProtocol)
	message := "Protocol Error"
	if errors.Is(decodeErr, krpc.ErrUnknownMethod) {
		code = krpc.ErrorCodeMethodUnknown
		message = "Method Unknown"
	}
	reply, err := krpc.EncodeError(tid, code, message)
	if err != nil {
		return
	}
	e.Send(from, reply)
}

func (e *Endpoint) writePump() {
	defer e.wg.Done()
	for {
		select {
		case d := <-e.send:
			if _, err := e.conn.WriteToUDP(d.payload, d.to); err != nil {
				log.Warn().Str("component", "transport").Stringer("to", d.to).Err(err).Msg("write failed")
			}
		case <-e.done:
			return
		}
	}
}
