package network

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/cipherchat/cipherchat/pkg/crypto"
	"github.com/cipherchat/cipherchat/pkg/protocol"
)

// HandshakeState tracks per-connection key establishment. Transitions are
// forward-only; any violation closes the connection.
type HandshakeState int

const (
	AwaitingPublicKey HandshakeState = iota
	AwaitingSessionKey
	Established
)

// handshakeTimeout bounds how long a connection may sit mid-handshake
const handshakeTimeout = 30 * time.Second

// readBufferSize is the transport read chunk size
const readBufferSize = 4096

// floodRate bounds raw frame throughput per connection, independent of the
// per-identity request limiter
var floodRate = rate.Limit(100)

const floodBurst = 200

// Conn is the server side of one client connection, exclusively owned by
// its worker goroutine. Shared registries reference it by ID rather than
// holding the transport handle.
type Conn struct {
	ID   string
	conn net.Conn
	srv  *Server

	state    HandshakeState
	cipher   *crypto.SessionCipher
	decoder  protocol.FrameDecoder
	flood    *rate.Limiter
	writeMu  sync.Mutex
	lastSeen time.Time

	// Bound identity, zero until a token validates
	userID   int64
	username string
	token    string

	closing bool
}

// handleConnection runs the worker loop for one accepted connection
func (s *Server) handleConnection(netConn net.Conn) {
	c := &Conn{
		ID:       uuid.NewString(),
		conn:     netConn,
		srv:      s,
		state:    AwaitingPublicKey,
		cipher:   crypto.NewSessionCipher(),
		flood:    rate.NewLimiter(floodRate, floodBurst),
		lastSeen: time.Now(),
	}

	log.Printf("New connection from %s", netConn.RemoteAddr())

	defer func() {
		s.registry.Unbind(c)
		netConn.Close()
		log.Printf("Connection %s closed", netConn.RemoteAddr())
	}()

	// A stalled handshake may not occupy the worker forever
	if err := netConn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		n, err := netConn.Read(buf)
		if err != nil {
			if err != io.EOF {
				log.Printf("Read error from %s: %v", netConn.RemoteAddr(), err)
			}
			return
		}

		for _, frame := range c.decoder.Feed(buf[:n]) {
			if !c.flood.Allow() {
				log.Printf("Dropping frame from %s: connection flood limit", netConn.RemoteAddr())
				continue
			}

			if c.state != Established {
				if err := c.handleHandshakeFrame(frame); err != nil {
					log.Printf("Handshake aborted for %s: %v", netConn.RemoteAddr(), err)
					return
				}
				continue
			}

			if err := c.handleRequestFrame(frame); err != nil {
				log.Printf("Request error from %s: %v", netConn.RemoteAddr(), err)
				return
			}

			if c.closing {
				return
			}
		}

		c.lastSeen = time.Now()
	}
}

// handleHandshakeFrame advances the handshake state machine. Any returned
// error is fatal to the connection.
func (c *Conn) handleHandshakeFrame(frame []byte) error {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		return err
	}

	switch c.state {
	case AwaitingPublicKey:
		if env.Type != protocol.TypeKeyExchange {
			return ErrHandshakeFailed
		}

		// The client's public key is informational only; the session
		// key travels under ours
		var payload protocol.KeyExchangePayload
		if err := env.DecodeData(&payload); err != nil {
			return err
		}
		if payload.ClientPublicKey != "" {
			if _, err := crypto.ImportPublicKeyPEM([]byte(payload.ClientPublicKey)); err != nil {
				return ErrHandshakeFailed
			}
		}

		reply, err := protocol.NewEnvelope(protocol.TypeKeyExchange, protocol.KeyExchangePayload{
			ServerPublicKey: string(c.srv.publicKeyPEM),
		})
		if err != nil {
			return err
		}
		if err := c.WriteEnvelope(reply); err != nil {
			return err
		}

		c.state = AwaitingSessionKey
		return c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	case AwaitingSessionKey:
		if env.Type != protocol.TypeSessionKey {
			return ErrHandshakeFailed
		}

		var payload protocol.SessionKeyPayload
		if err := env.DecodeData(&payload); err != nil {
			return err
		}

		key, err := decryptSessionKey(payload.EncryptedSessionKey, c.srv.privateKey)
		if err != nil {
			return err
		}
		if err := c.cipher.SetKey(key); err != nil {
			return err
		}

		reply, err := protocol.NewEnvelope(protocol.TypeSessionConfirmed, struct{}{})
		if err != nil {
			return err
		}
		if err := c.WriteEnvelope(reply); err != nil {
			return err
		}

		c.state = Established
		log.Printf("Handshake established with %s", c.conn.RemoteAddr())

		// Application traffic has no read deadline
		return c.conn.SetReadDeadline(time.Time{})

	default:
		return ErrHandshakeFailed
	}
}

// handleRequestFrame decodes one application envelope, dispatches it and
// writes the response. Handler failures become error responses; only
// transport and framing failures are fatal.
func (c *Conn) handleRequestFrame(frame []byte) error {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		return err
	}

	// Message content is the only field that travels symmetrically
	// encrypted; decrypt it before dispatch
	if env.Type == protocol.TypeSendMessage {
		if env, err = c.decryptMessageContent(env); err != nil {
			resp := errorEnvelope("Could not decrypt message content")
			return c.WriteEnvelope(resp)
		}
	}

	resp := c.srv.dispatcher.Dispatch(c, env)
	return c.WriteEnvelope(resp)
}

// decryptMessageContent rewrites a send_message envelope with its content
// field decrypted via the session cipher
func (c *Conn) decryptMessageContent(env protocol.Envelope) (protocol.Envelope, error) {
	var req protocol.SendMessageRequest
	if err := env.DecodeData(&req); err != nil {
		return env, err
	}

	content, err := c.cipher.DecryptFromHex(req.Content)
	if err != nil {
		return env, err
	}
	req.Content = content

	raw, err := json.Marshal(req)
	if err != nil {
		return env, err
	}
	env.Data = raw

	return env, nil
}

// WriteEnvelope frames and writes an envelope. Safe for concurrent use:
// the worker writes responses while the broadcaster writes pushes.
func (c *Conn) WriteEnvelope(env protocol.Envelope) error {
	frame, err := protocol.EncodeFrame(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err = c.conn.Write(frame)
	return err
}
