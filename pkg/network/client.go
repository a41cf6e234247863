package network

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/cipherchat/cipherchat/pkg/crypto"
	"github.com/cipherchat/cipherchat/pkg/protocol"
)

var (
	ErrNoResponse      = errors.New("no response from server")
	ErrRequestRejected = errors.New("request rejected")
)

// responseTimeout bounds the synchronous wait for a direct reply
const responseTimeout = 5 * time.Second

// Client mirrors the server's per-connection logic from the initiating
// side. One background receive loop classifies incoming envelopes: pushed
// new_message events go to an event channel, everything else feeds the
// ordered response queue consumed by the request/response API.
type Client struct {
	addr string

	mu        sync.Mutex
	conn      net.Conn
	connected bool

	cipher  *crypto.SessionCipher
	decoder protocol.FrameDecoder

	responses chan protocol.Envelope
	pushes    chan protocol.NewMessagePayload
	done      chan struct{}

	writeMu sync.Mutex

	token    string
	username string
}

// NewClient creates a client for the given server address
func NewClient(addr string) *Client {
	return &Client{addr: addr}
}

// Connect dials the server and runs the handshake. It blocks until the
// session key is confirmed; the connection is unusable before that.
func (c *Client) Connect() error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.cipher = crypto.NewSessionCipher()
	c.decoder = protocol.FrameDecoder{}
	c.responses = make(chan protocol.Envelope, 32)
	if c.pushes == nil {
		c.pushes = make(chan protocol.NewMessagePayload, 64)
	}
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := c.performHandshake(); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	go c.receiveLoop(conn, c.done)

	return nil
}

// Reconnect restarts the connection from scratch. The handshake is not
// resumable; a fresh session key is negotiated.
func (c *Client) Reconnect() error {
	c.Close()
	return c.Connect()
}

// Close tears the connection down
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.connected = false
		close(c.done)
		c.conn.Close()
		c.conn = nil
	}
}

// IsConnected reports connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Token returns the session token held since login
func (c *Client) Token() string {
	return c.token
}

// Pushes returns the channel of asynchronous chat events. Content arrives
// already decrypted.
func (c *Client) Pushes() <-chan protocol.NewMessagePayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushes == nil {
		c.pushes = make(chan protocol.NewMessagePayload, 64)
	}
	return c.pushes
}

// performHandshake runs the client side of key establishment: send our
// public key, receive the server's, then send a fresh symmetric key under
// OAEP and await confirmation.
func (c *Client) performHandshake() error {
	keypair, err := crypto.GenerateRSAKeyPair()
	if err != nil {
		return err
	}

	ourPubPEM, err := crypto.ExportPublicKeyPEM(&keypair.PublicKey)
	if err != nil {
		return err
	}

	hello, err := protocol.NewEnvelope(protocol.TypeKeyExchange, protocol.KeyExchangePayload{
		ClientPublicKey: string(ourPubPEM),
	})
	if err != nil {
		return err
	}
	if err := c.writeEnvelope(hello); err != nil {
		return err
	}

	reply, err := c.readEnvelope(handshakeTimeout)
	if err != nil {
		return err
	}
	if reply.Type != protocol.TypeKeyExchange {
		return ErrHandshakeFailed
	}

	var exchange protocol.KeyExchangePayload
	if err := reply.DecodeData(&exchange); err != nil {
		return err
	}

	serverPub, err := crypto.ImportPublicKeyPEM([]byte(exchange.ServerPublicKey))
	if err != nil {
		return ErrHandshakeFailed
	}

	sessionKey, err := crypto.GenerateSessionKey()
	if err != nil {
		return err
	}
	if err := c.cipher.SetKey(sessionKey); err != nil {
		return err
	}

	encrypted, err := crypto.RSAEncrypt(sessionKey, serverPub)
	if err != nil {
		return err
	}

	keyMsg, err := protocol.NewEnvelope(protocol.TypeSessionKey, protocol.SessionKeyPayload{
		EncryptedSessionKey: hex.EncodeToString(encrypted),
	})
	if err != nil {
		return err
	}
	if err := c.writeEnvelope(keyMsg); err != nil {
		return err
	}

	confirm, err := c.readEnvelope(handshakeTimeout)
	if err != nil {
		return err
	}
	if confirm.Type != protocol.TypeSessionConfirmed {
		return ErrHandshakeFailed
	}

	return nil
}

// readEnvelope reads one envelope synchronously. Only valid before the
// receive loop starts.
func (c *Client) readEnvelope(timeout time.Duration) (protocol.Envelope, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Envelope{}, err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return protocol.Envelope{}, err
		}

		frames := c.decoder.Feed(buf[:n])
		if len(frames) > 0 {
			// The server speaks strictly request/response until the
			// handshake completes, so one frame at a time
			return protocol.DecodeEnvelope(frames[0])
		}
	}
}

// receiveLoop classifies every decoded envelope: pushed chat events go out
// of band, direct replies preserve server-send order in the response queue.
func (c *Client) receiveLoop(conn net.Conn, done chan struct{}) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-done:
			default:
				if err != io.EOF {
					log.Printf("Receive loop error: %v", err)
				}
			}
			return
		}

		for _, frame := range c.decoder.Feed(buf[:n]) {
			env, err := protocol.DecodeEnvelope(frame)
			if err != nil {
				log.Printf("Dropping undecodable frame: %v", err)
				continue
			}

			if env.Type == protocol.TypeNewMessage {
				c.handlePush(env)
				continue
			}

			select {
			case c.responses <- env:
			case <-done:
				return
			}
		}
	}
}

func (c *Client) handlePush(env protocol.Envelope) {
	var payload protocol.NewMessagePayload
	if err := env.DecodeData(&payload); err != nil {
		log.Printf("Dropping malformed push: %v", err)
		return
	}

	content, err := c.cipher.DecryptFromHex(payload.Content)
	if err != nil {
		log.Printf("Dropping push with undecryptable content: %v", err)
		return
	}
	payload.Content = content

	select {
	case c.pushes <- payload:
	default:
		log.Printf("Push channel full, dropping message %d", payload.MessageID)
	}
}

// SendRequest frames and writes one request envelope
func (c *Client) SendRequest(requestType string, data interface{}) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	env, err := protocol.NewEnvelope(requestType, data)
	if err != nil {
		return err
	}
	return c.writeEnvelope(env)
}

// NextResponse pops the next direct reply, waiting up to timeout
func (c *Client) NextResponse(timeout time.Duration) (protocol.Envelope, error) {
	select {
	case env := <-c.responses:
		return env, nil
	case <-time.After(timeout):
		return protocol.Envelope{}, ErrNoResponse
	}
}

// call performs one synchronous request/response round trip
func (c *Client) call(requestType string, data interface{}, out interface{}) error {
	if err := c.SendRequest(requestType, data); err != nil {
		return err
	}

	env, err := c.NextResponse(responseTimeout)
	if err != nil {
		return err
	}

	switch env.Type {
	case protocol.ResponseType(requestType):
		return env.DecodeData(out)
	case protocol.TypeErrorResponse:
		var failure protocol.GenericResponse
		if err := env.DecodeData(&failure); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrRequestRejected, failure.Message)
	default:
		return fmt.Errorf("unexpected response type %q", env.Type)
	}
}

func (c *Client) writeEnvelope(env protocol.Envelope) error {
	frame, err := protocol.EncodeFrame(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_, err = c.conn.Write(frame)
	return err
}
