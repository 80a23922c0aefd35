package transport

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// ContentKind classifies an inbound payload's content type for
// initial-message detection (SPEC_FULL.md §4.6 "Initial-message detection
// (server mode)").
type ContentKind int

const (
	ContentUnknown ContentKind = iota
	ContentSyncML
	ContentSAN
)

// sniffContentType classifies ct. WBXML payloads are recognized but not
// peeked into below (extractLocURI), since decoding WBXML requires the
// binary SyncML codec this daemon treats as an external protocol engine.
func sniffContentType(ct string) ContentKind {
	switch ct {
	case "application/vnd.syncml+xml", "application/vnd.syncml+wbxml":
		return ContentSyncML
	case "application/vnd.syncml.notification":
		return ContentSAN
	default:
		return ContentUnknown
	}
}

var (
	locURIOpen  = []byte("<LocURI>")
	locURIClose = []byte("</LocURI>")
	sourceOpen  = []byte("<Source>")
)

// extractLocURI peeks an XML SyncML message for the SyncHdr Source LocURI,
// the remote peer's self-reported device id (SPEC_FULL.md §4.6
// "Initial-message detection"). It is best-effort string scanning, not a
// real XML parser: good enough to read a well-formed SyncHdr without
// depending on the out-of-scope wire codec. WBXML bodies are never
// recognized here; callers get ok=false and fall back to no kill-by-device
// behavior for that message.
func extractLocURI(body []byte, contentType string) (deviceID string, ok bool) {
	if sniffContentType(contentType) != ContentSyncML {
		return "", false
	}
	rest := body
	if i := bytes.Index(rest, sourceOpen); i >= 0 {
		rest = rest[i+len(sourceOpen):]
	}
	start := bytes.Index(rest, locURIOpen)
	if start < 0 {
		return "", false
	}
	rest = rest[start+len(locURIOpen):]
	end := bytes.Index(rest, locURIClose)
	if end < 0 {
		return "", false
	}
	uri := bytes.TrimSpace(rest[:end])
	if len(uri) == 0 {
		return "", false
	}
	return string(uri), true
}

// DeviceIDKiller cancels every other queued/active session for a peer
// device id, so only the latest connection from that device survives
// (SPEC_FULL.md §4.5 "Kill-by-device-id"). scheduler.Scheduler's
// KillByDeviceID takes more arguments and does not satisfy this interface
// directly.
type DeviceIDKiller interface {
	KillByDeviceID(deviceID string)
}

// ConnState is a server-mode Connection's lifecycle stage
// (SPEC_FULL.md §4.6 "IPC-relay binding"):
// SETUP -> PROCESSING -> WAITING -> (PROCESSING|FINAL) -> DONE|FAILED.
type ConnState int

const (
	ConnSetup ConnState = iota
	ConnProcessing
	ConnWaiting
	ConnFinal
	ConnDone
	ConnFailed
)

func (c ConnState) String() string {
	switch c {
	case ConnProcessing:
		return "PROCESSING"
	case ConnWaiting:
		return "WAITING"
	case ConnFinal:
		return "FINAL"
	case ConnDone:
		return "DONE"
	case ConnFailed:
		return "FAILED"
	default:
		return "SETUP"
	}
}

// ReplySink delivers an outbound message as an IPC "Reply" signal to the
// peer that owns this Connection, e.g. forwarded over the event bus / A6
// wire binding.
type ReplySink interface {
	Reply(connectionID string, body []byte, contentType string, final bool) error
}

// Connection is the IPC-relay binding: Send becomes a Reply IPC signal,
// and the next inbound Process call unblocks Wait
// (SPEC_FULL.md §4.6 "IPC-relay binding").
type Connection struct {
	mu sync.Mutex

	id          string
	state       ConnState
	failReason  string
	sink        ReplySink
	contentType string

	killer       DeviceIDKiller
	sawFirst     bool
	peerDeviceID string

	incoming  chan incomingMessage
	lastReply incomingMessage
}

type incomingMessage struct {
	body        []byte
	contentType string
	final       bool
}

// NewConnection returns a Connection in state SETUP, delivering replies
// through sink.
func NewConnection(id string, sink ReplySink) *Connection {
	return &Connection{id: id, state: ConnSetup, sink: sink, incoming: make(chan incomingMessage, 1)}
}

func (c *Connection) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetDeviceKiller installs the kill-by-device-id callback, invoked once
// against the first inbound message's extracted device id
// (SPEC_FULL.md §4.6 "Initial-message detection").
func (c *Connection) SetDeviceKiller(k DeviceIDKiller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.killer = k
}

// PeerDeviceID returns the device id extracted from the first inbound
// SyncML message, or "" if none was found yet or the payload was WBXML.
func (c *Connection) PeerDeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerDeviceID
}

func (c *Connection) SetURL(string)                { /* the IPC binding has no URL; the peer owns routing */ }
func (c *Connection) SetContentType(ct string)      { c.contentType = ct }
func (c *Connection) SetTimeout(int)                { /* bounded by the Process call's own deadline instead */ }

// Send delivers body as a non-final Reply IPC signal and moves to WAITING.
// The final reply, which moves to FINAL, is sent by Finish instead.
func (c *Connection) Send(ctx context.Context, body []byte) error {
	c.mu.Lock()
	if c.state != ConnProcessing && c.state != ConnSetup {
		c.mu.Unlock()
		return fmt.Errorf("transport: Send on connection %q in state %s", c.id, c.state)
	}
	c.mu.Unlock()

	if err := c.sink.Reply(c.id, body, c.contentType, false); err != nil {
		c.fail(err.Error())
		return err
	}
	c.mu.Lock()
	c.state = ConnWaiting
	c.mu.Unlock()
	return nil
}

// Finish marks the engine's declared completion, sending the final reply
// and transitioning to FINAL.
func (c *Connection) Finish(body []byte) error {
	if err := c.sink.Reply(c.id, body, c.contentType, true); err != nil {
		c.fail(err.Error())
		return err
	}
	c.mu.Lock()
	c.state = ConnFinal
	c.mu.Unlock()
	return nil
}

// Process delivers the next inbound message from the peer, unblocking
// Wait. A message arriving while FINAL is the peer's required close,
// transitioning to DONE; any other arrival while FINAL is unexpected and
// fails the connection.
func (c *Connection) Process(body []byte, contentType string) error {
	c.mu.Lock()
	state := c.state
	first := !c.sawFirst
	c.sawFirst = true
	killer := c.killer
	c.mu.Unlock()

	if first {
		if deviceID, ok := extractLocURI(body, contentType); ok {
			c.mu.Lock()
			c.peerDeviceID = deviceID
			c.mu.Unlock()
			if killer != nil {
				killer.KillByDeviceID(deviceID)
			}
		}
	}

	if state == ConnFinal {
		c.mu.Lock()
		c.state = ConnDone
		c.mu.Unlock()
		return nil
	}

	select {
	case c.incoming <- incomingMessage{body: body, contentType: contentType}:
		c.mu.Lock()
		c.state = ConnProcessing
		c.mu.Unlock()
		return nil
	default:
		return fmt.Errorf("transport: connection %q already has a pending message", c.id)
	}
}

// Wait blocks until Process delivers the next message, the connection is
// cancelled, or ctx is done.
func (c *Connection) Wait(ctx context.Context, noReply bool) WaitOutcome {
	if noReply {
		return Inactive
	}
	select {
	case <-ctx.Done():
		c.fail("timed out waiting for peer")
		return TimedOut
	case msg := <-c.incoming:
		c.mu.Lock()
		c.lastReply = msg
		c.mu.Unlock()
		return GotReply
	}
}

func (c *Connection) GetReply() ([]byte, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReply.body, c.lastReply.contentType
}

func (c *Connection) Cancel() {
	c.fail("cancelled")
}

func (c *Connection) Shutdown() {}

func (c *Connection) fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == ConnDone || c.state == ConnFailed {
		return
	}
	c.state = ConnFailed
	c.failReason = reason
}

// FailReason returns the recorded failure, which becomes the session's
// reported error (SPEC_FULL.md §4.6: "Any other exit path is FAILED with a
// recorded reason, which becomes the session's reported error").
func (c *Connection) FailReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failReason
}
