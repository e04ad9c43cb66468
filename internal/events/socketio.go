package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/mvnflow/internal/ctxlog"
	"github.com/vk/mvnflow/internal/redact"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// SocketIOEvent is the event name run events are emitted under.
const SocketIOEvent = "mvnflow:event"

const connectTimeout = 15 * time.Second

// SocketIOOptions configures DialSocketIO.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// Secrets are masked out of error messages before emitting.
	Secrets redact.Source
}

// SocketIO emits events to a socket.io server.
type SocketIO struct {
	client  *socket.Socket
	secrets redact.Source
}

// DialSocketIO connects to the server and waits for the connection to be
// acknowledged.
func DialSocketIO(ctx context.Context, opts SocketIOOptions) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("events_url", opts.URL)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse events URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("events URL %q needs a scheme and a host", opts.URL)
	}

	sopts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		sopts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}
	manager := socket.NewManager(parsedURL.Scheme+"://"+parsedURL.Host, sopts)
	io := manager.Socket(namespace, sopts)

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				connectChan <- err
				return
			}
		}
		connectChan <- fmt.Errorf("connect_error")
	})
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		logger.Info("Connected to events server.", "sid", io.Id())
		return &SocketIO{client: io, secrets: opts.Secrets}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(connectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// Publish implements Publisher. Events are dropped while disconnected.
func (s *SocketIO) Publish(ctx context.Context, e Event) {
	if !s.client.Connected() {
		ctxlog.FromContext(ctx).Debug("Events server disconnected, dropping event.", "kind", e.Kind)
		return
	}
	s.client.Emit(SocketIOEvent, s.payload(e))
}

// payload flattens the event into the plain map the socket.io encoder
// expects.
func (s *SocketIO) payload(e Event) map[string]any {
	out := map[string]any{
		"kind":   string(e.Kind),
		"run_id": e.RunID,
		"time":   e.Time.UTC().Format(time.RFC3339Nano),
	}
	if e.Job != "" {
		out["job"] = e.Job
	}
	if e.Step != "" {
		out["step"] = e.Step
	}
	if e.Status != "" {
		out["status"] = e.Status
	}
	if e.Error != "" {
		msg := e.Error
		if s.secrets != nil {
			msg = redact.String(msg, s.secrets.Values())
		}
		out["error"] = msg
	}
	if len(e.Outputs) > 0 {
		outputs := make(map[string]any, len(e.Outputs))
		for k, v := range e.Outputs {
			outputs[k] = v
		}
		out["outputs"] = outputs
	}
	return out
}

// Close disconnects from the server.
func (s *SocketIO) Close() error {
	s.client.Disconnect()
	return nil
}
