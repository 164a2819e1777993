package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/kadirpekel/magictunnel-core/pkg/jsonrpc"
	"github.com/kadirpekel/magictunnel-core/pkg/mcperr"
	"github.com/kadirpekel/magictunnel-core/pkg/upstreamconfig"
)

// defaultCallTimeout is applied when a caller's context carries no
// deadline of its own.
const defaultCallTimeout = 30 * time.Second

// Stdio is the child-process transport (spec.md section 4.A): spawn with
// piped stdin/stdout/stderr, a writer goroutine draining an unbounded
// outbound channel of newline-terminated JSON, and a reader goroutine
// line-splitting stdout and dispatching matched responses.
type Stdio struct {
	name string
	spec upstreamconfig.StdioSpec

	onRequest      InboundRequestHandler
	onNotification InboundNotificationHandler

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	outbox  chan []byte
	pending *pendingTable
	done    chan struct{}
}

// NewStdio constructs a stdio transport for the given upstream name and
// spec. onRequest/onNotification may be nil if this upstream never needs
// to originate bidirectional calls.
func NewStdio(name string, spec upstreamconfig.StdioSpec, onRequest InboundRequestHandler, onNotification InboundNotificationHandler) *Stdio {
	return &Stdio{
		name:           name,
		spec:           spec,
		onRequest:      onRequest,
		onNotification: onNotification,
		state:          Disconnected,
		pending:        newPendingTable(),
	}
}

func (s *Stdio) Name() string { return s.name }

func (s *Stdio) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stdio) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect spawns the child process and starts the writer/reader pumps.
func (s *Stdio) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Connected || s.state == Connecting {
		s.mu.Unlock()
		return nil
	}
	s.state = Connecting
	s.mu.Unlock()

	cmd := exec.CommandContext(context.Background(), s.spec.Command, s.spec.Args...)
	if s.spec.Cwd != "" {
		cmd.Dir = s.spec.Cwd
	}
	cmd.Env = os.Environ()
	for k, v := range s.spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(Failed)
		return mcperr.New(mcperr.KindConnection, "open stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(Failed)
		return mcperr.New(mcperr.KindConnection, "open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setState(Failed)
		return mcperr.New(mcperr.KindConnection, "open stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		s.setState(Failed)
		return mcperr.New(mcperr.KindConnection, fmt.Sprintf("start %q", s.spec.Command), err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.outbox = make(chan []byte, 256)
	s.done = make(chan struct{})
	s.state = Connected
	s.mu.Unlock()

	go s.pumpStderr(stderr)
	go s.pumpWriter(stdin)
	go s.pumpReader(stdout)
	go s.waitExit()

	slog.Info("transport: stdio connected", "upstream", s.name, "command", s.spec.Command)
	return nil
}

func (s *Stdio) waitExit() {
	err := s.cmd.Wait()
	s.mu.Lock()
	s.state = Failed
	done := s.done
	s.mu.Unlock()
	if done != nil {
		close(done)
	}
	slog.Warn("transport: stdio child exited", "upstream", s.name, "error", err)
	s.pending.drain(fmt.Sprintf("upstream %s disconnected: child process exited", s.name))
}

// pumpStderr forwards the child's stderr to our logs line by line, the
// same way the teacher's pkg/a2a/client.go surfaces subprocess stderr.
func (s *Stdio) pumpStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		slog.Debug("transport: stdio stderr", "upstream", s.name, "line", scanner.Text())
	}
}

func (s *Stdio) pumpWriter(w io.WriteCloser) {
	defer w.Close()
	for {
		select {
		case line, ok := <-s.outbox:
			if !ok {
				return
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				slog.Warn("transport: stdio write failed", "upstream", s.name, "error", err)
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Stdio) pumpReader(r io.ReadCloser) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		s.handleLine(append([]byte(nil), line...))
	}
}

func (s *Stdio) handleLine(line []byte) {
	isReq, isNotif, err := jsonrpc.Sniff(line)
	if err != nil {
		slog.Warn("transport: malformed JSON-RPC line, skipping", "upstream", s.name, "error", err)
		return
	}

	switch {
	case isNotif:
		var n jsonrpc.Notification
		if err := json.Unmarshal(line, &n); err != nil {
			slog.Warn("transport: malformed notification, skipping", "upstream", s.name, "error", err)
			return
		}
		if s.onNotification != nil {
			s.onNotification(s.name, &n)
		}
	case isReq:
		var req jsonrpc.Request
		if err := json.Unmarshal(line, &req); err != nil {
			slog.Warn("transport: malformed request, skipping", "upstream", s.name, "error", err)
			return
		}
		if s.onRequest != nil {
			resp := s.onRequest(context.Background(), s.name, &req)
			if resp != nil {
				s.writeRaw(resp)
			}
		}
	default:
		var resp jsonrpc.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			slog.Warn("transport: malformed response, skipping", "upstream", s.name, "error", err)
			return
		}
		if !s.pending.complete(&resp) {
			slog.Warn("transport: response for unknown id dropped", "upstream", s.name, "id", resp.ID.String())
		}
	}
}

func (s *Stdio) writeRaw(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("transport: marshal outbound message failed", "upstream", s.name, "error", err)
		return
	}
	select {
	case s.outbox <- data:
	default:
		slog.Warn("transport: outbox full, dropping message", "upstream", s.name)
	}
}

// Send issues a request and blocks for its response, honoring ctx's
// deadline or defaultCallTimeout, whichever is sooner.
func (s *Stdio) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if s.State() != Connected {
		return nil, mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", s.name), nil)
	}

	ctx, span := startSendSpan(ctx, "stdio", s.name, method)
	defer span.End()

	id := newRequestID()
	deadline := time.Now().Add(defaultCallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req, err := jsonrpc.NewRequest(id, method, params)
	if err != nil {
		return nil, mcperr.New(mcperr.KindValidation, "marshal request params", err)
	}

	pc := s.pending.register(id, deadline)
	s.writeRaw(req)

	return waitForResponse(ctx, s.pending, pc)
}

// SendNotification writes a fire-and-forget message with no id.
func (s *Stdio) SendNotification(ctx context.Context, method string, params any) error {
	if s.State() != Connected {
		return mcperr.New(mcperr.KindDisconnected, fmt.Sprintf("upstream %s is not connected", s.name), nil)
	}
	n, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return mcperr.New(mcperr.KindValidation, "marshal notification params", err)
	}
	s.writeRaw(n)
	return nil
}

// Disconnect terminates the child process and drains outstanding calls.
func (s *Stdio) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	cmd := s.cmd
	s.state = Disconnected
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	s.pending.drain(fmt.Sprintf("upstream %s disconnected", s.name))
	return nil
}
