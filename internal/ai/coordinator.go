package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mayanpathak/Code-Collab/internal/events"
	"github.com/mayanpathak/Code-Collab/internal/hub"
	"github.com/mayanpathak/Code-Collab/internal/metrics"
	"github.com/mayanpathak/Code-Collab/internal/protocol"
	"github.com/mayanpathak/Code-Collab/internal/store"
)

// Directive is the reserved token that marks a chat message as addressed to
// the assistant.
const Directive = "@ai"

const processingText = "I'm thinking about your request... This may take a moment."

// ExtractPrompt reports whether message carries the AI directive and returns
// the trimmed prompt with the first directive occurrence removed.
func ExtractPrompt(message string) (string, bool) {
	if !strings.Contains(message, Directive) {
		return "", false
	}
	return strings.TrimSpace(strings.Replace(message, Directive, "", 1)), true
}

// FileTreePersister saves a generated file tree onto the project record.
type FileTreePersister interface {
	UpdateFileTree(ctx context.Context, id string, tree json.RawMessage) error
}

// Coordinator isolates the slow AI-generation call from the chat hot path.
// For every accepted request the room sees exactly one processing message and
// then exactly one terminal message (result or error), all from the reserved
// AI sender.
type Coordinator struct {
	store    store.Store
	hub      *hub.Hub
	projects FileTreePersister
	gen      Generator
	pub      *events.Publisher
	log      *zap.SugaredLogger
	timeout  time.Duration
}

func NewCoordinator(st store.Store, h *hub.Hub, projects FileTreePersister, gen Generator, pub *events.Publisher, log *zap.SugaredLogger, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Coordinator{store: st, hub: h, projects: projects, gen: gen, pub: pub, log: log, timeout: timeout}
}

type genResult struct {
	out string
	err error
}

// Process runs one AI request to completion. It is called on its own
// goroutine so the relay never blocks on it; origin only matters for the
// UPDATE_FILE_TREE_ERROR side channel and may have disconnected by the time
// the result lands.
func (c *Coordinator) Process(room, prompt string, origin *hub.Client, hasProject bool) {
	c.emit(room, store.Structured(processingText, nil))

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		metrics.AIRequests.WithLabelValues("rejected").Inc()
		c.emitFailure(room, "Empty prompt")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resCh := make(chan genResult, 1)
	go func() {
		out, err := c.gen.Generate(ctx, prompt)
		resCh <- genResult{out: out, err: err}
	}()

	var res genResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		// The deadline committed first; a late result stays in the buffered
		// channel and is never stored or broadcast.
		metrics.AIRequests.WithLabelValues("timeout").Inc()
		c.emitFailure(room, fmt.Sprintf("AI request timed out after %d seconds", int(c.timeout.Seconds())))
		return
	}

	if res.err != nil {
		metrics.AIRequests.WithLabelValues("error").Inc()
		c.log.Warnw("ai generation failed", "room", room, "err", res.err)
		c.emitFailure(room, res.err.Error())
		return
	}

	var parsed struct {
		Text     string          `json:"text"`
		FileTree json.RawMessage `json:"fileTree"`
	}
	if err := json.Unmarshal([]byte(res.out), &parsed); err != nil {
		metrics.AIRequests.WithLabelValues("parse_error").Inc()
		c.log.Warnw("ai response not parseable", "room", room, "err", err)
		c.emitFailure(room, "Invalid AI response format")
		return
	}
	if parsed.Text == "" {
		parsed.Text = fmt.Sprintf("I've processed your request for %q but couldn't generate detailed text.", prompt)
	}

	metrics.AIRequests.WithLabelValues("success").Inc()
	c.emit(room, store.Structured(parsed.Text, parsed.FileTree))

	if hasProject && hasEntries(parsed.FileTree) {
		// Independent of the chat deadline; the result message is already out
		// and is not rolled back on persistence failure.
		updateCtx, cancelUpdate := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelUpdate()
		if err := c.projects.UpdateFileTree(updateCtx, room, parsed.FileTree); err != nil {
			c.log.Errorw("file tree update failed", "room", room, "err", err)
			c.sendError(origin, protocol.ErrUpdateFileTree, "Failed to update project file tree")
		}
	}
}

// emitFailure stores and broadcasts the terminal error message for a request.
func (c *Coordinator) emitFailure(room, reason string) {
	text := fmt.Sprintf("Error: %s. Please try again with a more specific prompt.", reason)
	c.emit(room, store.Structured(text, nil))
}

// emit stores a synthetic AI message and broadcasts it to the whole room,
// sender included. A storage failure is logged but the broadcast still goes
// out so the room is never left waiting.
func (c *Coordinator) emit(room string, body store.Body) {
	m := &store.Message{
		ID:        uuid.NewString(),
		Sender:    store.AISender,
		Body:      body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.Append(ctx, room, m); err != nil {
		c.log.Errorw("storing ai message failed", "room", room, "err", err)
	} else {
		metrics.MessagesStored.Inc()
		c.pub.MessageStored(ctx, room, m)
	}

	frame, err := protocol.Encode(protocol.EventProjectMessage, m)
	if err != nil {
		c.log.Errorw("encoding ai message failed", "room", room, "err", err)
		return
	}
	c.hub.Broadcast(room, frame, nil)
}

func (c *Coordinator) sendError(origin *hub.Client, errType, message string) {
	if origin == nil {
		return
	}
	frame, err := protocol.Encode(protocol.EventError, protocol.ErrorPayload{Type: errType, Message: message})
	if err != nil {
		return
	}
	origin.Deliver(frame)
}

func hasEntries(tree json.RawMessage) bool {
	if len(tree) == 0 {
		return false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(tree, &m); err != nil {
		return false
	}
	return len(m) > 0
}
