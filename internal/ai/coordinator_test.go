package ai

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mayanpathak/Code-Collab/internal/hub"
	"github.com/mayanpathak/Code-Collab/internal/protocol"
	"github.com/mayanpathak/Code-Collab/internal/store"
)

func TestExtractPrompt(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"@ai write a hello world function", "write a hello world function", true},
		{"hey @ai fix this", "hey  fix this", true},
		{"@ai", "", true},
		{"plain chatter", "", false},
		{"email@aiven.io ping", "emailven.io ping", true}, // substring match, deliberately
	}
	for _, tt := range tests {
		got, ok := ExtractPrompt(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ExtractPrompt(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

type fakeGenerator struct {
	out   string
	err   error
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.out, g.err
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakePersister struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (p *fakePersister) UpdateFileTree(_ context.Context, id string, _ json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, id)
	return p.err
}

func (p *fakePersister) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fixture struct {
	coord  *Coordinator
	store  *store.MemoryStore
	hub    *hub.Hub
	gen    *fakeGenerator
	pers   *fakePersister
	member *hub.Client
}

func setup(t *testing.T, gen *fakeGenerator, pers *fakePersister, timeout time.Duration) *fixture {
	t.Helper()
	st := store.NewMemoryStore(100)
	h := hub.New()
	member := hub.NewClient("p1", "u1", "dev@example.com")
	h.Join("p1", member)
	coord := NewCoordinator(st, h, pers, gen, nil, zap.NewNop().Sugar(), timeout)
	return &fixture{coord: coord, store: st, hub: h, gen: gen, pers: pers, member: member}
}

func drainMessages(t *testing.T, c *hub.Client) []*store.Message {
	t.Helper()
	var out []*store.Message
	for {
		select {
		case frame := <-c.Send:
			env, err := protocol.Decode(frame)
			if err != nil {
				t.Fatal(err)
			}
			if env.Event != protocol.EventProjectMessage {
				continue
			}
			var m store.Message
			if err := json.Unmarshal(env.Data, &m); err != nil {
				t.Fatal(err)
			}
			out = append(out, &m)
		default:
			return out
		}
	}
}

func TestProcessSuccess(t *testing.T) {
	f := setup(t, &fakeGenerator{out: `{"text":"here is your function"}`}, &fakePersister{}, time.Second)

	f.coord.Process("p1", "write a function", f.member, true)

	msgs := drainMessages(t, f.member)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want processing + terminal", len(msgs))
	}
	if msgs[0].Sender != store.AISender || msgs[0].Body.Text() != processingText {
		t.Errorf("first message = %+v, want processing from AI sender", msgs[0])
	}
	if msgs[1].Body.Text() != "here is your function" {
		t.Errorf("terminal text = %q", msgs[1].Body.Text())
	}
	if msgs[1].Timestamp == "" {
		t.Error("terminal message has no timestamp")
	}

	// both synthetic messages were persisted
	n, _ := f.store.Count(context.Background(), "p1")
	if n != 2 {
		t.Errorf("stored = %d, want 2", n)
	}
	// no file tree in the response, so no project update
	if f.pers.callCount() != 0 {
		t.Error("unexpected file tree update")
	}
}

func TestProcessFallbackText(t *testing.T) {
	f := setup(t, &fakeGenerator{out: `{"fileTree":{}}`}, &fakePersister{}, time.Second)

	f.coord.Process("p1", "do the thing", f.member, true)

	msgs := drainMessages(t, f.member)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	want := `I've processed your request for "do the thing" but couldn't generate detailed text.`
	if msgs[1].Body.Text() != want {
		t.Errorf("terminal text = %q, want %q", msgs[1].Body.Text(), want)
	}
}

func TestProcessGenerationError(t *testing.T) {
	f := setup(t, &fakeGenerator{err: errors.New("upstream exploded")}, &fakePersister{}, time.Second)

	f.coord.Process("p1", "prompt", f.member, true)

	msgs := drainMessages(t, f.member)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if got := msgs[1].Body.Text(); got != "Error: upstream exploded. Please try again with a more specific prompt." {
		t.Errorf("terminal text = %q", got)
	}
}

func TestProcessParseError(t *testing.T) {
	f := setup(t, &fakeGenerator{out: "definitely not json"}, &fakePersister{}, time.Second)

	f.coord.Process("p1", "prompt", f.member, true)

	msgs := drainMessages(t, f.member)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if got := msgs[1].Body.Text(); got != "Error: Invalid AI response format. Please try again with a more specific prompt." {
		t.Errorf("terminal text = %q", got)
	}
}

func TestProcessEmptyPromptSkipsGeneration(t *testing.T) {
	gen := &fakeGenerator{out: `{"text":"x"}`}
	f := setup(t, gen, &fakePersister{}, time.Second)

	f.coord.Process("p1", "   ", f.member, true)

	msgs := drainMessages(t, f.member)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want processing + error", len(msgs))
	}
	if got := msgs[1].Body.Text(); got != "Error: Empty prompt. Please try again with a more specific prompt." {
		t.Errorf("terminal text = %q", got)
	}
	if gen.callCount() != 0 {
		t.Error("generator must not be called for an empty prompt")
	}
}

func TestProcessTimeoutDiscardsLateResult(t *testing.T) {
	gen := &fakeGenerator{out: `{"text":"too late"}`, delay: 300 * time.Millisecond}
	f := setup(t, gen, &fakePersister{}, 50*time.Millisecond)

	f.coord.Process("p1", "slow prompt", f.member, true)

	msgs := drainMessages(t, f.member)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if got := msgs[1].Body.Text(); got != "Error: AI request timed out after 0 seconds. Please try again with a more specific prompt." {
		t.Errorf("terminal text = %q", got)
	}

	// wait past the generator's own completion; the late result must never
	// surface as a second terminal message
	time.Sleep(400 * time.Millisecond)
	if late := drainMessages(t, f.member); len(late) != 0 {
		t.Errorf("late result was broadcast: %d messages", len(late))
	}
	n, _ := f.store.Count(context.Background(), "p1")
	if n != 2 {
		t.Errorf("stored = %d, want 2 (late result must not be stored)", n)
	}
}

func TestProcessPersistsFileTree(t *testing.T) {
	out := `{"text":"scaffolded","fileTree":{"main.go":{"file":{"contents":"package main"}}}}`
	pers := &fakePersister{}
	f := setup(t, &fakeGenerator{out: out}, pers, time.Second)

	f.coord.Process("p1", "scaffold", f.member, true)

	if pers.callCount() != 1 || pers.calls[0] != "p1" {
		t.Fatalf("persister calls = %v", pers.calls)
	}
	// result message carries the tree
	msgs := drainMessages(t, f.member)
	if len(msgs) != 2 || string(msgs[1].Body.FileTree()) == "" {
		t.Errorf("terminal message lost the file tree")
	}
}

func TestProcessFileTreeSkippedWithoutProject(t *testing.T) {
	out := `{"text":"ok","fileTree":{"a.txt":{}}}`
	pers := &fakePersister{}
	f := setup(t, &fakeGenerator{out: out}, pers, time.Second)

	f.coord.Process("p1", "scaffold", f.member, false)

	if pers.callCount() != 0 {
		t.Error("file tree update attempted for a room with no project record")
	}
}

func TestProcessFileTreeFailureEmitsErrorEvent(t *testing.T) {
	out := `{"text":"ok","fileTree":{"a.txt":{}}}`
	pers := &fakePersister{err: errors.New("mongo down")}
	f := setup(t, &fakeGenerator{out: out}, pers, time.Second)

	f.coord.Process("p1", "scaffold", f.member, true)

	var sawTreeError bool
	var terminals int
	for {
		select {
		case frame := <-f.member.Send:
			env, err := protocol.Decode(frame)
			if err != nil {
				t.Fatal(err)
			}
			switch env.Event {
			case protocol.EventError:
				var p protocol.ErrorPayload
				if err := json.Unmarshal(env.Data, &p); err != nil {
					t.Fatal(err)
				}
				if p.Type == protocol.ErrUpdateFileTree {
					sawTreeError = true
				}
			case protocol.EventProjectMessage:
				terminals++
			}
			continue
		default:
		}
		break
	}
	if !sawTreeError {
		t.Error("no UPDATE_FILE_TREE_ERROR event delivered to the origin")
	}
	// the already-broadcast result message is not rolled back
	if terminals != 2 {
		t.Errorf("messages = %d, want processing + terminal", terminals)
	}
}
