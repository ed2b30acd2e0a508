package hub

import (
	"fmt"
	"sync"
	"testing"
)

func drain(c *Client) [][]byte {
	var out [][]byte
	for {
		select {
		case frame := <-c.Send:
			out = append(out, frame)
		default:
			return out
		}
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	h := New()
	c := NewClient("p1", "u1", "a@example.com")
	h.Join("p1", c)
	h.Join("p1", c)
	if got := h.RoomSize("p1"); got != 1 {
		t.Errorf("room size = %d, want 1", got)
	}
}

func TestLeaveUnknownIsNoOp(t *testing.T) {
	h := New()
	c := NewClient("p1", "u1", "a@example.com")
	h.Leave("p1", c)
	h.Leave("nope", c)
	if got := h.RoomSize("p1"); got != 0 {
		t.Errorf("room size = %d, want 0", got)
	}
}

func TestLastLeaveDropsRoom(t *testing.T) {
	h := New()
	a := NewClient("p1", "u1", "a@example.com")
	b := NewClient("p1", "u2", "b@example.com")
	h.Join("p1", a)
	h.Join("p1", b)
	h.Leave("p1", a)
	if got := h.RoomSize("p1"); got != 1 {
		t.Fatalf("room size = %d, want 1", got)
	}
	h.Leave("p1", b)
	h.mu.RLock()
	_, exists := h.rooms["p1"]
	h.mu.RUnlock()
	if exists {
		t.Error("empty room entry was not dropped")
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	h := New()
	sender := NewClient("p1", "u1", "a@example.com")
	other := NewClient("p1", "u2", "b@example.com")
	outsider := NewClient("p2", "u3", "c@example.com")
	h.Join("p1", sender)
	h.Join("p1", other)
	h.Join("p2", outsider)

	h.Broadcast("p1", []byte("hello"), sender)

	if got := drain(sender); len(got) != 0 {
		t.Errorf("sender received its own echo: %d frames", len(got))
	}
	if got := drain(other); len(got) != 1 || string(got[0]) != "hello" {
		t.Errorf("other member frames = %v", got)
	}
	if got := drain(outsider); len(got) != 0 {
		t.Errorf("other room received frames: %d", len(got))
	}
}

func TestBroadcastToAllIncludesSender(t *testing.T) {
	h := New()
	a := NewClient("p1", "u1", "a@example.com")
	b := NewClient("p1", "u2", "b@example.com")
	h.Join("p1", a)
	h.Join("p1", b)

	h.Broadcast("p1", []byte("ai-result"), nil)

	if len(drain(a)) != 1 || len(drain(b)) != 1 {
		t.Error("broadcast with no exclusion must reach every member")
	}
}

func TestDeliverAfterCloseDoesNotPanic(t *testing.T) {
	c := NewClient("p1", "u1", "a@example.com")
	c.Close()
	c.Close() // double close is safe
	c.Deliver([]byte("late"))
}

func TestConcurrentMembershipAndBroadcast(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := NewClient("p1", fmt.Sprintf("u%d", i), "x@example.com")
			for j := 0; j < 50; j++ {
				h.Join("p1", c)
				h.Broadcast("p1", []byte("m"), nil)
				drain(c)
				h.Leave("p1", c)
			}
		}(i)
	}
	wg.Wait()
	if got := h.RoomSize("p1"); got != 0 {
		t.Errorf("room size after churn = %d, want 0", got)
	}
}
