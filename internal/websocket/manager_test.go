package websocket

import (
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager(5, 1024*1024, time.Second, time.Second, time.Second)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func registeredClient(m *Manager, id, operatorID, deviceID string, sendBuffer int) *Client {
	c := &Client{
		ID:         id,
		OperatorID: operatorID,
		DeviceID:   deviceID,
		Manager:    m,
		Send:       make(chan []byte, sendBuffer),
	}
	m.Register <- c
	return c
}

func TestBroadcastToOperator_ExcludesOriginatingDevice(t *testing.T) {
	m := newTestManager()
	go m.Run()

	origin := registeredClient(m, "c-origin", "op-1", "dev-origin", 4)
	other := registeredClient(m, "c-other", "op-1", "dev-other", 4)
	waitFor(t, "registration", func() bool { return m.OperatorConnections("op-1") == 2 })

	msg, err := NewMessage(TypePressRunSynced, &PressRunSyncedPayload{PressRunID: "run-1"})
	if err != nil {
		t.Fatalf("message build failed: %v", err)
	}
	if err := m.BroadcastToOperator("op-1", msg, "dev-origin"); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	select {
	case <-other.Send:
	case <-time.After(time.Second):
		t.Fatal("expected the other device to receive the broadcast")
	}
	select {
	case <-origin.Send:
		t.Fatal("the originating device must not receive its own event")
	default:
	}
}

func TestBroadcastToOperator_FullBuffersDoNotStall(t *testing.T) {
	m := newTestManager()
	go m.Run()

	// Two clients with zero-capacity send channels that nothing drains.
	registeredClient(m, "c-a", "op-1", "dev-a", 0)
	registeredClient(m, "c-b", "op-1", "dev-b", 0)
	waitFor(t, "registration", func() bool { return m.OperatorConnections("op-1") == 2 })

	msg, err := NewMessage(TypePressRunSynced, &PressRunSyncedPayload{PressRunID: "run-1"})
	if err != nil {
		t.Fatalf("message build failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- m.BroadcastToOperator("op-1", msg, "") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("broadcast failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast stalled on full send buffers")
	}

	// Stalled clients are dropped rather than left half-registered.
	waitFor(t, "unregistration", func() bool { return m.OperatorConnections("op-1") == 0 })
}

func TestRegisterEnforcesOperatorConnectionCap(t *testing.T) {
	m := NewManager(1, 1024*1024, time.Second, time.Second, time.Second)
	go m.Run()

	registeredClient(m, "c-a", "op-1", "dev-a", 4)
	waitFor(t, "first registration", func() bool { return m.OperatorConnections("op-1") == 1 })

	rejected := registeredClient(m, "c-b", "op-1", "dev-b", 4)

	// The manager closes the send channel of a connection over the cap.
	select {
	case _, ok := <-rejected.Send:
		if ok {
			t.Fatal("expected the rejected client's send channel closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the rejection")
	}
	if m.OperatorConnections("op-1") != 1 {
		t.Errorf("expected the cap to hold at 1, got %d", m.OperatorConnections("op-1"))
	}
}
