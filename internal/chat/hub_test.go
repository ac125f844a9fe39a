package chat_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/omochice/chat-session/internal/chat"
	"github.com/omochice/chat-session/pkg/protocol"
)

func newClient(id, name string) (*chat.Client, *fakeConn) {
	conn := newFakeConn("127.0.0.1:1234")
	return &chat.Client{
		ID:       id,
		Conn:     conn,
		Name:     name,
		Outgoing: make(chan []byte, 10),
	}, conn
}

func encode(t *testing.T, frame protocol.Frame) []byte {
	t.Helper()
	data, err := frame.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return data
}

func nextFrame(t *testing.T, client *chat.Client) protocol.Frame {
	t.Helper()
	select {
	case data := <-client.Outgoing:
		var frame protocol.Frame
		if err := frame.Decode(data); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for frame to %s", client.ID)
	}
	return protocol.Frame{}
}

func expectNoFrame(t *testing.T, client *chat.Client) {
	t.Helper()
	select {
	case data := <-client.Outgoing:
		var frame protocol.Frame
		frame.Decode(data)
		t.Errorf("unexpected frame to %s: %+v", client.ID, frame)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Register(t *testing.T) {
	hub := chat.NewHub()
	client, _ := newClient("c1", "Ana Ruiz")

	hub.Register(client)
	hub.Register(client)

	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestHub_Register_MultipleClients(t *testing.T) {
	hub := chat.NewHub()

	for i := 0; i < 3; i++ {
		client, _ := newClient("c", "user")
		hub.Register(client)
	}

	if got := hub.ClientCount(); got != 3 {
		t.Errorf("ClientCount() = %d, want 3", got)
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := chat.NewHub()
	client, _ := newClient("c1", "Ana Ruiz")
	hub.Register(client)

	if hub.Unregister(client) {
		t.Error("Unregister() = true for a client that never joined")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
	if hub.Unregister(client) {
		t.Error("Unregister() = true for an unknown client")
	}
}

// runClient serves client on hub until the test ends.
func runClient(t *testing.T, hub *chat.Hub, client *chat.Client, conn *fakeConn) {
	t.Helper()
	hub.Register(client)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.HandleClient(context.Background(), client)
	}()
	t.Cleanup(func() {
		conn.hangUp()
		<-done
	})
}

func TestHub_HandleClient_JoinAndRoster(t *testing.T) {
	hub := chat.NewHub()
	ana, anaConn := newClient("ana", "Ana Ruiz")
	luis, luisConn := newClient("luis", "Luis Gomez")
	runClient(t, hub, ana, anaConn)
	runClient(t, hub, luis, luisConn)

	anaConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventJoin, Data: "Ana Ruiz"})
	if f := nextFrame(t, luis); f.Event != protocol.EventUserJoined || f.Data != "Ana Ruiz" {
		t.Errorf("luis got %+v, want userJoined Ana Ruiz", f)
	}
	expectNoFrame(t, ana)

	luisConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventJoin, Data: "Luis Gomez"})
	if f := nextFrame(t, ana); f.Event != protocol.EventUserJoined || f.Data != "Luis Gomez" {
		t.Errorf("ana got %+v, want userJoined Luis Gomez", f)
	}

	anaConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventActiveUsers})
	f := nextFrame(t, ana)
	if f.Event != protocol.EventActiveUsers {
		t.Fatalf("ana got %+v, want getActiveUsers", f)
	}
	names, err := protocol.DecodeNames(f.Data)
	if err != nil {
		t.Fatalf("DecodeNames() error = %v", err)
	}
	if want := []string{"Ana Ruiz", "Luis Gomez"}; !reflect.DeepEqual(names, want) {
		t.Errorf("roster = %q, want %q", names, want)
	}
}

func TestHub_HandleClient_JoinTwiceAnnouncesOnce(t *testing.T) {
	hub := chat.NewHub()
	ana, anaConn := newClient("ana", "Ana Ruiz")
	luis, luisConn := newClient("luis", "Luis Gomez")
	runClient(t, hub, ana, anaConn)
	runClient(t, hub, luis, luisConn)

	anaConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventJoin, Data: "Ana Ruiz"})
	anaConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventJoin, Data: "Ana Ruiz"})

	nextFrame(t, luis)
	expectNoFrame(t, luis)
}

func TestHub_HandleClient_MessageBroadcastToEveryone(t *testing.T) {
	hub := chat.NewHub()
	ana, anaConn := newClient("ana", "Ana Ruiz")
	luis, luisConn := newClient("luis", "Luis Gomez")
	runClient(t, hub, ana, anaConn)
	runClient(t, hub, luis, luisConn)

	anaConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventMessage, Data: protocol.SendPayload{Content: "  hola  "}})

	for _, c := range []*chat.Client{ana, luis} {
		f := nextFrame(t, c)
		if f.Event != protocol.EventNewMessage {
			t.Fatalf("%s got %+v, want newMessage", c.ID, f)
		}
		msg, err := protocol.DecodeChatMessage(f.Data)
		if err != nil {
			t.Fatalf("DecodeChatMessage() error = %v", err)
		}
		if msg.User != "Ana Ruiz" || msg.Content != "hola" || msg.Timestamp.IsZero() {
			t.Errorf("%s got %+v", c.ID, msg)
		}
	}
}

func TestHub_HandleClient_BlankMessageIgnored(t *testing.T) {
	hub := chat.NewHub()
	ana, anaConn := newClient("ana", "Ana Ruiz")
	runClient(t, hub, ana, anaConn)

	anaConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventMessage, Data: protocol.SendPayload{Content: "   "}})

	expectNoFrame(t, ana)
}

func TestHub_HandleClient_InvalidFrames(t *testing.T) {
	hub := chat.NewHub()
	ana, anaConn := newClient("ana", "Ana Ruiz")
	runClient(t, hub, ana, anaConn)

	anaConn.inbound <- []byte("not a frame")
	anaConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventMessage, Data: "no content"})
	if f := nextFrame(t, ana); f.Event != protocol.EventError {
		t.Errorf("got %+v, want error for bad message payload", f)
	}

	anaConn.inbound <- encode(t, protocol.Frame{Event: "dance"})
	if f := nextFrame(t, ana); f.Event != protocol.EventError {
		t.Errorf("got %+v, want error for unknown event", f)
	}
}

func TestHub_HandleClient_LeaveAnnounced(t *testing.T) {
	hub := chat.NewHub()
	ana, anaConn := newClient("ana", "Ana Ruiz")
	luis, luisConn := newClient("luis", "Luis Gomez")
	runClient(t, hub, ana, anaConn)

	hub.Register(luis)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.HandleClient(context.Background(), luis)
	}()

	luisConn.inbound <- encode(t, protocol.Frame{Event: protocol.EventJoin, Data: "Luis Gomez"})
	nextFrame(t, ana)

	luisConn.hangUp()
	<-done

	if f := nextFrame(t, ana); f.Event != protocol.EventUserLeft || f.Data != "Luis Gomez" {
		t.Errorf("ana got %+v, want userLeft Luis Gomez", f)
	}
	if got := hub.ActiveUsers(); !reflect.DeepEqual(got, []string{}) {
		t.Errorf("ActiveUsers() = %q, want empty", got)
	}
	if got := hub.ClientCount(); got != 1 {
		t.Errorf("ClientCount() = %d, want 1", got)
	}
}

func TestHub_HandleClient_NoLeaveWithoutJoin(t *testing.T) {
	hub := chat.NewHub()
	ana, anaConn := newClient("ana", "Ana Ruiz")
	luis, luisConn := newClient("luis", "Luis Gomez")
	runClient(t, hub, ana, anaConn)

	hub.Register(luis)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.HandleClient(context.Background(), luis)
	}()
	luisConn.hangUp()
	<-done

	expectNoFrame(t, ana)
}

func TestHub_Broadcast_SkipsFullClients(t *testing.T) {
	hub := chat.NewHub()
	slow := &chat.Client{ID: "slow", Conn: newFakeConn("x"), Outgoing: make(chan []byte)}
	fast, _ := newClient("fast", "Luis Gomez")
	hub.Register(slow)
	hub.Register(fast)

	hub.Broadcast(protocol.Frame{Event: protocol.EventUserJoined, Data: "Ana Ruiz"}, nil)

	if f := nextFrame(t, fast); f.Event != protocol.EventUserJoined {
		t.Errorf("fast got %+v", f)
	}
}
