package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/courier-chat/courier/internal/protocol"
	"github.com/courier-chat/courier/internal/repository/memory"
	"github.com/courier-chat/courier/internal/service"
)

type fixture struct {
	registry *service.Registry
	router   *service.Router
	convs    *memory.ConversationStore
	msgs     *memory.MessageStore
	chat     *memory.ChatLogStore
}

func newFixture() *fixture {
	convs := memory.NewConversationStore()
	msgs := memory.NewMessageStore(convs)
	chat := memory.NewChatLogStore()
	registry := service.NewRegistry()
	router := service.NewRouter(registry, convs, msgs, chat, service.NewReconciler(msgs))
	return &fixture{registry: registry, router: router, convs: convs, msgs: msgs, chat: chat}
}

// connect opens a connection and identifies it.
func (f *fixture) connect(t *testing.T, userID, username string) *fakePeer {
	t.Helper()
	peer := newFakePeer(username)
	f.registry.Join(peer)
	f.router.Identify(context.Background(), peer, protocol.Identify{
		Type:     protocol.TypeIdentify,
		UserID:   userID,
		Username: username,
	})
	return peer
}

func strptr(s string) *string { return &s }

func TestIdentifyWelcomeAndPresence(t *testing.T) {
	f := newFixture()
	watcher := newFakePeer("watcher")
	f.registry.Join(watcher)

	a := f.connect(t, "111111111", "A")

	chats := framesOf[protocol.ChatMessage](a)
	if len(chats) != 1 {
		t.Fatalf("A got %d chat-message frames, want 1", len(chats))
	}
	if chats[0].Username != service.SystemUsername || chats[0].Message != "Welcome to the chat, A!" {
		t.Errorf("unexpected welcome: %+v", chats[0])
	}

	joined := framesOf[protocol.ChatMessage](watcher)
	if len(joined) != 1 || joined[0].Message != "A has joined the chat." {
		t.Errorf("watcher join notice: %v", joined)
	}

	for _, p := range []*fakePeer{a, watcher} {
		lists := framesOf[protocol.OnlineUsers](p)
		if len(lists) == 0 {
			t.Fatalf("%s got no online-users frame", p.name)
		}
		users := lists[len(lists)-1].Users
		if len(users) != 1 || users[0].UserID != "111111111" || users[0].Username != "A" {
			t.Errorf("%s saw directory %v", p.name, users)
		}
	}
}

func TestReIdentifySameIdentitySendsNoWelcome(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	a.reset()

	f.router.Identify(context.Background(), a, protocol.Identify{
		Type: protocol.TypeIdentify, UserID: "111111111", Username: "A",
	})

	if n := len(framesOf[protocol.ChatMessage](a)); n != 0 {
		t.Errorf("idempotent re-identify produced %d chat messages", n)
	}
}

func TestReIdentifyUsernameChange(t *testing.T) {
	f := newFixture()
	watcher := f.connect(t, "999999999", "W")
	a := f.connect(t, "111111111", "A")
	a.reset()
	watcher.reset()

	f.router.Identify(context.Background(), a, protocol.Identify{
		Type: protocol.TypeIdentify, UserID: "111111111", Username: "A2",
	})

	own := framesOf[protocol.ChatMessage](a)
	if len(own) != 1 || own[0].Message != "Your profile has been updated, A2!" {
		t.Errorf("self notice: %v", own)
	}
	others := framesOf[protocol.ChatMessage](watcher)
	if len(others) != 1 || others[0].Message != "A has updated their profile to A2!" {
		t.Errorf("broadcast notice: %v", others)
	}
}

func TestPrivateMessageLiveDelivery(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	b := f.connect(t, "222222222", "B")
	a.reset()
	b.reset()

	err := f.router.Private(context.Background(), a, protocol.PrivateMessageSend{
		Type: protocol.TypePrivateMessage, ToUserID: "222222222", Message: strptr("hi"),
	})
	if err != nil {
		t.Fatalf("Private failed: %v", err)
	}

	got := framesOf[protocol.PrivateMessage](b)
	if len(got) != 1 {
		t.Fatalf("B got %d private messages, want 1", len(got))
	}
	pm := got[0]
	if pm.FromUserID != "111111111" || pm.FromUsername != "A" || *pm.Message != "hi" {
		t.Errorf("delivered frame: %+v", pm)
	}
	if pm.ChatKey != "chat_111111111_222222222" {
		t.Errorf("chatKey: %q", pm.ChatKey)
	}

	echo := framesOf[protocol.PrivateMessage](a)
	if len(echo) != 1 || echo[0] != pm {
		t.Errorf("sender echo mismatch: %v", echo)
	}

	if n := len(f.msgs.All()); n != 0 {
		t.Errorf("live-delivered message was persisted (%d rows)", n)
	}
	if f.convs.Len() != 1 {
		t.Errorf("conversation rows: %d, want 1", f.convs.Len())
	}
}

func TestPrivateMessageOfflinePersistedOnce(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	a.reset()

	err := f.router.Private(context.Background(), a, protocol.PrivateMessageSend{
		Type: protocol.TypePrivateMessage, ToUserID: "222222222", Message: strptr("hi"),
	})
	if err != nil {
		t.Fatalf("Private failed: %v", err)
	}

	echo := framesOf[protocol.PrivateMessage](a)
	if len(echo) != 1 || echo[0].FromUserID != "111111111" {
		t.Fatalf("sender echo: %v", echo)
	}

	rows := f.msgs.All()
	if len(rows) != 1 {
		t.Fatalf("persisted %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.ReceiverID != "222222222" || *row.Body != "hi" || row.DeleteMarker {
		t.Errorf("persisted row: %+v", row)
	}
}

func TestOfflineMailboxDeliveredOnIdentify(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")

	send := func(body string) {
		if err := f.router.Private(context.Background(), a, protocol.PrivateMessageSend{
			Type: protocol.TypePrivateMessage, ToUserID: "222222222", Message: strptr(body),
		}); err != nil {
			t.Fatalf("Private failed: %v", err)
		}
	}
	send("first")
	send("second")

	b := f.connect(t, "222222222", "B")

	got := framesOf[protocol.PrivateMessage](b)
	if len(got) != 2 {
		t.Fatalf("B got %d pending messages, want 2", len(got))
	}
	if *got[0].Message != "first" || *got[1].Message != "second" {
		t.Errorf("mailbox out of order: %q, %q", *got[0].Message, *got[1].Message)
	}
	if got[0].FromUserID != "111111111" || got[0].ToUserID != "222222222" {
		t.Errorf("redelivered frame: %+v", got[0])
	}
	if got[0].Time == "" {
		t.Error("redelivered frame lost its timestamp")
	}

	if n := len(f.msgs.All()); n != 0 {
		t.Errorf("%d rows survived delivery", n)
	}

	// Another identify must not redeliver.
	b.reset()
	f.router.Identify(context.Background(), b, protocol.Identify{
		Type: protocol.TypeIdentify, UserID: "222222222", Username: "B",
	})
	if n := len(framesOf[protocol.PrivateMessage](b)); n != 0 {
		t.Errorf("re-identify redelivered %d messages", n)
	}
}

func TestOfflineMessageRoundTripsFileFields(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")

	err := f.router.Private(context.Background(), a, protocol.PrivateMessageSend{
		Type:     protocol.TypePrivateMessage,
		ToUserID: "222222222",
		Message:  strptr("see attachment"),
		FileURL:  strptr("/uploads/private-media/cat.png"),
		FileType: strptr("image/png"),
		Filename: strptr("cat.png"),
	})
	if err != nil {
		t.Fatalf("Private failed: %v", err)
	}

	b := f.connect(t, "222222222", "B")
	got := framesOf[protocol.PrivateMessage](b)
	if len(got) != 1 {
		t.Fatalf("B got %d messages", len(got))
	}
	pm := got[0]
	if *pm.Message != "see attachment" ||
		pm.FileURL == nil || *pm.FileURL != "/uploads/private-media/cat.png" ||
		pm.FileType == nil || *pm.FileType != "image/png" ||
		pm.Filename == nil || *pm.Filename != "cat.png" {
		t.Errorf("fields dropped in round trip: %+v", pm)
	}
}

func TestPrivateMessagePersistFailureNoEcho(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	a.reset()
	f.msgs.FailCreates(errors.New("store down"))

	err := f.router.Private(context.Background(), a, protocol.PrivateMessageSend{
		Type: protocol.TypePrivateMessage, ToUserID: "222222222", Message: strptr("hi"),
	})
	if err == nil {
		t.Fatal("expected persist error")
	}
	if n := len(framesOf[protocol.PrivateMessage](a)); n != 0 {
		t.Errorf("echo sent despite abandoned operation (%d frames)", n)
	}
	if a.isClosed() {
		t.Error("store failure must not close the connection")
	}
}

func TestAnonymousPrivateMessageIgnored(t *testing.T) {
	f := newFixture()
	anon := newFakePeer("anon")
	f.registry.Join(anon)

	err := f.router.Private(context.Background(), anon, protocol.PrivateMessageSend{
		Type: protocol.TypePrivateMessage, ToUserID: "222222222", Message: strptr("hi"),
	})
	if err != nil {
		t.Fatalf("Private returned %v", err)
	}
	if n := len(f.msgs.All()); n != 0 {
		t.Errorf("anonymous send persisted %d rows", n)
	}
}

func TestDeleteForEveryoneRelayedLive(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	b := f.connect(t, "222222222", "B")
	a.reset()
	b.reset()

	del := protocol.DeleteForEveryone{
		Type:       protocol.TypeDeleteForEveryone,
		ChatKey:    "chat_111111111_222222222",
		Timestamps: []string{"10:15:30 AM"},
	}
	if err := f.router.DeleteForEveryone(context.Background(), a, del); err != nil {
		t.Fatalf("DeleteForEveryone failed: %v", err)
	}

	// Both participants get the relay, the initiator included.
	for _, p := range []*fakePeer{a, b} {
		got := framesOf[protocol.DeleteForEveryone](p)
		if len(got) != 1 {
			t.Fatalf("%s got %d delete events, want 1", p.name, len(got))
		}
		if got[0].ChatKey != del.ChatKey || len(got[0].Timestamps) != 1 || got[0].Timestamps[0] != "10:15:30 AM" {
			t.Errorf("%s relay: %+v", p.name, got[0])
		}
	}
	if n := len(f.msgs.All()); n != 0 {
		t.Errorf("live relay persisted %d rows", n)
	}
}

func TestDeleteForEveryoneStoredForOfflineParticipant(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")

	del := protocol.DeleteForEveryone{
		Type:       protocol.TypeDeleteForEveryone,
		ChatKey:    "chat_111111111_222222222",
		Timestamps: []string{"10:15:30 AM"},
	}
	if err := f.router.DeleteForEveryone(context.Background(), a, del); err != nil {
		t.Fatalf("DeleteForEveryone failed: %v", err)
	}

	rows := f.msgs.All()
	if len(rows) != 1 {
		t.Fatalf("stored %d marker rows, want 1", len(rows))
	}
	if !rows[0].DeleteMarker || rows[0].ReceiverID != "222222222" || rows[0].SenderID != "111111111" {
		t.Errorf("marker row: %+v", rows[0])
	}

	b := f.connect(t, "222222222", "B")
	got := framesOf[protocol.DeleteForEveryone](b)
	if len(got) != 1 {
		t.Fatalf("B got %d delete events, want 1", len(got))
	}
	if got[0].ChatKey != del.ChatKey {
		t.Errorf("chatKey: %q", got[0].ChatKey)
	}
	if len(got[0].Timestamps) != 1 || got[0].Timestamps[0] != "10:15:30 AM" {
		t.Errorf("timestamps: %v", got[0].Timestamps)
	}

	// Markers are consumed on delivery.
	if n := len(f.msgs.All()); n != 0 {
		t.Errorf("%d marker rows survived delivery", n)
	}
	b.reset()
	f.router.Identify(context.Background(), b, protocol.Identify{
		Type: protocol.TypeIdentify, UserID: "222222222", Username: "B",
	})
	if n := len(framesOf[protocol.DeleteForEveryone](b)); n != 0 {
		t.Errorf("re-identify redelivered %d delete events", n)
	}
}

func TestDeleteForEveryoneFlagsMatchingPendingMessage(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")

	if err := f.router.Private(context.Background(), a, protocol.PrivateMessageSend{
		Type: protocol.TypePrivateMessage, ToUserID: "222222222", Message: strptr("oops"),
	}); err != nil {
		t.Fatalf("Private failed: %v", err)
	}
	rows := f.msgs.All()
	if len(rows) != 1 {
		t.Fatalf("setup persisted %d rows", len(rows))
	}
	ts := framesOf[protocol.PrivateMessage](a)
	sentAt := ts[len(ts)-1].Time

	if err := f.router.DeleteForEveryone(context.Background(), a, protocol.DeleteForEveryone{
		Type:       protocol.TypeDeleteForEveryone,
		ChatKey:    "chat_111111111_222222222",
		Timestamps: []string{sentAt},
	}); err != nil {
		t.Fatalf("DeleteForEveryone failed: %v", err)
	}

	rows = f.msgs.All()
	if len(rows) != 1 {
		t.Fatalf("expected the existing row to be flagged, got %d rows", len(rows))
	}
	if !rows[0].DeleteMarker {
		t.Error("existing pending message was not flagged as a delete marker")
	}

	// B reconnects: the retracted message must arrive as a delete event,
	// not as content.
	b := f.connect(t, "222222222", "B")
	if n := len(framesOf[protocol.PrivateMessage](b)); n != 0 {
		t.Errorf("retracted message delivered as content (%d frames)", n)
	}
	dels := framesOf[protocol.DeleteForEveryone](b)
	if len(dels) != 1 || dels[0].Timestamps[0] != sentAt {
		t.Errorf("delete events: %v", dels)
	}
}

func TestDeleteMarkersGroupedByConversation(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	c := f.connect(t, "333333333", "C")

	send := func(peer *fakePeer, key string, stamps []string) {
		t.Helper()
		if err := f.router.DeleteForEveryone(context.Background(), peer, protocol.DeleteForEveryone{
			Type: protocol.TypeDeleteForEveryone, ChatKey: key, Timestamps: stamps,
		}); err != nil {
			t.Fatalf("DeleteForEveryone failed: %v", err)
		}
	}
	send(a, "chat_111111111_222222222", []string{"10:15:30 AM", "10:16:00 AM"})
	send(c, "chat_222222222_333333333", []string{"11:00:00 AM"})

	b := f.connect(t, "222222222", "B")
	dels := framesOf[protocol.DeleteForEveryone](b)
	if len(dels) != 2 {
		t.Fatalf("B got %d delete events, want one per conversation (2)", len(dels))
	}

	byKey := make(map[string][]string)
	for _, d := range dels {
		byKey[d.ChatKey] = d.Timestamps
	}
	if got := byKey["chat_111111111_222222222"]; len(got) != 2 || got[0] != "10:15:30 AM" || got[1] != "10:16:00 AM" {
		t.Errorf("A's conversation timestamps: %v", got)
	}
	if got := byKey["chat_222222222_333333333"]; len(got) != 1 || got[0] != "11:00:00 AM" {
		t.Errorf("C's conversation timestamps: %v", got)
	}
}

func TestTypingToRecipient(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	b := f.connect(t, "222222222", "B")
	watcher := f.connect(t, "999999999", "W")
	b.reset()
	watcher.reset()

	f.router.Typing(a, protocol.Typing{
		Type: protocol.TypeTyping, FromUserID: "111111111", ToUserID: "222222222", Username: "A",
	})

	got := framesOf[protocol.Typing](b)
	if len(got) != 1 || got[0].FromUserID != "111111111" || got[0].Username != "A" {
		t.Errorf("recipient typing frames: %v", got)
	}
	if n := len(framesOf[protocol.Typing](watcher)); n != 0 {
		t.Errorf("directed typing leaked to %d other connections", n)
	}
	if n := len(f.msgs.All()); n != 0 {
		t.Error("typing event was persisted")
	}
}

func TestTypingBroadcastWithoutRecipient(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	b := f.connect(t, "222222222", "B")
	b.reset()
	a.reset()

	f.router.Typing(a, protocol.Typing{Type: protocol.TypeStopTyping, Username: "A"})

	if n := len(framesOf[protocol.Typing](b)); n != 1 {
		t.Errorf("B got %d stop-typing frames, want 1", n)
	}
	if n := len(framesOf[protocol.Typing](a)); n != 0 {
		t.Errorf("broadcast typing echoed to sender (%d frames)", n)
	}
}

func TestPlainChatBroadcastAndLog(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	b := f.connect(t, "222222222", "B")
	a.reset()
	b.reset()

	f.router.PlainChat(context.Background(), a, "hello everyone")

	// Broadcast reaches every connection exactly once, sender included.
	for _, p := range []*fakePeer{a, b} {
		got := framesOf[protocol.ChatMessage](p)
		if len(got) != 1 {
			t.Fatalf("%s got %d chat messages, want 1", p.name, len(got))
		}
		if got[0].UserID != "111111111" || got[0].Username != "A" || got[0].Message != "hello everyone" {
			t.Errorf("%s chat frame: %+v", p.name, got[0])
		}
	}

	entries := f.chat.Entries()
	if len(entries) != 1 {
		t.Fatalf("chat log has %d entries, want 1", len(entries))
	}
	if entries[0].UserID != "111111111" || entries[0].Body != "hello everyone" {
		t.Errorf("chat log entry: %+v", entries[0])
	}
}

func TestPlainChatFromAnonymous(t *testing.T) {
	f := newFixture()
	anon := newFakePeer("anon")
	f.registry.Join(anon)
	b := f.connect(t, "222222222", "B")
	b.reset()

	f.router.PlainChat(context.Background(), anon, "who am I")

	got := framesOf[protocol.ChatMessage](b)
	if len(got) != 1 || got[0].Username != "Unknown" {
		t.Errorf("anonymous chat attribution: %v", got)
	}
}

func TestDisconnectAnnouncesDeparture(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	b := f.connect(t, "222222222", "B")
	b.reset()

	f.router.Disconnect(a)

	chats := framesOf[protocol.ChatMessage](b)
	if len(chats) != 1 || chats[0].Message != "A has left the chat." {
		t.Errorf("departure notice: %v", chats)
	}
	lists := framesOf[protocol.OnlineUsers](b)
	if len(lists) != 1 || len(lists[0].Users) != 1 || lists[0].Users[0].UserID != "222222222" {
		t.Errorf("presence after disconnect: %v", lists)
	}
}

func TestDisconnectAnonymousIsSilent(t *testing.T) {
	f := newFixture()
	anon := newFakePeer("anon")
	f.registry.Join(anon)
	b := f.connect(t, "222222222", "B")
	b.reset()

	f.router.Disconnect(anon)

	if n := len(b.sent()); n != 0 {
		t.Errorf("anonymous disconnect produced %d frames", n)
	}
}

func TestConcurrentConversationResolutionSingleRow(t *testing.T) {
	f := newFixture()
	a := f.connect(t, "111111111", "A")
	b := f.connect(t, "222222222", "B")

	done := make(chan error, 2)
	go func() {
		done <- f.router.Private(context.Background(), a, protocol.PrivateMessageSend{
			Type: protocol.TypePrivateMessage, ToUserID: "222222222", Message: strptr("from A"),
		})
	}()
	go func() {
		done <- f.router.Private(context.Background(), b, protocol.PrivateMessageSend{
			Type: protocol.TypePrivateMessage, ToUserID: "111111111", Message: strptr("from B"),
		})
	}()
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Private failed: %v", err)
		}
	}

	if f.convs.Len() != 1 {
		t.Errorf("concurrent first contact created %d conversations, want 1", f.convs.Len())
	}
}
