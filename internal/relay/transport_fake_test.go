package relay

import (
	"context"
	"sync"
)

// fakeTransport records every delivery and can be told to fail per chat.
type fakeTransport struct {
	mu     sync.Mutex
	nextID int

	sent   []sentMessage
	albums []sentAlbum
	edits  []editCall

	failChats map[int64]error
}

type sentMessage struct {
	chatID   int64
	content  Content
	controls *Controls
	ref      MessageRef
}

type sentAlbum struct {
	chatID int64
	parts  []Content
	refs   []MessageRef
}

type editCall struct {
	ref      MessageRef
	controls Controls
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failChats: make(map[int64]error)}
}

func (f *fakeTransport) failChat(chatID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failChats[chatID] = err
}

func (f *fakeTransport) Send(_ context.Context, chatID int64, c Content, controls *Controls) (MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failChats[chatID]; err != nil {
		return MessageRef{}, err
	}
	f.nextID++
	ref := MessageRef{ChatID: chatID, MessageID: f.nextID}
	var cp *Controls
	if controls != nil {
		c2 := *controls
		cp = &c2
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, content: c, controls: cp, ref: ref})
	return ref, nil
}

func (f *fakeTransport) SendAlbum(_ context.Context, chatID int64, parts []Content) ([]MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failChats[chatID]; err != nil {
		return nil, err
	}
	refs := make([]MessageRef, 0, len(parts))
	for range parts {
		f.nextID++
		refs = append(refs, MessageRef{ChatID: chatID, MessageID: f.nextID})
	}
	f.albums = append(f.albums, sentAlbum{chatID: chatID, parts: append([]Content(nil), parts...), refs: refs})
	return refs, nil
}

func (f *fakeTransport) EditControls(_ context.Context, ref MessageRef, controls Controls) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editCall{ref: ref, controls: controls})
	return nil
}

func (f *fakeTransport) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeTransport) sentAlbums() []sentAlbum {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentAlbum(nil), f.albums...)
}

func (f *fakeTransport) editCalls() []editCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]editCall(nil), f.edits...)
}
