package relay

import "context"

// ContentKind enumerates the message shapes the relay can carry.
type ContentKind int

const (
	KindText ContentKind = iota
	KindPhoto
	KindVideo
	KindDocument
	KindVoice
	KindAudio
)

// Content is one transport-agnostic message part. Text kinds carry Text;
// media kinds carry a platform FileID plus an optional Caption.
type Content struct {
	Kind    ContentKind
	Text    string
	FileID  string
	Caption string
}

// IsMedia reports whether the part can be a member of a media album.
// Voice and audio cannot be grouped by the platform.
func (c Content) IsMedia() bool {
	switch c.Kind {
	case KindPhoto, KindVideo, KindDocument:
		return true
	}
	return false
}

// Profile identifies an inbound user.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// MessageRef is a handle to a message the bot has sent.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// ControlState selects which inline control affordance a message carries.
type ControlState int

const (
	ControlsNone        ControlState = iota // remove controls
	ControlsQuestion                        // reply / block / ignore
	ControlsCancelReply                     // cancel the active reply
	ControlsAnswered                        // terminal "answered" label
)

// Controls describes the affordance attached to an operator-facing message.
type Controls struct {
	State   ControlState
	UserID  int64 // the user the controls act on
	Blocked bool  // renders the block button as unblock
}

// Transport delivers content to recipients. Implementations return a handle
// to the sent message or fail; no retries are expected at this level.
type Transport interface {
	Send(ctx context.Context, chatID int64, c Content, controls *Controls) (MessageRef, error)
	SendAlbum(ctx context.Context, chatID int64, parts []Content) ([]MessageRef, error)
	EditControls(ctx context.Context, ref MessageRef, controls Controls) error
}
