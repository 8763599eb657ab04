package domain

// Wire tags for events pushed to subscribed clients.
const (
	EventNewChat        = "new_chat"
	EventAddToChat      = "add_to_chat"
	EventRemoveFromChat = "remove_from_chat"
	EventNewMessage     = "new_message"
)

// AppEvent is a closed union of everything the server pushes to live
// clients. Each variant carries the affected aggregate and maps to one of
// the wire tags above. Events are constructed once by the dispatcher and
// shared read-only across every subscriber they fan out to.
type AppEvent interface {
	// EventName returns the stable wire tag used as the SSE event name.
	EventName() string

	appEvent()
}

type NewChat struct {
	Chat Chat
}

type AddToChat struct {
	Chat Chat
}

type RemoveFromChat struct {
	Chat Chat
}

type NewMessage struct {
	Msg Msg
}

func (NewChat) EventName() string        { return EventNewChat }
func (AddToChat) EventName() string      { return EventAddToChat }
func (RemoveFromChat) EventName() string { return EventRemoveFromChat }
func (NewMessage) EventName() string     { return EventNewMessage }

func (NewChat) appEvent()        {}
func (AddToChat) appEvent()      {}
func (RemoveFromChat) appEvent() {}
func (NewMessage) appEvent()     {}
