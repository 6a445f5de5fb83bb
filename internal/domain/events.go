package domain

// Realtime event names exchanged over the websocket.
const (
	EventNewMessage     = "newMessage"
	EventRoomsChanged   = "roomsChanged"
	EventRoomError      = "roomError"
	EventRoomSubscribed = "roomSubscribed"
	EventError          = "error"

	EventSubscribeRoom   = "subscribeRoom"
	EventUnsubscribeRoom = "unsubscribeRoom"
)

type RoomErrorPayload struct {
	RoomID string `json:"roomId"`
	Error  string `json:"error"`
}

type RoomPayload struct {
	RoomID string `json:"roomId"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
