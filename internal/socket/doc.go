// Package socket is the real-time channel between browsers and the chat core.
//
// Each WebSocket connection is a room.Member. Frames in both directions are
// JSON envelopes:
//
//	{"event": "send-message", "data": {"roomId": "r1", "content": "hi", "role": "user"}}
//
// Client events: join-room, leave-room, send-message, test-prompt and
// invoke-tool. Server events: receive-message, error, test-prompt-result and
// test-prompt-error.
//
// Validation failures go back to the sender only. Room-scoped events come
// from the room manager. A connection leaves every room when it closes.
//
// send-message may carry a clientMessageId. A second frame from the same
// sender with the same id, room and content within the dedupe window is
// dropped without a reply. The sender is the authenticated principal, or the
// optional senderId for anonymous clients, or else the connection.
package socket
