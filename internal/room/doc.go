// Package room owns live room membership and fan-out.
//
// A room is a broadcast group keyed by conversation ID. Membership is
// transient: connections join and leave, and nothing is buffered for a room
// with no members. Durability belongs to the store.
//
//	m := room.NewManager(logger)
//	m.Join(conn, "r1")
//	m.Broadcast("r1", turn)
//	m.LeaveAll(conn.ID())
//
// Delivery never blocks the caller. Each Member decides how to queue an
// event, and a member that cannot accept one is skipped.
package room
