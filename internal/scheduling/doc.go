// Package scheduling assigns simulation groups to rooms over time windows.
//
// The AvailabilityChecker answers read-only feasibility questions (free rooms,
// sufficient seats) and the Scheduler commits a Simulation together with one
// Booking per room. Booking mutation is serialized per room twice over: an
// in-process RoomReserver token bounds concurrent requests, and the Store
// locks the room rows inside its transaction so separate processes sharing one
// database cannot double-book either.
package scheduling
