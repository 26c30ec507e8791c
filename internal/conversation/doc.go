// Package conversation keeps the short-lived context of a phone conversation
// so that follow-up commands like "move that cooking thing to 2pm" can be
// resolved against what the caller just heard.
//
// Each session holds the last query, the events returned by the most recent
// listing and a bounded history of tool invocations. Stores are keyed by a
// session id supplied per call. MemoryStore serves a single process and
// RedisStore shares sessions between instances.
//
// ResolveReference is the pure resolution algorithm both stores use for
// FindEventByReference.
package conversation
