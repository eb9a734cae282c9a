// Package events implements a small in-process pub/sub broker the
// coordinator uses to announce blob and node lifecycle transitions
// (create, commit, update, delete, orphan, move, node join) to internal
// subscribers such as audit logging or webhook fan-out, without
// coupling the store, router and HTTP layers to a particular sink.
// The node.down event type is defined but nothing publishes it.
package events
