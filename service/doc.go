// Package service orchestrates the engine's collaborators: one
// single-writer Market actor per book, the Exchange that routes inbound
// order events to them, the outbox that holds execution reports for the
// broker, and the live depth feed.
//
// All engine mutation funnels through a Market's mailbox; nothing else may
// touch a book.
package service
