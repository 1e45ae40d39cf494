// Package mock provides test doubles for the ai package interfaces.
//
// The mocks default to deterministic behavior (hash-derived vectors,
// keyword classification, pattern-only entity extraction) so tests run
// without external services, and expose function fields for injecting
// custom behavior including failures.
package mock
