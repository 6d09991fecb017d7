/*
Package decider provides ports.Decider implementations that need no model
backend, plus ParseDecision for turning raw model output into a domain.Decision.

Func adapts a plain function. Scripted replays a fixed list of replies and is
meant for demos and tests. Keyword picks an edge by matching the user's words
against edge conditions, which is enough to walk a graph offline.

LLM-backed deciders live in pkg/adapters/eino.
*/
package decider
