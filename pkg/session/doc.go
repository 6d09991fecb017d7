/*
Package session serializes access to conversation sessions.

A Manager wraps a ports.SessionStore with per-conversation locks, so two turns
of the same conversation never interleave. An optional ports.DistributedLocker
extends the guarantee across replicas that share a store.
*/
package session
