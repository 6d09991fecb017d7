/*
Package ports defines the driven ports (interfaces) for the stageflow engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various configuration sources, deciders and session stores.

# Key Interfaces

  - StageLoader: Loads stage records (e.g., from Loam, a JSON/YAML file or Memory).
  - Decider: Picks the reply and next stage for a turn (e.g., an LLM via eino).
  - SessionStore: Keeps ConversationSessions between turns.
  - DistributedLocker: Provides distributed locking for concurrent conversation access.
  - ConversationEngine: The facade consumed by the HTTP and MCP adapters.
*/
package ports
