/*
Package domain contains the core domain models for the stageflow engine.

It defines the conversation graph (Stages and their NextStage edges), the caller-owned
ConversationSession, the Decision produced by an external decider, the error taxonomy,
and the lifecycle hooks. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Stage: A phase of dialogue (START, NORMAL, END or GLOBAL) with its prompt text.
  - NextStage: An advisory edge; its condition is read by the decider, never evaluated.
  - ConversationSession: Message history, pending input and active stage of one conversation.
  - Decision: The {response, next_stage, confidence} triple returned for each turn.
*/
package domain
