/*
Package domain contains the core domain models shared by the canopy engine.

It defines the entities that flow between the state machine, the workflow and the
adapters. This package is kept pure and free of external dependencies like I/O or
persistence, following Hexagonal Architecture principles.

# Key Entities

  - Message: A single conversation turn sent to the text-generation backend.
  - Step: One plan, implement, execute and verify cycle of a task.
  - Checkpoint: A durable snapshot of a run (state path, step number, status).
  - WorkerInfo: The public description of a registered worker.
  - LifecycleHooks: Observability callbacks fired by the engine.
*/
package domain
