/*
Package ports defines the driven ports (interfaces) of the orchestration engine.

These interfaces decouple workflows from their storage and delivery backends.

# Key Interfaces

  - CheckpointStore: persists the durable snapshot of each run.
  - StepLog: appends the human-readable transcript of closed steps.
  - FeedbackSink: stages clarified operator feedback.
  - DistributedLocker: serializes runs of the same worker across replicas.
*/
package ports
