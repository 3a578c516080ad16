/*
Package session serializes access to runs and workers.

The Manager wraps a checkpoint store with per-key locks. Locks are reference
counted so idle keys are released, and an optional DistributedLocker extends
the exclusion across replicas.
*/
package session
