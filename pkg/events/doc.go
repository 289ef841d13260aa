/*
Package events provides an in-memory pub/sub broker for the updater's
domain events (UpgradeDetected, UpdateStarted, StepCompleted,
UpdateFinished). Publishers never block on slow subscribers: each
subscriber has a bounded buffer and events are dropped rather than
stalling the engine when that buffer is full.
*/
package events
