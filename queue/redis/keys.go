package redis

// Redis key naming conventions for queue data.
// All keys are prefixed with "curator:" to avoid collisions.

const keyPrefix = "curator:"

// readyKey returns the List holding waiting messages: curator:queue:{name}
func readyKey(name string) string { return keyPrefix + "queue:" + name }

// processingKey returns the List holding leased messages: curator:processing:{name}
func processingKey(name string) string { return keyPrefix + "processing:" + name }

// deadlinesKey returns the Hash mapping leased messages to their lease
// expiry (unix seconds): curator:deadlines:{name}
func deadlinesKey(name string) string { return keyPrefix + "deadlines:" + name }

// delayedKey returns the Sorted Set of delayed messages scored by due
// time (unix seconds): curator:delayed:{name}
func delayedKey(name string) string { return keyPrefix + "delayed:" + name }

// malformedKey returns the List where undecodable messages are parked
// for operator inspection: curator:malformed:{name}
func malformedKey(name string) string { return keyPrefix + "malformed:" + name }
