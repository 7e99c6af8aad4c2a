// Package memory provides Store, an in-process implementation of the Redis stream
// commands used by the redisstream provider. It backs the "memory" backend for local
// runs and the provider's tests.
package memory
