// Package mrdstorage provides a client for the MRD blob storage server. It
// stores serialized objects tagged with metadata (subject, device, session,
// name, custom tags, TTL) and retrieves them by querying those tags,
// optionally filtered by a point-in-time cutoff. Search results paginate
// transparently through a lazy Cursor, and all traffic runs over a transport
// that retries transient failures of idempotent requests with exponential
// backoff. Payload encoding is pluggable via the Serializer interface; JSON
// is the default, with gob and YAML implementations included.
package mrdstorage
