package redis

import "strings"

const defaultNamespace = "tk"

// Keys builds colon separated keys under one namespace. Blank parts are
// skipped so an empty id never yields a trailing separator.
type Keys struct {
	Namespace string
}

func (k Keys) Build(parts ...string) string {
	ns := strings.TrimSpace(k.Namespace)
	if ns == "" {
		ns = defaultNamespace
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// IdempotencyKey namespaces replay and claim markers.
func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keyspace().Build("idempotency", scope, id)
}

// LiveChannel names the pub/sub channel for a fan-out scope.
func (c *Client) LiveChannel(scope, id string) string {
	return c.keyspace().Build("live", scope, id)
}

// LockKey names a maintenance lease.
func (c *Client) LockKey(name string) string {
	return c.keyspace().Build("maintenance", "lock", name)
}

func (c *Client) keyspace() Keys {
	if c == nil {
		return Keys{}
	}
	return c.keys
}
