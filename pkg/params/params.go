// Package params parses and caches device parameters listed by param.cgi.
package params

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

const (
	logPrefix = "params:cache"

	// Endpoint is the parameter listing endpoint.
	Endpoint = "/axis-cgi/param.cgi"

	// GroupAudio holds audio channel configuration.
	GroupAudio = "root.Audio"
	// GroupProperties holds the legacy capability flags.
	GroupProperties = "root.Properties"

	propertyBlockID = "0"
)

// ListPath returns the param.cgi path listing group.
func ListPath(group string) string {
	q := url.Values{}
	q.Set("action", "list")
	q.Set("group", group)
	return Endpoint + "?" + q.Encode()
}

// AudioParam is one audio channel's configuration.
type AudioParam struct {
	Index  string            `json:"index"`
	Name   string            `json:"name,omitempty"`
	Fields map[string]string `json:"fields"`
}

// Cache holds the last listed value of every parameter. Safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{values: make(map[string]string)}
}

// Apply replaces everything under group with the parameters in body.
func (c *Cache) Apply(group string, body []byte) error {
	parsed, err := Parse(body)
	if err != nil {
		return err
	}

	prefix := group + "."
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.values {
		if key == group || strings.HasPrefix(key, prefix) {
			delete(c.values, key)
		}
	}
	for key, value := range parsed {
		c.values[key] = value
	}
	return nil
}

// Get returns one parameter value.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// Group returns every parameter under group with the group prefix removed.
func (c *Cache) Group(group string) map[string]string {
	prefix := group + "."
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string)
	for key, value := range c.values {
		if strings.HasPrefix(key, prefix) {
			out[strings.TrimPrefix(key, prefix)] = value
		}
	}
	return out
}

// PropertyBlock returns the legacy property block. Only block "0" exists.
func (c *Cache) PropertyBlock(blockID string) (map[string]string, bool) {
	if blockID != propertyBlockID {
		return nil, false
	}
	block := c.Group(GroupProperties)
	if len(block) == 0 {
		return nil, false
	}
	return block, true
}

// AudioParams returns audio channels keyed by index ("A0.Name" -> index "0").
func (c *Cache) AudioParams() map[string]AudioParam {
	out := make(map[string]AudioParam)
	for key, value := range c.Group(GroupAudio) {
		channel, field, ok := strings.Cut(key, ".")
		if !ok || len(channel) < 2 || channel[0] != 'A' {
			continue
		}
		index := channel[1:]
		p, ok := out[index]
		if !ok {
			p = AudioParam{Index: index, Fields: make(map[string]string)}
		}
		p.Fields[field] = value
		if field == "Name" {
			p.Name = value
		}
		out[index] = p
	}
	return out
}

// Parse reads "key=value" lines. A body starting with "# Error" is a device error.
func Parse(body []byte) (map[string]string, error) {
	out := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.HasPrefix(line, "# Error") {
			return nil, fmt.Errorf("%s - device error: %s", logPrefix, strings.TrimSpace(strings.TrimPrefix(line, "#")))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%s - malformed parameter line %q", logPrefix, line)
		}
		out[strings.TrimSpace(key)] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s - read parameters: %w", logPrefix, err)
	}
	return out, nil
}
