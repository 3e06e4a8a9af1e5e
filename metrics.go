package stampede

import "encoding/json"

// Metrics collects runtime metrics of a Registry.
// NOTE: none of the fields are "atomic" or otherwise protected for concurrent
//       access, because the registry updating this information is already
//       properly synchronized.
type Metrics struct {
	Name   string   // name of the registry
	Config struct { // static configuration
		MaxIdle int
	}
	Hits    int64 // Number of Gets that found a held or idle instance
	Misses  int64 // Number of Gets that created a new instance
	Added   int64 // Added - Removed = instances currently held or idle
	Removed int64 // see Added
}

// Hit increments the Hits count.
func (c *Metrics) Hit() {
	c.Hits++
}

// Miss increments the Misses count.
func (c *Metrics) Miss() {
	c.Misses++
}

// Add increments the Added count.
func (c *Metrics) Add() {
	c.Added++
}

// Remove increments the Removed count.
func (c *Metrics) Remove() {
	c.Removed++
}

func (c *Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.MarshalGeneric())
}

func (c *Metrics) String() string {
	res, _ := json.Marshal(c.MarshalGeneric())
	return string(res)
}

func (c *Metrics) MarshalGeneric() interface{} {
	m := map[string]interface{}{
		"hits":    c.Hits,
		"misses":  c.Misses,
		"added":   c.Added,
		"removed": c.Removed,
	}
	if c.Name != "" {
		m["name"] = c.Name
	}
	if c.Config.MaxIdle != 0 {
		m["config"] = map[string]interface{}{
			"max_idle": c.Config.MaxIdle,
		}
	}
	return m
}
