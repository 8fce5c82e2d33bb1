// Package catalog loads the fixed list of rooms offered to chat clients.
//
// The server never checks room ids against the catalog; it exists so that
// clients can present a room picker.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Room is one entry of the catalog.
type Room struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Catalog is an ordered list of rooms.
type Catalog struct {
	Rooms []Room `yaml:"rooms" json:"rooms"`
}

// ErrEmpty is returned by Validate when the catalog lists no rooms.
var ErrEmpty = errors.New("catalog lists no rooms")

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{Rooms: []Room{
		{ID: "general", Name: "📢 Announcements & Lounge"},
		{ID: "tech_qa", Name: "💻 Tech Q&A"},
		{ID: "frontend", Name: "⚛️ Frontend Study"},
	}}
}

// Load reads a YAML catalog file, expanding ${VAR} references first.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var c Catalog
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	return &c, nil
}

// LoadAndValidate loads the catalog at path, or the default when path is
// empty, and validates it.
func LoadAndValidate(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return c, nil
}

// Validate checks that every room has an id and that ids are unique. Rooms
// without a display name are named after their id.
func (c *Catalog) Validate() error {
	if len(c.Rooms) == 0 {
		return ErrEmpty
	}

	seen := make(map[string]struct{}, len(c.Rooms))
	for i := range c.Rooms {
		room := &c.Rooms[i]
		room.ID = strings.TrimSpace(room.ID)
		if room.ID == "" {
			return fmt.Errorf("room %d: missing id", i)
		}
		if _, dup := seen[room.ID]; dup {
			return fmt.Errorf("room %d: duplicate id %q", i, room.ID)
		}
		seen[room.ID] = struct{}{}
		if room.Name == "" {
			room.Name = room.ID
		}
	}
	return nil
}

// Lookup finds a room by id.
func (c *Catalog) Lookup(id string) (Room, bool) {
	for _, room := range c.Rooms {
		if room.ID == id {
			return room, true
		}
	}
	return Room{}, false
}
