// Package entity defines entity identity, type tags, and the component
// records that make up an entity's state bundle.
package entity

import "fmt"

// ID identifies an entity for the lifetime of a run. IDs are assigned
// monotonically and never reused, so a despawned entity's ID stays dangling
// rather than aliasing a newcomer.
type ID uint64

func (id ID) String() string { return fmt.Sprintf("E%d", uint64(id)) }

// Tag is the closed set of entity kinds. A tag is fixed at spawn; changing
// kind means despawning and spawning a new identity.
type Tag uint8

const (
	TagShip Tag = iota // mobile unit
	TagPlatform
	TagProjectile
	TagSquadron // group of units acting as one entity
)

var tagNames = [...]string{"ship", "platform", "projectile", "squadron"}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// ParseTag maps a scenario-file tag name to its Tag value.
func ParseTag(s string) (Tag, error) {
	for i, name := range tagNames {
		if name == s {
			return Tag(i), nil
		}
	}
	return 0, fmt.Errorf("unknown entity tag %q", s)
}

// Entity is an identity plus its tag and component bundle.
type Entity struct {
	ID     ID
	Tag    Tag
	Bundle Bundle
}

// Clone deep-copies the entity for the next state generation.
func (e *Entity) Clone() *Entity {
	return &Entity{ID: e.ID, Tag: e.Tag, Bundle: e.Bundle.Clone()}
}
