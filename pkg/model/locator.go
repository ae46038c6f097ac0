package model

import "fmt"

// Id is an opaque Mattermost entity identifier. Only equality is
// meaningful.
type Id string

// EntityLocator is a user-supplied reference to a team, channel or
// user: exactly one of an opaque id, a display name, or an internal
// name.
type EntityLocator struct {
	ID           Id     `json:"id,omitempty"           mapstructure:"id"           yaml:"id,omitempty"`
	Name         string `json:"name,omitempty"         mapstructure:"name"         yaml:"name,omitempty"`
	InternalName string `json:"internalName,omitempty" mapstructure:"internalName" yaml:"internalName,omitempty"`
}

// Validate checks that exactly one identificator is present.
func (l EntityLocator) Validate() error {
	n := 0
	if l.ID != "" {
		n++
	}
	if l.Name != "" {
		n++
	}
	if l.InternalName != "" {
		n++
	}
	switch n {
	case 0:
		return fmt.Errorf("locator has no identificator")
	case 1:
		return nil
	default:
		return fmt.Errorf("locator has multiple (possibly conflicting) identificators")
	}
}

func (l EntityLocator) String() string {
	switch {
	case l.ID != "":
		return fmt.Sprintf("id=%s", l.ID)
	case l.InternalName != "":
		return fmt.Sprintf("internalName=%s", l.InternalName)
	default:
		return fmt.Sprintf("name=%s", l.Name)
	}
}
