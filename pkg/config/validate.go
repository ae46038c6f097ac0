package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks structural constraints (tags) plus the rules the
// tags cannot express: locator well-formedness and per-patch option
// sanity, across every scope.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	for i, patch := range []*ChannelOptionsPatch{
		cfg.DefaultChannelOptions,
		cfg.UserChannelOptions,
		cfg.GroupChannelOptions,
		cfg.PrivateChannelOptions,
		cfg.PublicChannelOptions,
	} {
		if err := patch.validate(); err != nil {
			scope := []string{
				"defaultChannelOptions", "userChannelOptions", "groupChannelOptions",
				"privateChannelOptions", "publicChannelOptions",
			}[i]
			return fmt.Errorf("%w: %s: %v", ErrConfiguration, scope, err)
		}
	}

	for i := range cfg.Users {
		spec := &cfg.Users[i]
		if err := spec.EntityLocator.Validate(); err != nil {
			return fmt.Errorf("%w: users[%d]: %v", ErrConfiguration, i, err)
		}
		if err := spec.ChannelOptionsPatch.validate(); err != nil {
			return fmt.Errorf("%w: users[%d]: %v", ErrConfiguration, i, err)
		}
	}

	for i := range cfg.Groups {
		spec := &cfg.Groups[i]
		if err := validateGroupLocator(spec.Group); err != nil {
			return fmt.Errorf("%w: groups[%d]: %v", ErrConfiguration, i, err)
		}
		if err := spec.ChannelOptionsPatch.validate(); err != nil {
			return fmt.Errorf("%w: groups[%d]: %v", ErrConfiguration, i, err)
		}
	}

	for i := range cfg.Teams {
		if err := validateTeam(&cfg.Teams[i]); err != nil {
			return fmt.Errorf("%w: teams[%d]: %v", ErrConfiguration, i, err)
		}
	}
	return nil
}

func validateTeam(team *TeamSpec) error {
	if err := team.Team.Validate(); err != nil {
		return err
	}
	for _, patch := range []*ChannelOptionsPatch{
		team.DefaultChannelOptions, team.PrivateChannelOptions, team.PublicChannelOptions,
	} {
		if err := patch.validate(); err != nil {
			return err
		}
	}
	for i := range team.PrivateChannels {
		if err := validateChannelSpec(&team.PrivateChannels[i]); err != nil {
			return fmt.Errorf("privateChannels[%d]: %w", i, err)
		}
	}
	for i := range team.PublicChannels {
		if err := validateChannelSpec(&team.PublicChannels[i]); err != nil {
			return fmt.Errorf("publicChannels[%d]: %w", i, err)
		}
	}
	return nil
}

func validateChannelSpec(spec *ChannelSpec) error {
	if err := spec.EntityLocator.Validate(); err != nil {
		return err
	}
	return spec.ChannelOptionsPatch.validate()
}

func validateGroupLocator(g GroupLocator) error {
	if g.ID != "" && len(g.Members) > 0 {
		return fmt.Errorf("group locator has both an id and a member list")
	}
	if g.ID == "" && len(g.Members) == 0 {
		return fmt.Errorf("group locator is empty")
	}
	for i, member := range g.Members {
		if err := member.Validate(); err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
	}
	return nil
}
