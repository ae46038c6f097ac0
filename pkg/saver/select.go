package saver

import (
	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/config"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

// channelRequest is one channel selected for archiving, with its
// resolved options and the archive stem it will be stored under.
type channelRequest struct {
	// team is nil for direct and group channels.
	team    *model.Team
	channel *model.Channel
	opts    config.ChannelOptions
	stem    string
	// seedUsers are recorded in the header even when they authored no
	// stored post, e.g. both members of a direct conversation.
	seedUsers []model.User
}

// selectChannels resolves the configured selection against the loaded
// teams. Locators that match nothing produce warnings, never errors:
// one stale entry must not block the rest of the run.
func (s *Saver) selectChannels(teams []*model.Team) []channelRequest {
	direct, groups := collectGlobalChannels(teams)

	out := s.selectDirectChannels(direct)
	out = append(out, s.selectGroupChannels(groups)...)

	matchedTeams := make([]bool, len(s.cfg.Teams))
	for _, team := range teams {
		for i := range s.cfg.Teams {
			if team.Matches(s.cfg.Teams[i].Team) {
				matchedTeams[i] = true
			}
		}
		out = append(out, s.selectTeamChannels(team)...)
	}
	for i, ok := range matchedTeams {
		if !ok {
			logger.Warn("Requested team is not joined by the user",
				logger.KeyTeam, s.cfg.Teams[i].Team.String())
		}
	}
	return out
}

// userByLocator resolves an entity locator to a user. Users have no
// internal name distinct from their username, so both name forms query
// the same endpoint.
func (s *Saver) userByLocator(l model.EntityLocator) (model.User, error) {
	if l.ID != "" {
		return s.client.UserByID(l.ID)
	}
	if l.Name != "" {
		return s.client.UserByName(l.Name)
	}
	return s.client.UserByName(l.InternalName)
}

func (s *Saver) selectDirectChannels(direct []*model.Channel) []channelRequest {
	type wish struct {
		user    model.User
		opts    config.ChannelOptions
		matched bool
	}
	wishes := map[string]*wish{}
	for i := range s.cfg.Users {
		spec := &s.cfg.Users[i]
		u, err := s.userByLocator(spec.EntityLocator)
		if err != nil {
			logger.Warn("Requested user could not be resolved",
				logger.KeyUser, spec.EntityLocator.String(),
				logger.KeyError, err)
			continue
		}
		name := s.client.DirectChannelNameWith(u.ID)
		if _, dup := wishes[name]; dup {
			logger.Warn("Duplicate direct channel request ignored", logger.KeyUser, u.Name)
			continue
		}
		wishes[name] = &wish{user: u, opts: spec.Resolve(s.cfg.DirectChannelDefaults)}
	}

	var out []channelRequest
	for _, ch := range direct {
		if w, ok := wishes[ch.InternalName]; ok {
			w.matched = true
			out = append(out, channelRequest{
				channel:   ch,
				opts:      w.opts,
				stem:      archive.DirectStem(s.user.Name, w.user.Name),
				seedUsers: []model.User{s.user, w.user},
			})
			continue
		}
		if !s.cfg.MiscDirectChannels() {
			continue
		}
		peerID, err := s.client.PeerOfDirectChannel(ch.InternalName)
		if err != nil {
			logger.Warn("Direct channel skipped", logger.KeyChannel, ch.InternalName, logger.KeyError, err)
			continue
		}
		peer, err := s.client.UserByID(peerID)
		if err != nil {
			logger.Warn("Peer of direct channel could not be resolved, channel skipped",
				logger.KeyChannel, ch.InternalName, logger.KeyError, err)
			continue
		}
		out = append(out, channelRequest{
			channel:   ch,
			opts:      s.cfg.DirectChannelDefaults,
			stem:      archive.DirectStem(s.user.Name, peer.Name),
			seedUsers: []model.User{s.user, peer},
		})
	}

	for _, w := range wishes {
		if !w.matched {
			logger.Warn("No direct channel with requested user exists", logger.KeyUser, w.user.Name)
		}
	}
	return out
}

func (s *Saver) selectGroupChannels(groups []*model.Channel) []channelRequest {
	type wish struct {
		spec *config.GroupChannelSpec
		opts config.ChannelOptions
		// members is the requested member id set (local user included);
		// nil when the group is located by id.
		members map[model.Id]bool
		bad     bool
		matched bool
	}
	wishes := make([]*wish, 0, len(s.cfg.Groups))
	for i := range s.cfg.Groups {
		spec := &s.cfg.Groups[i]
		w := &wish{spec: spec, opts: spec.Resolve(s.cfg.GroupChannelDefaults)}
		if spec.Group.ID == "" {
			ids := map[model.Id]bool{s.user.ID: true}
			for _, ml := range spec.Group.Members {
				u, err := s.userByLocator(ml)
				if err != nil {
					logger.Warn("Group member could not be resolved",
						logger.KeyUser, ml.String(), logger.KeyError, err)
					w.bad = true
					break
				}
				ids[u.ID] = true
			}
			w.members = ids
		}
		wishes = append(wishes, w)
	}

	var out []channelRequest
	for _, ch := range groups {
		var match *wish
		for _, w := range wishes {
			if w.bad || w.matched {
				continue
			}
			if w.spec.Group.ID != "" {
				if ch.ID == w.spec.Group.ID {
					match = w
					break
				}
				continue
			}
			if err := s.client.LoadChannelMembers(ch); err != nil {
				logger.Warn("Group channel members could not be listed",
					logger.KeyChannel, ch.InternalName, logger.KeyError, err)
				break
			}
			if memberSetEquals(ch.Members, w.members) {
				match = w
				break
			}
		}

		opts := s.cfg.GroupChannelDefaults
		if match != nil {
			match.matched = true
			opts = match.opts
		} else if !s.cfg.MiscGroupChannels() {
			continue
		}
		out = append(out, channelRequest{
			channel: ch,
			opts:    opts,
			stem:    s.groupStem(ch),
		})
	}

	for _, w := range wishes {
		if !w.bad && !w.matched {
			logger.Warn("No group channel matches the requested members", "group", w.spec.Group.String())
		}
	}
	return out
}

func memberSetEquals(members []model.User, wanted map[model.Id]bool) bool {
	if len(members) != len(wanted) {
		return false
	}
	for _, m := range members {
		if !wanted[m.ID] {
			return false
		}
	}
	return true
}

// groupStem names a group channel's archive by its sorted member
// usernames, falling back to the opaque channel id when the membership
// cannot be listed.
func (s *Saver) groupStem(ch *model.Channel) string {
	if err := s.client.LoadChannelMembers(ch); err != nil || len(ch.Members) == 0 {
		logger.Warn("Group channel members are unknown, archive named by channel id",
			logger.KeyChannel, ch.InternalName)
		return "g." + string(ch.ID)
	}
	names := make([]string, len(ch.Members))
	for i, m := range ch.Members {
		names[i] = m.Name
	}
	return archive.GroupStem(names)
}

func (s *Saver) selectTeamChannels(team *model.Team) []channelRequest {
	var spec *config.TeamSpec
	for i := range s.cfg.Teams {
		if team.Matches(s.cfg.Teams[i].Team) {
			spec = &s.cfg.Teams[i]
			break
		}
	}
	if spec == nil && !s.cfg.MiscTeams() {
		return nil
	}

	publicDefaults := s.cfg.PublicChannelDefaults
	privateDefaults := s.cfg.PrivateChannelDefaults
	miscPublic, miscPrivate := true, true
	var publicSpecs, privateSpecs []config.ChannelSpec
	if spec != nil {
		publicDefaults = spec.PublicDefaults(s.cfg.PublicChannelDefaults)
		privateDefaults = spec.PrivateDefaults(s.cfg.PrivateChannelDefaults)
		miscPublic, miscPrivate = spec.MiscPublic(), spec.MiscPrivate()
		publicSpecs, privateSpecs = spec.PublicChannels, spec.PrivateChannels
	}
	matchedPublic := make([]bool, len(publicSpecs))
	matchedPrivate := make([]bool, len(privateSpecs))

	var out []channelRequest
	for _, ch := range sortedChannels(team.Channels) {
		var specs []config.ChannelSpec
		var matched []bool
		var defaults config.ChannelOptions
		var misc, private bool
		switch ch.Type {
		case model.ChannelOpen:
			specs, matched, defaults, misc = publicSpecs, matchedPublic, publicDefaults, miscPublic
		case model.ChannelPrivate:
			specs, matched, defaults, misc, private = privateSpecs, matchedPrivate, privateDefaults, miscPrivate, true
		default:
			continue
		}

		idx := -1
		for i := range specs {
			if !matched[i] && ch.Matches(specs[i].EntityLocator) {
				idx = i
				break
			}
		}
		opts := defaults
		if idx >= 0 {
			matched[idx] = true
			opts = specs[idx].Resolve(defaults)
		} else if !misc {
			continue
		}
		out = append(out, channelRequest{
			team:    team,
			channel: ch,
			opts:    opts,
			stem:    archive.TeamChannelStem(team.InternalName, ch.InternalName, private),
		})
	}

	for i, ok := range matchedPublic {
		if !ok {
			logger.Warn("Requested public channel was not found in team",
				logger.KeyTeam, team.InternalName,
				logger.KeyChannel, publicSpecs[i].EntityLocator.String())
		}
	}
	for i, ok := range matchedPrivate {
		if !ok {
			logger.Warn("Requested private channel was not found in team",
				logger.KeyTeam, team.InternalName,
				logger.KeyChannel, privateSpecs[i].EntityLocator.String())
		}
	}
	return out
}
