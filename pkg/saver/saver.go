// Package saver orchestrates one archiving run: it resolves the
// configured channel selection against the server, plans each
// channel's download against whatever a previous run left behind, and
// commits the results transactionally so an interrupted run never
// corrupts an archive.
package saver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/config"
	"github.com/mmdl/mattermost-dl/pkg/mmclient"
	"github.com/mmdl/mattermost-dl/pkg/model"
	"github.com/mmdl/mattermost-dl/pkg/recovery"
)

// Client is the server surface the saver needs. *mmclient.Client
// implements it; tests substitute a fake.
type Client interface {
	HasToken() bool
	Login(username, password string) error
	LoadLocalUser(username string) (model.User, error)
	Teams() (map[model.Id]*model.Team, error)
	LoadChannels(teamID model.Id) error
	LoadChannelMembers(channel *model.Channel) error

	UserByID(id model.Id) (model.User, error)
	UserByName(name string) (model.User, error)
	EmojiByName(name string) (model.Emoji, error)
	CacheEmoji(e model.Emoji)

	DirectChannelNameWith(otherUserID model.Id) string
	PeerOfDirectChannel(internalName string) (model.Id, error)

	PostTime(id model.Id) (model.Time, error)
	ProcessPosts(channel *model.Channel, opts mmclient.FetchOptions, processor func(model.Post, *mmclient.PostHints) error) (mmclient.FetchResult, error)
	ProcessEmojiList(maxCount int64, processor func(model.Emoji) error) error
	DownloadTo(path string, w io.Writer) (contentType string, err error)
}

// Saver drives one archiving run.
type Saver struct {
	client  Client
	cfg     *config.Config
	arbiter recovery.Arbiter

	// Redownload discards every previous archive instead of appending.
	Redownload bool

	user model.User
}

// New creates a saver. A nil arbiter falls back to the default
// non-destructive recovery policy.
func New(client Client, cfg *config.Config, arbiter recovery.Arbiter) *Saver {
	if arbiter == nil {
		arbiter = recovery.DefaultArbiter{}
	}
	return &Saver{client: client, cfg: cfg, arbiter: arbiter}
}

// Run performs the whole archiving session: login, channel discovery,
// selection, and one transactional download per selected channel. A
// failed channel does not abort the run; Run reports the failure count
// at the end. Cancelling the context stops the run after the current
// post.
func (s *Saver) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.cfg.Output.Directory, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if !s.client.HasToken() {
		if s.cfg.Connection.Password == "" {
			return fmt.Errorf("neither an access token nor a password is configured for %s", s.cfg.Connection.Username)
		}
		if err := s.client.Login(s.cfg.Connection.Username, s.cfg.Connection.Password); err != nil {
			return err
		}
		logger.Info("Logged in", logger.KeyUser, s.cfg.Connection.Username)
	}

	user, err := s.client.LoadLocalUser(s.cfg.Connection.Username)
	if err != nil {
		return fmt.Errorf("resolve local user: %w", err)
	}
	s.user = user

	teamsByID, err := s.client.Teams()
	if err != nil {
		return err
	}
	if len(teamsByID) == 0 {
		return fmt.Errorf("user %s is not a member of any team", user.Name)
	}
	teams := sortedTeams(teamsByID)
	for _, team := range teams {
		if err := s.client.LoadChannels(team.ID); err != nil {
			return fmt.Errorf("list channels of team %s: %w", team.InternalName, err)
		}
	}

	var failed int
	if s.cfg.DownloadEmojis {
		if err := s.downloadAllEmojis(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("Custom emoji download failed", logger.KeyError, err)
			failed++
		}
	}

	requests := s.selectChannels(teams)
	logger.Info("Channel selection complete", logger.KeyCount, len(requests))

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.processChannel(ctx, req); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("Channel could not be archived",
				logger.KeyChannel, req.channel.InternalName,
				logger.KeyError, err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d download(s) failed", failed)
	}
	logger.Info("All requested channels archived", logger.KeyCount, len(requests))
	return nil
}

// downloadAllEmojis fetches the server's whole custom emoji database
// and stores the images under the output directory, independently of
// which channels use them.
func (s *Saver) downloadAllEmojis(ctx context.Context) error {
	dir := filepath.Join(s.cfg.Output.Directory, emojiDirName)
	existing := listExistingByStem(dir)

	var stored, failures int
	err := s.client.ProcessEmojiList(0, func(e model.Emoji) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.storeEntityFile(dir, emojiStem(e), "", mmclient.EmojiImageURL(e), existing); err != nil {
			logger.Warn("Emoji image could not be downloaded",
				"emoji", e.Name, logger.KeyError, err)
			failures++
			return nil
		}
		stored++
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("Custom emoji images downloaded", logger.KeyCount, stored)
	if failures > 0 {
		return fmt.Errorf("%d emoji image(s) failed to download", failures)
	}
	return nil
}

// collectGlobalChannels gathers the direct and group channels from the
// teams' channel listings. The server reports them under every team,
// so they are deduplicated by id.
func collectGlobalChannels(teams []*model.Team) (direct, groups []*model.Channel) {
	seen := map[model.Id]bool{}
	for _, team := range teams {
		for _, ch := range sortedChannels(team.Channels) {
			if seen[ch.ID] {
				continue
			}
			switch ch.Type {
			case model.ChannelDirect:
				seen[ch.ID] = true
				direct = append(direct, ch)
			case model.ChannelGroup:
				seen[ch.ID] = true
				groups = append(groups, ch)
			}
		}
	}
	return direct, groups
}

func sortedTeams(teams map[model.Id]*model.Team) []*model.Team {
	out := make([]*model.Team, 0, len(teams))
	for _, t := range teams {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalName < out[j].InternalName })
	return out
}

func sortedChannels(channels map[model.Id]*model.Channel) []*model.Channel {
	out := make([]*model.Channel, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InternalName < out[j].InternalName })
	return out
}
