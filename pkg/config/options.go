package config

import (
	"fmt"

	"github.com/mmdl/mattermost-dl/internal/bytesize"
	"github.com/mmdl/mattermost-dl/pkg/model"
	"github.com/mmdl/mattermost-dl/pkg/recovery"
)

// ChannelOptions are the fully resolved download options for one
// channel, after every applicable defaulting scope has been applied.
type ChannelOptions struct {
	// AfterPost / BeforePost exclude the anchor posts themselves.
	AfterPost  model.Id
	BeforePost model.Id
	AfterTime  model.Time
	BeforeTime model.Time

	// PostLimit caps the archive's total post count; -1 means
	// unlimited and 0 fetches channel metadata only.
	PostLimit int64
	// PostSessionLimit caps the posts fetched in this run, with the
	// same -1/0 semantics.
	PostSessionLimit int64

	OnExistingCompatible   recovery.Action
	OnExistingIncompatible recovery.Action

	Direction model.OrderDirection

	Attachments AttachmentOptions
	Emojis      EmojiOptions
	Avatars     AvatarOptions
}

// AttachmentOptions control file-attachment downloads.
type AttachmentOptions struct {
	Download bool
	// MaxSize caps single attachments; 0 means no limit. Config files
	// may give it as a plain byte count or with a unit suffix ("10Mi").
	MaxSize bytesize.ByteSize
	// AllowedMimeTypes is an allowlist; empty means all types.
	AllowedMimeTypes []string
}

// EmojiOptions control custom-emoji handling for posts.
type EmojiOptions struct {
	// Download fetches the emoji images used in the channel.
	Download bool
	// Metadata stores emoji entities in the archive header.
	Metadata bool
}

// AvatarOptions control profile-image downloads for seen users.
type AvatarOptions struct {
	Download bool
}

// DefaultChannelOptions is the root of the option inheritance chain.
func DefaultChannelOptions() ChannelOptions {
	return ChannelOptions{
		PostLimit:              -1,
		PostSessionLimit:       -1,
		OnExistingCompatible:   recovery.ActionReuse,
		OnExistingIncompatible: recovery.ActionBackup,
		Direction:              model.DirectionAsc,
	}
}

// ChannelOptionsPatch is the file-level form of ChannelOptions: every
// field optional, absent fields inherit from the enclosing scope.
type ChannelOptionsPatch struct {
	AfterPost  *model.Id   `mapstructure:"afterPost"  json:"afterPost,omitempty"`
	BeforePost *model.Id   `mapstructure:"beforePost" json:"beforePost,omitempty"`
	AfterTime  *model.Time `mapstructure:"afterTime"  json:"afterTime,omitempty"`
	BeforeTime *model.Time `mapstructure:"beforeTime" json:"beforeTime,omitempty"`

	MaximumPostCount *int64 `mapstructure:"maximumPostCount" json:"maximumPostCount,omitempty"`
	SessionPostLimit *int64 `mapstructure:"sessionPostLimit" json:"sessionPostLimit,omitempty"`

	OnExistingCompatible   *recovery.Action `mapstructure:"onExistingCompatible"   json:"onExistingCompatible,omitempty"`
	OnExistingIncompatible *recovery.Action `mapstructure:"onExistingIncompatible" json:"onExistingIncompatible,omitempty"`

	DownloadFromOldest *bool `mapstructure:"downloadFromOldest" json:"downloadFromOldest,omitempty"`

	Attachments *AttachmentPatch `mapstructure:"attachments" json:"attachments,omitempty"`
	Emojis      *EmojiPatch      `mapstructure:"emojis"      json:"emojis,omitempty"`
	Avatars     *AvatarPatch     `mapstructure:"avatars"     json:"avatars,omitempty"`
}

// AttachmentPatch is the optional-field form of AttachmentOptions.
type AttachmentPatch struct {
	Download         *bool              `mapstructure:"download"         json:"download,omitempty"`
	MaxSize          *bytesize.ByteSize `mapstructure:"maxSize"          json:"maxSize,omitempty"`
	AllowedMimeTypes *[]string          `mapstructure:"allowedMimeTypes" json:"allowedMimeTypes,omitempty"`
}

// EmojiPatch is the optional-field form of EmojiOptions.
type EmojiPatch struct {
	Download *bool `mapstructure:"download" json:"download,omitempty"`
	Metadata *bool `mapstructure:"metadata" json:"metadata,omitempty"`
}

// AvatarPatch is the optional-field form of AvatarOptions.
type AvatarPatch struct {
	Download *bool `mapstructure:"download" json:"download,omitempty"`
}

// Apply layers the patch over base and returns the result. A nil
// patch returns base unchanged.
func (p *ChannelOptionsPatch) Apply(base ChannelOptions) ChannelOptions {
	if p == nil {
		return base
	}
	out := base
	if p.AfterPost != nil {
		out.AfterPost = *p.AfterPost
	}
	if p.BeforePost != nil {
		out.BeforePost = *p.BeforePost
	}
	if p.AfterTime != nil {
		out.AfterTime = *p.AfterTime
	}
	if p.BeforeTime != nil {
		out.BeforeTime = *p.BeforeTime
	}
	if p.MaximumPostCount != nil {
		out.PostLimit = *p.MaximumPostCount
	}
	if p.SessionPostLimit != nil {
		out.PostSessionLimit = *p.SessionPostLimit
	}
	if p.OnExistingCompatible != nil {
		out.OnExistingCompatible = *p.OnExistingCompatible
	}
	if p.OnExistingIncompatible != nil {
		out.OnExistingIncompatible = *p.OnExistingIncompatible
	}
	if p.DownloadFromOldest != nil {
		if *p.DownloadFromOldest {
			out.Direction = model.DirectionAsc
		} else {
			out.Direction = model.DirectionDesc
		}
	}
	if p.Attachments != nil {
		if p.Attachments.Download != nil {
			out.Attachments.Download = *p.Attachments.Download
		}
		if p.Attachments.MaxSize != nil {
			out.Attachments.MaxSize = *p.Attachments.MaxSize
		}
		if p.Attachments.AllowedMimeTypes != nil {
			out.Attachments.AllowedMimeTypes = append([]string(nil), *p.Attachments.AllowedMimeTypes...)
		}
	}
	if p.Emojis != nil {
		if p.Emojis.Download != nil {
			out.Emojis.Download = *p.Emojis.Download
		}
		if p.Emojis.Metadata != nil {
			out.Emojis.Metadata = *p.Emojis.Metadata
		}
	}
	if p.Avatars != nil && p.Avatars.Download != nil {
		out.Avatars.Download = *p.Avatars.Download
	}
	return out
}

func (p *ChannelOptionsPatch) validate() error {
	if p == nil {
		return nil
	}
	if p.MaximumPostCount != nil && *p.MaximumPostCount < -1 {
		return fmt.Errorf("maximumPostCount must be -1, 0 or positive")
	}
	if p.SessionPostLimit != nil && *p.SessionPostLimit < -1 {
		return fmt.Errorf("sessionPostLimit must be -1, 0 or positive")
	}
	// A reused incompatible archive would leave mixed organizations in
	// one data file.
	if p.OnExistingIncompatible != nil && *p.OnExistingIncompatible == recovery.ActionReuse {
		return fmt.Errorf("onExistingIncompatible cannot be %q", recovery.ActionReuse)
	}
	return nil
}

// ChannelSpec selects one channel by locator, with per-channel option
// overrides given inline.
type ChannelSpec struct {
	model.EntityLocator `mapstructure:",squash"`
	ChannelOptionsPatch `mapstructure:",squash"`
}

// Resolve layers the spec's overrides over the scope defaults.
func (s *ChannelSpec) Resolve(defaults ChannelOptions) ChannelOptions {
	return s.ChannelOptionsPatch.Apply(defaults)
}

// GroupLocator identifies a group channel either by its opaque id or
// by the set of its members.
type GroupLocator struct {
	ID model.Id `json:"-"`
	// Members identify the group by its full member set, the local
	// user included implicitly.
	Members []model.EntityLocator `json:"-"`
}

func (g GroupLocator) String() string {
	if g.ID != "" {
		return fmt.Sprintf("id=%s", g.ID)
	}
	return fmt.Sprintf("members=%v", g.Members)
}

// GroupChannelSpec selects one group channel.
type GroupChannelSpec struct {
	Group               GroupLocator `mapstructure:"group" json:"group"`
	ChannelOptionsPatch `mapstructure:",squash"`
}

// Resolve layers the spec's overrides over the scope defaults.
func (s *GroupChannelSpec) Resolve(defaults ChannelOptions) ChannelOptions {
	return s.ChannelOptionsPatch.Apply(defaults)
}

// TeamSpec selects one team and configures which of its channels are
// archived. Nil Download* flags inherit the global misc behavior.
type TeamSpec struct {
	Team model.EntityLocator `mapstructure:"team" json:"team"`

	DefaultChannelOptions *ChannelOptionsPatch `mapstructure:"defaultChannelOptions" json:"defaultChannelOptions,omitempty"`
	PrivateChannelOptions *ChannelOptionsPatch `mapstructure:"privateChannelOptions" json:"privateChannelOptions,omitempty"`
	PublicChannelOptions  *ChannelOptionsPatch `mapstructure:"publicChannelOptions"  json:"publicChannelOptions,omitempty"`

	DownloadPrivateChannels *bool         `mapstructure:"downloadPrivateChannels" json:"downloadPrivateChannels,omitempty"`
	PrivateChannels         []ChannelSpec `mapstructure:"privateChannels"         json:"privateChannels,omitempty"`
	DownloadPublicChannels  *bool         `mapstructure:"downloadPublicChannels"  json:"downloadPublicChannels,omitempty"`
	PublicChannels          []ChannelSpec `mapstructure:"publicChannels"          json:"publicChannels,omitempty"`
}

// PrivateDefaults resolves the team's private-channel defaults from
// the global ones.
func (t *TeamSpec) PrivateDefaults(global ChannelOptions) ChannelOptions {
	return t.PrivateChannelOptions.Apply(t.DefaultChannelOptions.Apply(global))
}

// PublicDefaults resolves the team's public-channel defaults from the
// global ones.
func (t *TeamSpec) PublicDefaults(global ChannelOptions) ChannelOptions {
	return t.PublicChannelOptions.Apply(t.DefaultChannelOptions.Apply(global))
}

// MiscPrivate reports whether unlisted private channels of the team
// are archived too.
func (t *TeamSpec) MiscPrivate() bool {
	return t.DownloadPrivateChannels == nil || *t.DownloadPrivateChannels
}

// MiscPublic reports whether unlisted public channels of the team are
// archived too.
func (t *TeamSpec) MiscPublic() bool {
	return t.DownloadPublicChannels == nil || *t.DownloadPublicChannels
}
