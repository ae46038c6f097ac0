package saver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/config"
	"github.com/mmdl/mattermost-dl/pkg/mmclient"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

const (
	emojiDirName  = "emojis"
	avatarDirName = "avatars"
)

// listExistingByStem maps the stems (file names with the extension
// stripped) of a directory's entries to their full names, so already
// downloaded files are recognized regardless of extension.
func listExistingByStem(dir string) map[string]string {
	out := map[string]string{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		out[strings.TrimSuffix(name, filepath.Ext(name))] = name
	}
	return out
}

// storeEntityFile downloads one API-served file into dir as
// stem+suffix, sniffing the extension from the content when no suffix
// is given. Files already present under the stem are kept as-is.
func (s *Saver) storeEntityFile(dir, stem, suffix, apiPath string, existing map[string]string) (string, error) {
	if name, ok := existing[stem]; ok {
		return name, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download directory: %w", err)
	}

	tmp := filepath.Join(dir, stem+".part")
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create download file: %w", err)
	}
	_, downloadErr := s.client.DownloadTo(apiPath, f)
	if err := f.Close(); downloadErr == nil {
		downloadErr = err
	}
	if downloadErr != nil {
		os.Remove(tmp)
		return "", downloadErr
	}

	if suffix == "" {
		if kind, err := mimetype.DetectFile(tmp); err == nil {
			suffix = kind.Extension()
		}
	}
	name := stem + suffix
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("finalize download: %w", err)
	}
	existing[stem] = name
	return name, nil
}

// downloadAttachments stores the attachments collected from the
// channel's posts, honoring the configured size and type filters.
// Failures are logged, never fatal: a missing attachment must not
// discard the downloaded posts.
func (s *Saver) downloadAttachments(files archive.ChannelFiles, attachments []model.FileAttachment, opts config.AttachmentOptions) {
	var wanted []model.FileAttachment
	seen := map[model.Id]bool{}
	for _, a := range attachments {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		if opts.MaxSize > 0 && a.ByteSize > opts.MaxSize.Int64() {
			logger.Debug("Attachment exceeds the size limit, skipped",
				logger.KeyPath, a.Name, logger.KeySize, a.ByteSize)
			continue
		}
		if len(opts.AllowedMimeTypes) > 0 && !mimeTypeAllowed(a.MimeType, opts.AllowedMimeTypes) {
			logger.Debug("Attachment type is not allowed, skipped",
				logger.KeyPath, a.Name, "mimeType", a.MimeType)
			continue
		}
		wanted = append(wanted, a)
	}
	if len(wanted) == 0 {
		return
	}

	dir := files.AttachmentsDir()
	existing := listExistingByStem(dir)
	var stored int
	for _, a := range wanted {
		if _, err := s.storeEntityFile(dir, string(a.ID), filepath.Ext(a.Name), mmclient.FileURL(a), existing); err != nil {
			logger.Warn("Attachment could not be downloaded",
				logger.KeyPath, a.Name, logger.KeyError, err)
			continue
		}
		stored++
	}
	logger.Info("Attachments downloaded", logger.KeyCount, stored, logger.KeyPath, dir)
}

func mimeTypeAllowed(mimeType string, allowed []string) bool {
	for _, a := range allowed {
		if a == mimeType {
			return true
		}
	}
	return false
}

// downloadEmojiImages stores the images of the given emojis in the
// shared emoji directory and records the resulting file names.
func (s *Saver) downloadEmojiImages(emojis map[model.Id]model.Emoji) {
	if len(emojis) == 0 {
		return
	}
	dir := filepath.Join(s.cfg.Output.Directory, emojiDirName)
	existing := listExistingByStem(dir)
	for id, e := range emojis {
		name, err := s.storeEntityFile(dir, emojiStem(e), "", mmclient.EmojiImageURL(e), existing)
		if err != nil {
			logger.Warn("Emoji image could not be downloaded",
				"emoji", e.Name, logger.KeyError, err)
			continue
		}
		e.ImageFileName = name
		emojis[id] = e
	}
}

func emojiStem(e model.Emoji) string {
	if e.Name != "" {
		return e.Name
	}
	return string(e.ID)
}

// downloadAvatars stores the profile images of the given users in the
// shared avatar directory and records the resulting file names.
func (s *Saver) downloadAvatars(users map[model.Id]model.User) {
	if len(users) == 0 {
		return
	}
	dir := filepath.Join(s.cfg.Output.Directory, avatarDirName)
	existing := listExistingByStem(dir)
	for id, u := range users {
		stem := u.Name
		if stem == "" {
			stem = string(u.ID)
		}
		name, err := s.storeEntityFile(dir, stem, "", mmclient.AvatarURL(u), existing)
		if err != nil {
			logger.Warn("Avatar could not be downloaded",
				logger.KeyUser, u.Name, logger.KeyError, err)
			continue
		}
		u.AvatarFileName = name
		users[id] = u
	}
}
