package saver

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/mmclient"
	"github.com/mmdl/mattermost-dl/pkg/model"
	"github.com/mmdl/mattermost-dl/pkg/planner"
	"github.com/mmdl/mattermost-dl/pkg/recovery"
)

// errSkipChannel aborts a channel's processing without failing the
// run; the arbiter decided to leave it untouched.
var errSkipChannel = errors.New("channel skipped")

// archiveDisposition states what happened to the previous archive pair
// before the fetch, which determines both the rollback path and the
// cleanup after a successful commit.
type archiveDisposition int

const (
	// dispFresh: no previous archive survives; a failed download has
	// nothing to restore.
	dispFresh archiveDisposition = iota
	// dispAppend: the previous header is parked in the backup slot and
	// new posts are appended to the data file; rollback truncates the
	// data back to the recorded size and restores the header.
	dispAppend
	// dispRollback: the previous pair is parked in the backup slot only
	// until the rewrite commits, then deleted.
	dispRollback
	// dispRetire: the previous pair is parked in the backup slot and
	// stays there permanently.
	dispRetire
)

func (s *Saver) processChannel(ctx context.Context, req channelRequest) error {
	err := s.archiveChannel(ctx, req)
	if errors.Is(err, errSkipChannel) {
		logger.Info("Channel left untouched", logger.KeyChannel, req.channel.InternalName)
		return nil
	}
	return err
}

func (s *Saver) archiveChannel(ctx context.Context, req channelRequest) error {
	opts := req.opts
	if opts.PostLimit == 0 || opts.PostSessionLimit == 0 {
		logger.Debug("Channel is configured to fetch no posts, skipping",
			logger.KeyChannel, req.channel.InternalName)
		return nil
	}

	files := archive.NewChannelFiles(s.cfg.Output.Directory, req.stem)
	prev, err := s.loadPrevious(req.channel, files)
	if err != nil {
		return err
	}

	// Verify the data file matches what the stored header promises; a
	// mismatch means the last run was interrupted mid-append.
	var storage *archive.PostStorage
	if prev != nil && prev.Storage != nil {
		prev, storage, err = s.checkDataSize(prev, files)
		if err != nil {
			return err
		}
	}

	popts := planner.Options{
		Direction:        opts.Direction,
		AfterID:          opts.AfterPost,
		BeforeID:         opts.BeforePost,
		AfterTime:        opts.AfterTime,
		BeforeTime:       opts.BeforeTime,
		PostLimit:        opts.PostLimit,
		PostSessionLimit: opts.PostSessionLimit,
		Redownload:       s.Redownload,
	}
	plan, err := planner.Build(popts, storage, req.channel.LastMessageTime, s.client)
	if err != nil {
		return fmt.Errorf("plan download: %w", err)
	}
	if plan == nil {
		logger.Info("Channel archive is already up to date", logger.KeyChannel, req.channel.InternalName)
		return nil
	}

	// Decide the previous archive's fate and park it accordingly.
	disp := dispFresh
	var backup archive.ChannelFiles
	var baseSize int64
	if prev != nil && (prev.Storage == nil || prev.Storage.Count == 0) {
		// An archive with no stored posts extends trivially; there is
		// no reuse decision to arbitrate.
		disp = dispAppend
	} else if prev != nil {
		policy := recovery.ReusePolicy{
			OnCompatible:   opts.OnExistingCompatible,
			OnIncompatible: opts.OnExistingIncompatible,
		}
		compatible := !plan.FromScratch
		switch s.arbiter.OnArchiveReuse(prev, compatible, policy) {
		case recovery.ActionReuse:
			if compatible {
				disp = dispAppend
			} else {
				disp = dispRollback
			}
		case recovery.ActionBackup:
			disp = dispRetire
		case recovery.ActionDelete:
			if err := files.Remove(); err != nil {
				return err
			}
			prev = nil
		case recovery.ActionSkipDownload:
			return errSkipChannel
		}

		// Appending was possible but the archive is replaced anyway:
		// the plan must cover the whole request again.
		if compatible && disp != dispAppend {
			if plan, err = planner.Build(popts, nil, req.channel.LastMessageTime, s.client); err != nil {
				return fmt.Errorf("plan download: %w", err)
			}
			if plan == nil {
				return nil
			}
		}
	}

	switch disp {
	case dispAppend:
		if prev.Storage != nil {
			baseSize = prev.Storage.ByteSize
		}
		if backup, err = s.backupSlot(req.channel, files); err != nil {
			return err
		}
		if err := files.RenameHeaderTo(backup); err != nil {
			return err
		}
	case dispRollback, dispRetire:
		if backup, err = s.backupSlot(req.channel, files); err != nil {
			return err
		}
		if err := files.RenameTo(backup); err != nil {
			return err
		}
	}

	return s.fetchChannel(ctx, req, files, prev, plan, disp, backup, baseSize)
}

// loadPrevious loads the channel's stored header, routing unloadable
// ones (and orphaned data files) to the recovery arbiter. It returns
// nil when nothing usable exists.
func (s *Saver) loadPrevious(channel *model.Channel, files archive.ChannelFiles) (*archive.ChannelHeader, error) {
	if _, err := os.Stat(files.HeaderPath()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat channel header: %w", err)
		}
		if _, ok := files.DataSize(); ok {
			return nil, s.discardUnloadable(channel, files)
		}
		return nil, nil
	}
	h, err := files.LoadHeader()
	if err != nil {
		logger.Warn("Stored channel header could not be loaded",
			logger.KeyChannel, channel.InternalName,
			logger.KeyPath, files.HeaderPath(),
			logger.KeyError, err)
		return nil, s.discardUnloadable(channel, files)
	}
	return h, nil
}

func (s *Saver) discardUnloadable(channel *model.Channel, files archive.ChannelFiles) error {
	if s.arbiter.OnUnloadableHeader(*channel, files) == recovery.ActionDelete {
		return files.Remove()
	}
	backup, err := s.backupSlot(channel, files)
	if err != nil {
		return err
	}
	return files.RenameTo(backup)
}

// checkDataSize compares the data file against the header's recorded
// byteSize. On mismatch the arbiter picks between truncating the
// surplus (Reuse), parking or deleting the pair, or skipping the
// channel. The returned header/storage pair is what planning may use.
func (s *Saver) checkDataSize(prev *archive.ChannelHeader, files archive.ChannelFiles) (*archive.ChannelHeader, *archive.PostStorage, error) {
	recorded := prev.Storage.ByteSize
	actual, ok := files.DataSize()
	if ok && actual == recorded {
		return prev, prev.Storage, nil
	}

	action := s.arbiter.OnMissizedDataFile(prev, files, actual, ok)
	if action == recovery.ActionReuse && (!ok || actual < recorded) {
		// There is nothing to truncate back to; fall back to the
		// non-destructive default.
		action = recovery.ActionBackup
	}
	switch action {
	case recovery.ActionReuse:
		if err := files.TruncateData(recorded); err != nil {
			return nil, nil, err
		}
		return prev, prev.Storage, nil
	case recovery.ActionDelete:
		return nil, nil, files.Remove()
	case recovery.ActionSkipDownload:
		return nil, nil, errSkipChannel
	default:
		backup, err := s.backupSlot(&prev.Channel, files)
		if err != nil {
			return nil, nil, err
		}
		return nil, nil, files.RenameTo(backup)
	}
}

// backupSlot returns the channel's primary backup slot, first clearing
// it per the arbiter's verdict when it is occupied.
func (s *Saver) backupSlot(channel *model.Channel, files archive.ChannelFiles) (archive.ChannelFiles, error) {
	backup := files.Backup()
	if !backup.Exists() {
		return backup, nil
	}
	switch s.arbiter.OnExistingBackup(*channel, backup) {
	case recovery.ActionDelete:
		if err := backup.Remove(); err != nil {
			return archive.ChannelFiles{}, err
		}
	case recovery.ActionSkipDownload:
		return archive.ChannelFiles{}, errSkipChannel
	default:
		if err := backup.RenameTo(files.NextFreeAlternate()); err != nil {
			return archive.ChannelFiles{}, err
		}
	}
	return backup, nil
}

// fetchChannel runs the planned download and commits or rolls back the
// archive pair.
func (s *Saver) fetchChannel(ctx context.Context, req channelRequest, files archive.ChannelFiles,
	prev *archive.ChannelHeader, plan *planner.Plan, disp archiveDisposition,
	backup archive.ChannelFiles, baseSize int64) error {

	opts := req.opts
	fresh := archive.NewChannelHeader(*req.channel)
	if req.team != nil {
		team := *req.team
		team.Channels = nil
		fresh.Team = &team
	}
	for _, u := range req.seedUsers {
		fresh.AddUser(u)
	}

	seedBegin := plan.Params.AfterTime
	if opts.Direction == model.DirectionDesc {
		seedBegin = plan.Params.BeforeTime
	}
	storage := archive.NewPostStorage(opts.Direction, seedBegin)

	writer, err := archive.OpenDataWriter(files.DataPath(), plan.FromScratch)
	if err != nil {
		return err
	}

	takeEmojis := opts.Emojis.Metadata || opts.Emojis.Download
	unknownEmoji := map[string]bool{}
	var attachments []model.FileAttachment
	var skipped int64

	fetchOpts := mmclient.FetchOptions{
		Direction:     plan.Params.Direction,
		AfterPost:     plan.Params.AfterPost,
		BeforePost:    plan.Params.BeforePost,
		AfterTime:     plan.Params.AfterTime,
		BeforeTime:    plan.Params.BeforeTime,
		MaxCount:      plan.Params.MaxCount,
		OnSkippedPost: func() { skipped++ },
	}

	logger.Info("Downloading channel", logger.KeyChannel, req.channel.InternalName, "fromScratch", plan.FromScratch)

	result, fetchErr := s.client.ProcessPosts(req.channel, fetchOpts, func(p model.Post, hints *mmclient.PostHints) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, ok := fresh.Users[p.UserID]; !ok && p.UserID != "" {
			if u, err := s.client.UserByID(p.UserID); err != nil {
				logger.Warn("Post author could not be resolved",
					logger.KeyUser, p.UserID, logger.KeyError, err)
			} else {
				fresh.AddUser(u)
			}
		}
		if s.cfg.Output.HumanFriendlyPosts {
			if u, ok := fresh.Users[p.UserID]; ok {
				p.UserName = u.Name
			}
			for i := range p.Reactions {
				if u, err := s.client.UserByID(p.Reactions[i].UserID); err == nil {
					p.Reactions[i].UserName = u.Name
				}
			}
		}

		if takeEmojis {
			ids := make([]model.Id, 0, len(p.Emojis))
			for _, e := range p.Emojis {
				s.client.CacheEmoji(e)
				s.noteEmoji(fresh, e)
				ids = append(ids, e.ID)
			}
			if len(ids) > 0 {
				p.EmojiIDs = ids
			}
			for i := range p.Reactions {
				name := p.Reactions[i].EmojiName
				if name == "" || unknownEmoji[name] {
					continue
				}
				e, err := s.client.EmojiByName(name)
				if err != nil {
					// System emoji are not part of the custom database.
					unknownEmoji[name] = true
					continue
				}
				p.Reactions[i].EmojiID = e.ID
				s.noteEmoji(fresh, e)
			}
		}
		p.Emojis = nil

		if opts.Attachments.Download {
			attachments = append(attachments, p.Attachments...)
		}

		storage.AddSortedPost(p, hints.PostIDBefore, hints.PostIDAfter, opts.Direction)
		if err := writer.WritePost(p); err != nil {
			return err
		}

		if s.showProgress() && storage.Count%int64(s.cfg.Report.ProgressInterval) == 0 {
			logger.Info("Downloading channel posts",
				logger.KeyChannel, req.channel.InternalName,
				logger.KeyCount, storage.Count)
		}
		return nil
	})
	if err := writer.Close(); fetchErr == nil {
		fetchErr = err
	}

	storage.ByteSize = writer.Size()
	if storage.Count > 0 {
		// A channel without posts gets a header without a storage block.
		fresh.Storage = &storage
	}

	if fetchErr != nil {
		return s.recoverFailedDownload(req, files, prev, fresh, disp, backup, baseSize, attachments, fetchErr)
	}

	logger.Debug("Channel post fetch finished",
		logger.KeyChannel, req.channel.InternalName,
		logger.KeyCount, storage.Count,
		"skipped", skipped,
		"result", int(result))

	return s.commit(req, files, prev, fresh, disp, backup, attachments)
}

// commit finalizes a download: bulk file downloads, the header write,
// and backup-slot cleanup.
func (s *Saver) commit(req channelRequest, files archive.ChannelFiles,
	prev, fresh *archive.ChannelHeader, disp archiveDisposition, backup archive.ChannelFiles,
	attachments []model.FileAttachment) error {

	final := fresh
	if disp == dispAppend {
		if err := prev.Update(fresh); err != nil {
			// The fetched interval does not continue the archive; put
			// the old header back so the mismatch surfaces next run.
			if rerr := backup.RenameHeaderTo(files); rerr != nil {
				logger.Error("Previous channel header could not be restored",
					logger.KeyPath, backup.HeaderPath(), logger.KeyError, rerr)
			}
			return err
		}
		final = prev
	}

	opts := req.opts
	if opts.Attachments.Download && len(attachments) > 0 {
		s.downloadAttachments(files, attachments, opts.Attachments)
	}
	if opts.Emojis.Download {
		s.downloadEmojiImages(final.Emojis)
	}
	if opts.Avatars.Download {
		s.downloadAvatars(final.Users)
	}

	if err := files.WriteHeader(final); err != nil {
		if disp == dispAppend {
			if rerr := backup.RenameHeaderTo(files); rerr != nil {
				logger.Error("Previous channel header could not be restored",
					logger.KeyPath, backup.HeaderPath(), logger.KeyError, rerr)
			}
		}
		return err
	}

	switch disp {
	case dispAppend:
		if err := backup.RemoveHeader(); err != nil {
			return err
		}
	case dispRollback:
		if err := backup.Remove(); err != nil {
			return err
		}
	}

	var count int64
	if final.Storage != nil {
		count = final.Storage.Count
	}
	logger.Info("Channel archived",
		logger.KeyChannel, req.channel.InternalName,
		logger.KeyCount, count,
		logger.KeyPath, files.HeaderPath())
	return nil
}

// recoverFailedDownload handles a mid-fetch failure. Delete rolls the
// archive back to its pre-run state; the default Backup commits the
// partial download so the next run can resume from it.
func (s *Saver) recoverFailedDownload(req channelRequest, files archive.ChannelFiles,
	prev, fresh *archive.ChannelHeader, disp archiveDisposition,
	backup archive.ChannelFiles, baseSize int64,
	attachments []model.FileAttachment, cause error) error {

	if s.arbiter.OnDownloadFailure(fresh, files, cause) == recovery.ActionDelete {
		var rerr error
		switch disp {
		case dispAppend:
			if rerr = files.TruncateData(baseSize); rerr == nil {
				rerr = backup.RenameHeaderTo(files)
			}
		case dispRollback, dispRetire:
			if rerr = files.Remove(); rerr == nil {
				rerr = backup.RenameTo(files)
			}
		default:
			rerr = files.Remove()
		}
		if rerr != nil {
			logger.Error("Archive rollback failed", logger.KeyPath, files.HeaderPath(), logger.KeyError, rerr)
		}
		return cause
	}

	// Keep the partial download. Committing its header makes it a
	// consistent archive the next run can append to. A parked previous
	// pair stays in its backup slot.
	if disp == dispRollback {
		disp = dispRetire
	}
	if err := s.commit(req, files, prev, fresh, disp, backup, attachments); err != nil {
		logger.Error("Partial download could not be committed",
			logger.KeyChannel, req.channel.InternalName, logger.KeyError, err)
	}
	return cause
}

// noteEmoji records an emoji in the header, resolving the creator's
// username once when human-friendly output is on.
func (s *Saver) noteEmoji(h *archive.ChannelHeader, e model.Emoji) {
	if _, ok := h.Emojis[e.ID]; ok {
		return
	}
	if s.cfg.Output.HumanFriendlyPosts && e.CreatorName == "" && e.CreatorID != "" {
		if u, err := s.client.UserByID(e.CreatorID); err == nil {
			e.CreatorName = u.Name
		}
	}
	h.AddEmoji(e)
}

func (s *Saver) showProgress() bool {
	if s.cfg.Report.ProgressInterval <= 0 {
		return false
	}
	return s.cfg.Report.ShowProgress == nil || *s.cfg.Report.ShowProgress
}
