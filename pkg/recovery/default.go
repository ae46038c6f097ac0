package recovery

import (
	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

// DefaultArbiter never discards recorded data on its own: it backs up
// whatever is endangered, truncates only unrecorded surplus, and lets
// configuration drive the reuse decision.
type DefaultArbiter struct{}

func (DefaultArbiter) OnUnloadableHeader(channel model.Channel, files archive.ChannelFiles) Action {
	if _, ok := files.DataSize(); ok {
		logger.Info("Backing up posts whose channel header could not be loaded",
			logger.KeyChannel, channel.InternalName,
			logger.KeyPath, files.DataPath())
	}
	return ActionBackup
}

func (DefaultArbiter) OnMissizedDataFile(header *archive.ChannelHeader, files archive.ChannelFiles, actualSize int64, sizeKnown bool) Action {
	var recorded int64
	if header.Storage != nil {
		recorded = header.Storage.ByteSize
	}

	switch {
	case !sizeKnown:
		logger.Warn("Post data file could not be read; channel will be redownloaded, old header backed up",
			logger.KeyChannel, header.Channel.InternalName,
			logger.KeyPath, files.DataPath())
	case actualSize < recorded:
		logger.Warn("Post data file is smaller than its header records; channel will be redownloaded, old archive backed up",
			logger.KeyChannel, header.Channel.InternalName,
			logger.KeySize, actualSize,
			"expected", recorded)
	default:
		// Surplus bytes past the recorded size are an interrupted
		// append's partial tail; the recorded prefix is still intact.
		logger.Warn("Post data file is bigger than its header records, likely an interrupted download; the surplus will be truncated and the download resumed",
			logger.KeyChannel, header.Channel.InternalName,
			logger.KeySize, actualSize,
			"expected", recorded)
		return ActionReuse
	}
	return ActionBackup
}

func (DefaultArbiter) OnArchiveReuse(header *archive.ChannelHeader, compatible bool, policy ReusePolicy) Action {
	if compatible {
		return policy.OnCompatible
	}
	// An incompatible archive cannot be appended to. A configured
	// Delete would drop it before the new download succeeds; demote it
	// to Reuse, which keeps the old pair around for rollback and
	// removes it only after the rewrite commits.
	if policy.OnIncompatible == ActionDelete {
		return ActionReuse
	}
	return policy.OnIncompatible
}

func (DefaultArbiter) OnExistingBackup(channel model.Channel, backup archive.ChannelFiles) Action {
	logger.Warn("Previous backup exists and will be renamed",
		logger.KeyChannel, channel.InternalName,
		logger.KeyPath, backup.HeaderPath())
	return ActionBackup
}

func (DefaultArbiter) OnDownloadFailure(header *archive.ChannelHeader, files archive.ChannelFiles, cause error) Action {
	logger.Warn("Channel download failed, partially downloaded content is left for inspection",
		logger.KeyChannel, header.Channel.InternalName,
		logger.KeyError, cause)
	return ActionBackup
}
