package recovery

import (
	"fmt"

	"github.com/mmdl/mattermost-dl/internal/cli/prompt"
	"github.com/mmdl/mattermost-dl/internal/logger"
	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

// InteractiveArbiter asks the user on the terminal at each decision
// point. When the prompt fails (non-interactive stdin, Ctrl+C) it
// falls back to the default policy so unattended runs never hang on a
// half-broken terminal.
type InteractiveArbiter struct {
	fallback DefaultArbiter
}

func NewInteractiveArbiter() *InteractiveArbiter {
	return &InteractiveArbiter{}
}

func (a *InteractiveArbiter) ask(question string, allowed []Action, fallback Action) Action {
	options := make([]prompt.SelectOption, len(allowed))
	for i, action := range allowed {
		options[i] = prompt.SelectOption{
			Label:       action.String(),
			Value:       action.String(),
			Description: actionDescriptions[action],
		}
	}

	chosen, err := prompt.Select(question, options)
	if err != nil {
		logger.Warn("Falling back to default recovery action",
			"action", fallback, logger.KeyError, err)
		return fallback
	}
	action, err := ParseAction(chosen)
	if err != nil {
		return fallback
	}
	return action
}

var actionDescriptions = map[Action]string{
	ActionBackup:       "move the existing files aside and continue",
	ActionDelete:       "discard the existing files and continue",
	ActionReuse:        "keep the existing content and continue",
	ActionSkipDownload: "leave everything untouched and skip this channel",
}

func (a *InteractiveArbiter) OnUnloadableHeader(channel model.Channel, files archive.ChannelFiles) Action {
	if _, ok := files.DataSize(); !ok {
		// Nothing worth protecting.
		return a.fallback.OnUnloadableHeader(channel, files)
	}
	return a.ask(
		fmt.Sprintf("Header of channel %q cannot be loaded; what should happen to its post data?", channel.InternalName),
		[]Action{ActionBackup, ActionDelete},
		ActionBackup,
	)
}

func (a *InteractiveArbiter) OnMissizedDataFile(header *archive.ChannelHeader, files archive.ChannelFiles, actualSize int64, sizeKnown bool) Action {
	var recorded int64
	if header.Storage != nil {
		recorded = header.Storage.ByteSize
	}
	allowed := []Action{ActionBackup, ActionDelete, ActionSkipDownload}
	if sizeKnown && actualSize > recorded {
		// Truncating back to the recorded size is only sound when the
		// file grew past it.
		allowed = []Action{ActionBackup, ActionDelete, ActionReuse, ActionSkipDownload}
	}
	return a.ask(
		fmt.Sprintf("Data file of channel %q has size %d, header records %d; how should it be handled?",
			header.Channel.InternalName, actualSize, recorded),
		allowed,
		ActionBackup,
	)
}

func (a *InteractiveArbiter) OnArchiveReuse(header *archive.ChannelHeader, compatible bool, policy ReusePolicy) Action {
	kind := "compatible"
	allowed := []Action{ActionBackup, ActionDelete, ActionReuse, ActionSkipDownload}
	if !compatible {
		kind = "incompatible"
		allowed = []Action{ActionBackup, ActionDelete, ActionSkipDownload}
	}
	return a.ask(
		fmt.Sprintf("Channel %q already has a %s archive; what should happen to it?",
			header.Channel.InternalName, kind),
		allowed,
		a.fallback.OnArchiveReuse(header, compatible, policy),
	)
}

func (a *InteractiveArbiter) OnExistingBackup(channel model.Channel, backup archive.ChannelFiles) Action {
	return a.ask(
		fmt.Sprintf("Backup slot for channel %q is occupied; keep or overwrite it?", channel.InternalName),
		[]Action{ActionBackup, ActionDelete, ActionSkipDownload},
		ActionBackup,
	)
}

func (a *InteractiveArbiter) OnDownloadFailure(header *archive.ChannelHeader, files archive.ChannelFiles, cause error) Action {
	return a.ask(
		fmt.Sprintf("Download of channel %q failed (%v); keep the partial content?",
			header.Channel.InternalName, cause),
		[]Action{ActionBackup, ActionDelete},
		ActionBackup,
	)
}
