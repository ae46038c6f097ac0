package recovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

func testHeader() *archive.ChannelHeader {
	h := archive.NewChannelHeader(model.Channel{ID: "ch1", InternalName: "town-square"})
	h.Storage = &archive.PostStorage{
		Count:        1,
		Organization: archive.OrderingAscendingContinuous,
		ByteSize:     100,
	}
	return h
}

func TestParseAction(t *testing.T) {
	for _, name := range []string{"backup", "delete", "reuse", "skip"} {
		a, err := ParseAction(name)
		require.NoError(t, err)
		assert.Equal(t, name, a.String())
	}

	_, err := ParseAction("explode")
	assert.Error(t, err)
}

func TestActionTextRoundTrip(t *testing.T) {
	var a Action
	require.NoError(t, a.UnmarshalText([]byte("skip")))
	assert.Equal(t, ActionSkipDownload, a)

	text, err := ActionReuse.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "reuse", string(text))

	assert.Error(t, a.UnmarshalText([]byte("nope")))
}

func TestDefaultArbiterRecoveryActions(t *testing.T) {
	var a DefaultArbiter
	files := archive.NewChannelFiles(t.TempDir(), "o.core--town-square")
	h := testHeader()

	assert.Equal(t, ActionBackup, a.OnUnloadableHeader(h.Channel, files))
	assert.Equal(t, ActionBackup, a.OnMissizedDataFile(h, files, 50, true))
	// Oversize means an interrupted append; the recorded prefix is
	// intact, so the surplus is truncated and the archive reused.
	assert.Equal(t, ActionReuse, a.OnMissizedDataFile(h, files, 150, true))
	assert.Equal(t, ActionBackup, a.OnMissizedDataFile(h, files, 0, false))
	assert.Equal(t, ActionBackup, a.OnExistingBackup(h.Channel, files.Backup()))
	assert.Equal(t, ActionBackup, a.OnDownloadFailure(h, files, errors.New("boom")))
}

func TestDefaultArbiterReusePolicy(t *testing.T) {
	var a DefaultArbiter
	h := testHeader()

	t.Run("CompatibleFollowsConfig", func(t *testing.T) {
		assert.Equal(t, ActionReuse, a.OnArchiveReuse(h, true, DefaultReusePolicy()))
		custom := ReusePolicy{OnCompatible: ActionBackup, OnIncompatible: ActionBackup}
		assert.Equal(t, ActionBackup, a.OnArchiveReuse(h, true, custom))
	})

	t.Run("IncompatibleFollowsConfig", func(t *testing.T) {
		assert.Equal(t, ActionBackup, a.OnArchiveReuse(h, false, DefaultReusePolicy()))
		custom := ReusePolicy{OnCompatible: ActionReuse, OnIncompatible: ActionSkipDownload}
		assert.Equal(t, ActionSkipDownload, a.OnArchiveReuse(h, false, custom))
	})

	t.Run("IncompatibleDeleteDemotesToReuse", func(t *testing.T) {
		// Deleting before the replacement download succeeds would lose
		// the only copy; the old pair stays for rollback instead.
		custom := ReusePolicy{OnCompatible: ActionReuse, OnIncompatible: ActionDelete}
		assert.Equal(t, ActionReuse, a.OnArchiveReuse(h, false, custom))
	})
}
