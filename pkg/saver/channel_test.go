package saver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/model"
	"github.com/mmdl/mattermost-dl/pkg/recovery"
)

const generalStem = "o.eng--general"

// deletingArbiter discards partial downloads instead of keeping them.
type deletingArbiter struct {
	recovery.DefaultArbiter
}

func (deletingArbiter) OnDownloadFailure(*archive.ChannelHeader, archive.ChannelFiles, error) recovery.Action {
	return recovery.ActionDelete
}

func backupArtifacts(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var out []string
	for _, entry := range entries {
		if strings.Contains(entry.Name(), "--backup") {
			out = append(out, entry.Name())
		}
	}
	return out
}

// addPosts appends newer posts to the fixture channel and advances its
// last-activity time so planning sees something new.
func addPosts(fake *fakeClient, posts ...model.Post) {
	fake.posts["c-general"] = append(fake.posts["c-general"], posts...)
	last := posts[len(posts)-1]
	for _, channels := range fake.channels {
		for _, ch := range channels {
			if ch.ID == "c-general" {
				ch.LastMessageTime = last.CreateTime
				ch.MessageCount = int64(len(fake.posts["c-general"]))
			}
		}
	}
}

func TestSecondRunAppends(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, nil)
	require.NoError(t, s.Run(context.Background()))

	addPosts(fake,
		testPost("p4", "u-alice", 4000, "fourth"),
		testPost("p5", "u-local", 5000, "fifth"),
	)
	require.NoError(t, s.Run(context.Background()))

	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	header, err := files.LoadHeader()
	require.NoError(t, err)
	require.NotNil(t, header.Storage)
	assert.Equal(t, int64(5), header.Storage.Count)
	assert.Equal(t, model.Id("p1"), header.Storage.FirstPostID)
	assert.Equal(t, model.Id("p5"), header.Storage.LastPostID)

	size, ok := files.DataSize()
	require.True(t, ok)
	assert.Equal(t, header.Storage.ByteSize, size)
	assert.Equal(t, 5, countPosts(t, files.DataPath()))

	assert.Empty(t, backupArtifacts(t, cfg.Output.Directory))
}

func TestSecondRunWithoutNewPostsLeavesArchiveAlone(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, nil)
	require.NoError(t, s.Run(context.Background()))

	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	before, err := os.ReadFile(files.HeaderPath())
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background()))

	after, err := os.ReadFile(files.HeaderPath())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, backupArtifacts(t, cfg.Output.Directory))
}

func TestDirectionFlipBacksUpOldArchive(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, nil)
	require.NoError(t, s.Run(context.Background()))

	for _, scope := range []*model.OrderDirection{
		&cfg.ChannelDefaults.Direction,
		&cfg.PublicChannelDefaults.Direction,
	} {
		*scope = model.DirectionDesc
	}
	require.NoError(t, s.Run(context.Background()))

	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	header, err := files.LoadHeader()
	require.NoError(t, err)
	require.NotNil(t, header.Storage)
	assert.Equal(t, archive.OrderingDescendingContinuous, header.Storage.Organization)
	assert.Equal(t, int64(3), header.Storage.Count)
	assert.Equal(t, model.Id("p3"), header.Storage.FirstPostID)
	assert.Equal(t, model.Id("p1"), header.Storage.LastPostID)

	backup := archive.NewChannelFiles(cfg.Output.Directory, generalStem+"--backup")
	assert.True(t, backup.Exists())
	old, err := backup.LoadHeader()
	require.NoError(t, err)
	assert.Equal(t, archive.OrderingAscendingContinuous, old.Storage.Organization)
}

func TestFailedAppendRollsBack(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, deletingArbiter{})
	require.NoError(t, s.Run(context.Background()))

	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	originalHeader, err := os.ReadFile(files.HeaderPath())
	require.NoError(t, err)
	originalSize, ok := files.DataSize()
	require.True(t, ok)

	addPosts(fake,
		testPost("p4", "u-alice", 4000, "fourth"),
		testPost("p5", "u-local", 5000, "fifth"),
	)
	fake.failPostsAfter = 1
	require.Error(t, s.Run(context.Background()))

	restoredHeader, err := os.ReadFile(files.HeaderPath())
	require.NoError(t, err)
	assert.Equal(t, originalHeader, restoredHeader)

	size, ok := files.DataSize()
	require.True(t, ok)
	assert.Equal(t, originalSize, size)
	assert.Equal(t, 3, countPosts(t, files.DataPath()))
	assert.Empty(t, backupArtifacts(t, cfg.Output.Directory))
}

func TestFailedAppendKeepsPartialByDefault(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, nil)
	require.NoError(t, s.Run(context.Background()))

	addPosts(fake,
		testPost("p4", "u-alice", 4000, "fourth"),
		testPost("p5", "u-local", 5000, "fifth"),
	)
	fake.failPostsAfter = 1
	require.Error(t, s.Run(context.Background()))

	// The one post fetched before the failure is committed so the next
	// run can resume from it.
	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	header, err := files.LoadHeader()
	require.NoError(t, err)
	require.NotNil(t, header.Storage)
	assert.Equal(t, int64(4), header.Storage.Count)
	assert.Equal(t, model.Id("p4"), header.Storage.LastPostID)

	size, ok := files.DataSize()
	require.True(t, ok)
	assert.Equal(t, header.Storage.ByteSize, size)
	assert.Empty(t, backupArtifacts(t, cfg.Output.Directory))

	// The next run completes the archive.
	fake.failPostsAfter = 0
	require.NoError(t, s.Run(context.Background()))
	header, err = files.LoadHeader()
	require.NoError(t, err)
	assert.Equal(t, int64(5), header.Storage.Count)
}

func TestOversizedDataFileIsTruncatedAndResumed(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, nil)
	require.NoError(t, s.Run(context.Background()))

	// Simulate an interrupted append: surplus bytes beyond the recorded
	// size, header untouched.
	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	f, err := os.OpenFile(files.DataPath(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"id\":\"torn\"}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	addPosts(fake, testPost("p4", "u-alice", 4000, "fourth"))
	require.NoError(t, s.Run(context.Background()))

	header, err := files.LoadHeader()
	require.NoError(t, err)
	assert.Equal(t, int64(4), header.Storage.Count)
	size, ok := files.DataSize()
	require.True(t, ok)
	assert.Equal(t, header.Storage.ByteSize, size)
	assert.Equal(t, 4, countPosts(t, files.DataPath()))
	assert.Empty(t, backupArtifacts(t, cfg.Output.Directory))
}

func TestEmptyChannelArchiveConverges(t *testing.T) {
	fake := serverFixture()
	fake.posts["c-general"] = nil
	for _, channels := range fake.channels {
		for _, ch := range channels {
			if ch.ID == "c-general" {
				ch.MessageCount = 0
				ch.LastMessageTime = 0
			}
		}
	}
	cfg := testConfig(t)
	s := New(fake, cfg, nil)

	// Repeated runs over a channel without posts must settle on a bare
	// header and never park anything into backup slots.
	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Run(context.Background()))
		header, err := files.LoadHeader()
		require.NoError(t, err)
		assert.Nil(t, header.Storage)
		assert.Empty(t, backupArtifacts(t, cfg.Output.Directory))
	}

	raw, err := os.ReadFile(files.HeaderPath())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"storage"`)

	// Posts arriving later extend the empty archive in place.
	addPosts(fake,
		testPost("p1", "u-alice", 1000, "first"),
		testPost("p2", "u-local", 2000, "second"),
	)
	require.NoError(t, s.Run(context.Background()))

	header, err := files.LoadHeader()
	require.NoError(t, err)
	require.NotNil(t, header.Storage)
	assert.Equal(t, int64(2), header.Storage.Count)
	assert.Equal(t, 2, countPosts(t, files.DataPath()))
	assert.Empty(t, backupArtifacts(t, cfg.Output.Directory))
}

func TestOccupiedBackupSlotMovesToAlternate(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, nil)
	require.NoError(t, s.Run(context.Background()))

	flip := func(d model.OrderDirection) {
		cfg.ChannelDefaults.Direction = d
		cfg.PublicChannelDefaults.Direction = d
	}

	// Each direction flip retires the old pair; the second one finds
	// the backup slot occupied and shifts the older pair aside.
	flip(model.DirectionDesc)
	require.NoError(t, s.Run(context.Background()))
	flip(model.DirectionAsc)
	require.NoError(t, s.Run(context.Background()))

	assert.ElementsMatch(t, []string{
		generalStem + "--backup.meta.json",
		generalStem + "--backup.data.json",
		generalStem + "--backup~1.meta.json",
		generalStem + "--backup~1.data.json",
	}, backupArtifacts(t, cfg.Output.Directory))
}

func TestUnloadableHeaderIsBackedUp(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, nil)
	require.NoError(t, s.Run(context.Background()))

	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	require.NoError(t, os.WriteFile(files.HeaderPath(), []byte("not json"), 0o644))

	require.NoError(t, s.Run(context.Background()))

	header, err := files.LoadHeader()
	require.NoError(t, err)
	assert.Equal(t, int64(3), header.Storage.Count)

	backup := archive.NewChannelFiles(cfg.Output.Directory, generalStem+"--backup")
	assert.True(t, backup.Exists())
}

func TestMetadataOnlyChannelIsSkipped(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	cfg.ChannelDefaults.PostLimit = 0
	cfg.PublicChannelDefaults.PostLimit = 0
	s := New(fake, cfg, nil)

	require.NoError(t, s.Run(context.Background()))

	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	assert.False(t, files.Exists())
}

func TestEmojiMetadataRecorded(t *testing.T) {
	fake := serverFixture()
	fake.emojis = []model.Emoji{{ID: "e-ship", Name: "shipit", CreatorID: "u-alice"}}
	fake.posts["c-general"][2].Reactions = []model.PostReaction{
		{UserID: "u-alice", EmojiName: "shipit", CreateTime: model.Time(3100)},
		{UserID: "u-local", EmojiName: "thumbsup", CreateTime: model.Time(3200)},
	}
	cfg := testConfig(t)
	cfg.Output.HumanFriendlyPosts = true
	cfg.PublicChannelDefaults.Emojis.Metadata = true
	s := New(fake, cfg, nil)

	require.NoError(t, s.Run(context.Background()))

	files := archive.NewChannelFiles(cfg.Output.Directory, generalStem)
	header, err := files.LoadHeader()
	require.NoError(t, err)
	require.Contains(t, header.Emojis, model.Id("e-ship"))
	assert.Equal(t, "alice", header.Emojis["e-ship"].CreatorName)

	var withReactions *model.Post
	require.NoError(t, archive.ForEachPost(files.DataPath(), func(p model.Post) error {
		if len(p.Reactions) > 0 {
			q := p
			withReactions = &q
		}
		return nil
	}))
	require.NotNil(t, withReactions)
	assert.Equal(t, "local", withReactions.UserName)
	require.Len(t, withReactions.Reactions, 2)
	assert.Equal(t, model.Id("e-ship"), withReactions.Reactions[0].EmojiID)
	assert.Equal(t, "alice", withReactions.Reactions[0].UserName)
	// System emoji are not part of the custom database.
	assert.Empty(t, withReactions.Reactions[1].EmojiID)
}

func TestAttachmentsDownloadedWithFilters(t *testing.T) {
	fake := serverFixture()
	fake.posts["c-general"][1].Attachments = []model.FileAttachment{
		{ID: "f-doc", Name: "notes.txt", ByteSize: 100, MimeType: "text/plain"},
		{ID: "f-huge", Name: "dump.bin", ByteSize: 1 << 30, MimeType: "application/octet-stream"},
	}
	fake.files["files/f-doc"] = "meeting notes"
	fake.files["files/f-huge"] = "should never be fetched"
	cfg := testConfig(t)
	cfg.PublicChannelDefaults.Attachments.Download = true
	cfg.PublicChannelDefaults.Attachments.MaxSize = 1024
	s := New(fake, cfg, nil)

	require.NoError(t, s.Run(context.Background()))

	dir := archive.NewChannelFiles(cfg.Output.Directory, generalStem).AttachmentsDir()
	content, err := os.ReadFile(filepath.Join(dir, "f-doc.txt"))
	require.NoError(t, err)
	assert.Equal(t, "meeting notes", string(content))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
