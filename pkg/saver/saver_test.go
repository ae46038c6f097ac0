package saver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmdl/mattermost-dl/pkg/archive"
	"github.com/mmdl/mattermost-dl/pkg/config"
	"github.com/mmdl/mattermost-dl/pkg/mmclient"
	"github.com/mmdl/mattermost-dl/pkg/model"
)

// fakeClient serves a small fixed server state without any HTTP.
type fakeClient struct {
	localUser model.User
	users     map[model.Id]model.User
	teams     map[model.Id]*model.Team
	channels  map[model.Id][]*model.Channel // per team id
	members   map[model.Id][]model.User     // per channel id
	posts     map[model.Id][]model.Post     // per channel id, oldest first
	emojis    []model.Emoji
	files     map[string]string // api path -> content

	token    bool
	loggedIn bool
	// failPostsAfter injects a failure after that many delivered posts.
	failPostsAfter int
}

func (f *fakeClient) HasToken() bool { return f.token }

func (f *fakeClient) Login(username, password string) error {
	f.loggedIn = true
	f.token = true
	return nil
}

func (f *fakeClient) LoadLocalUser(username string) (model.User, error) {
	if f.localUser.Name != username {
		return model.User{}, fmt.Errorf("unknown user %q", username)
	}
	return f.localUser, nil
}

func (f *fakeClient) Teams() (map[model.Id]*model.Team, error) { return f.teams, nil }

func (f *fakeClient) LoadChannels(teamID model.Id) error {
	team, ok := f.teams[teamID]
	if !ok {
		return fmt.Errorf("unknown team %s", teamID)
	}
	team.Channels = map[model.Id]*model.Channel{}
	for _, ch := range f.channels[teamID] {
		team.Channels[ch.ID] = ch
	}
	return nil
}

func (f *fakeClient) LoadChannelMembers(channel *model.Channel) error {
	if channel.Members != nil {
		return nil
	}
	channel.Members = f.members[channel.ID]
	return nil
}

func (f *fakeClient) UserByID(id model.Id) (model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return model.User{}, fmt.Errorf("unknown user %s", id)
}

func (f *fakeClient) UserByName(name string) (model.User, error) {
	for _, u := range f.users {
		if u.Name == name {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("unknown user %q", name)
}

func (f *fakeClient) EmojiByName(name string) (model.Emoji, error) {
	for _, e := range f.emojis {
		if e.Name == name {
			return e, nil
		}
	}
	return model.Emoji{}, fmt.Errorf("unknown emoji %q", name)
}

func (f *fakeClient) CacheEmoji(model.Emoji) {}

func (f *fakeClient) DirectChannelNameWith(otherUserID model.Id) string {
	return model.DirectChannelName(f.localUser.ID, otherUserID)
}

func (f *fakeClient) PeerOfDirectChannel(internalName string) (model.Id, error) {
	a, b, err := model.SplitDirectChannelName(internalName)
	if err != nil {
		return "", err
	}
	if a == f.localUser.ID {
		return b, nil
	}
	return a, nil
}

func (f *fakeClient) PostTime(id model.Id) (model.Time, error) {
	for _, posts := range f.posts {
		for _, p := range posts {
			if p.ID == id {
				return p.CreateTime, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown post %s", id)
}

func (f *fakeClient) ProcessEmojiList(maxCount int64, processor func(model.Emoji) error) error {
	for i, e := range f.emojis {
		if maxCount > 0 && int64(i) >= maxCount {
			break
		}
		if err := processor(e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeClient) DownloadTo(path string, w io.Writer) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("no such file %s", path)
	}
	_, err := io.WriteString(w, content)
	return "", err
}

// ProcessPosts walks the fixture posts the way the real fetcher walks
// the server: anchors bound the window, time bounds and max count stop
// the traversal, and hints carry the channel-order neighbors.
func (f *fakeClient) ProcessPosts(channel *model.Channel, opts mmclient.FetchOptions, processor func(model.Post, *mmclient.PostHints) error) (mmclient.FetchResult, error) {
	posts := f.posts[channel.ID]
	if !opts.AfterTime.IsZero() && !opts.BeforeTime.IsZero() && !opts.AfterTime.Before(opts.BeforeTime) {
		return mmclient.FetchNothingRequested, nil
	}
	skip := opts.OnSkippedPost
	if skip == nil {
		skip = func() {}
	}
	indexOf := func(id model.Id) int {
		for i, p := range posts {
			if p.ID == id {
				return i
			}
		}
		return -1
	}
	neighbors := func(i int) (before, after model.Id) {
		if i > 0 {
			before = posts[i-1].ID
		}
		if i+1 < len(posts) {
			after = posts[i+1].ID
		}
		return before, after
	}

	hints := &mmclient.PostHints{}
	var delivered int64
	emit := func(i int) (*mmclient.FetchResult, error) {
		p := posts[i]
		if opts.Direction == model.DirectionDesc {
			if (opts.AfterPost != "" && p.ID == opts.AfterPost) ||
				(!opts.AfterTime.IsZero() && p.CreateTime.Before(opts.AfterTime)) {
				return resultPtr(mmclient.FetchConditionReached), nil
			}
		} else {
			if (opts.BeforePost != "" && p.ID == opts.BeforePost) ||
				(!opts.BeforeTime.IsZero() && p.CreateTime.After(opts.BeforeTime)) {
				return resultPtr(mmclient.FetchConditionReached), nil
			}
		}
		if opts.MaxCount > 0 && hints.ProcessedCount == opts.MaxCount {
			return resultPtr(mmclient.FetchMaxCountReached), nil
		}
		if opts.Direction == model.DirectionDesc {
			if !opts.BeforeTime.IsZero() && !p.CreateTime.Before(opts.BeforeTime) {
				skip()
				return nil, nil
			}
		} else {
			if !opts.AfterTime.IsZero() && !p.CreateTime.After(opts.AfterTime) {
				skip()
				return nil, nil
			}
		}
		if f.failPostsAfter > 0 && delivered == int64(f.failPostsAfter) {
			return nil, errors.New("connection reset mid-download")
		}
		hints.PostIDBefore, hints.PostIDAfter = neighbors(i)
		if err := processor(p, hints); err != nil {
			return nil, err
		}
		hints.ProcessedCount++
		delivered++
		return nil, nil
	}

	if opts.Direction == model.DirectionDesc {
		start := len(posts) - 1
		if opts.BeforePost != "" {
			start = indexOf(opts.BeforePost) - 1
		}
		for i := start; i >= 0; i-- {
			stop, err := emit(i)
			if err != nil {
				return 0, err
			}
			if stop != nil {
				return *stop, nil
			}
		}
	} else {
		start := 0
		if opts.AfterPost != "" {
			start = indexOf(opts.AfterPost) + 1
		}
		for i := start; i < len(posts); i++ {
			stop, err := emit(i)
			if err != nil {
				return 0, err
			}
			if stop != nil {
				return *stop, nil
			}
		}
	}
	return mmclient.FetchNoMorePosts, nil
}

func resultPtr(r mmclient.FetchResult) *mmclient.FetchResult { return &r }

func ptr[T any](v T) *T { return &v }

func testUser(id model.Id, name string) model.User {
	return model.User{ID: id, Name: name, CreateTime: model.Time(1000)}
}

func testPost(id, userID model.Id, at int64, message string) model.Post {
	return model.Post{ID: id, UserID: userID, CreateTime: model.Time(at), Message: message}
}

// serverFixture builds a fake with one team carrying one public
// channel with three posts.
func serverFixture() *fakeClient {
	local := testUser("u-local", "local")
	alice := testUser("u-alice", "alice")
	team := &model.Team{ID: "t-eng", Name: "Engineering", InternalName: "eng", CreateTime: model.Time(500)}
	general := &model.Channel{
		ID:              "c-general",
		InternalName:    "general",
		Name:            "General",
		Type:            model.ChannelOpen,
		CreateTime:      model.Time(500),
		MessageCount:    3,
		LastMessageTime: model.Time(3000),
	}
	return &fakeClient{
		localUser: local,
		users:     map[model.Id]model.User{local.ID: local, alice.ID: alice},
		teams:     map[model.Id]*model.Team{team.ID: team},
		channels:  map[model.Id][]*model.Channel{team.ID: {general}},
		posts: map[model.Id][]model.Post{
			general.ID: {
				testPost("p1", "u-local", 1000, "first"),
				testPost("p2", "u-alice", 2000, "second"),
				testPost("p3", "u-local", 3000, "third"),
			},
		},
		files: map[string]string{},
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	opts := config.DefaultChannelOptions()
	return &config.Config{
		Connection: config.ConnectionConfig{Hostname: "https://chat.example.com", Username: "local", Password: "hunter2"},
		Output:     config.OutputConfig{Directory: t.TempDir()},
		Report:     config.ReportConfig{ProgressInterval: 500},

		ChannelDefaults:        opts,
		DirectChannelDefaults:  opts,
		GroupChannelDefaults:   opts,
		PrivateChannelDefaults: opts,
		PublicChannelDefaults:  opts,
	}
}

func countPosts(t *testing.T, path string) int {
	t.Helper()
	n := 0
	require.NoError(t, archive.ForEachPost(path, func(model.Post) error {
		n++
		return nil
	}))
	return n
}

func TestRunArchivesTeamChannel(t *testing.T) {
	fake := serverFixture()
	cfg := testConfig(t)
	s := New(fake, cfg, nil)

	require.NoError(t, s.Run(context.Background()))
	assert.True(t, fake.loggedIn)

	files := archive.NewChannelFiles(cfg.Output.Directory, "o.eng--general")
	header, err := files.LoadHeader()
	require.NoError(t, err)

	assert.Equal(t, model.Id("c-general"), header.Channel.ID)
	require.NotNil(t, header.Team)
	assert.Equal(t, "eng", header.Team.InternalName)

	require.NotNil(t, header.Storage)
	assert.Equal(t, int64(3), header.Storage.Count)
	assert.Equal(t, archive.OrderingAscendingContinuous, header.Storage.Organization)
	assert.Equal(t, model.Id("p1"), header.Storage.FirstPostID)
	assert.Equal(t, model.Id("p3"), header.Storage.LastPostID)
	assert.Empty(t, header.Storage.PostIDBeforeFirst)
	assert.Empty(t, header.Storage.PostIDAfterLast)

	size, ok := files.DataSize()
	require.True(t, ok)
	assert.Equal(t, header.Storage.ByteSize, size)
	assert.Equal(t, 3, countPosts(t, files.DataPath()))

	assert.Contains(t, header.Users, model.Id("u-local"))
	assert.Contains(t, header.Users, model.Id("u-alice"))
}

func TestRunReportsFailedChannels(t *testing.T) {
	fake := serverFixture()
	fake.failPostsAfter = 1
	cfg := testConfig(t)
	s := New(fake, cfg, nil)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 download(s) failed")
}

func TestRunRequiresTeamMembership(t *testing.T) {
	fake := serverFixture()
	fake.teams = map[model.Id]*model.Team{}
	s := New(fake, testConfig(t), nil)

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a member of any team")
}

func TestRunDownloadsEmojiDatabase(t *testing.T) {
	fake := serverFixture()
	fake.emojis = []model.Emoji{
		{ID: "e1", Name: "partyparrot", CreatorID: "u-alice"},
		{ID: "e2", Name: "shipit", CreatorID: "u-local"},
	}
	fake.files["emoji/e1/image"] = "parrot-image-bytes"
	fake.files["emoji/e2/image"] = "shipit-image-bytes"
	cfg := testConfig(t)
	cfg.DownloadEmojis = true
	s := New(fake, cfg, nil)

	require.NoError(t, s.Run(context.Background()))

	entries, err := os.ReadDir(filepath.Join(cfg.Output.Directory, "emojis"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, entry := range entries {
		stem := entry.Name()[:len(entry.Name())-len(filepath.Ext(entry.Name()))]
		assert.Contains(t, []string{"partyparrot", "shipit"}, stem)
	}
}

func TestSelectDirectChannels(t *testing.T) {
	local := testUser("u-local", "local")
	bob := testUser("u-bob", "bob")
	carol := testUser("u-carol", "carol")
	fake := &fakeClient{
		localUser: local,
		users:     map[model.Id]model.User{local.ID: local, bob.ID: bob, carol.ID: carol},
	}
	bobChannel := &model.Channel{ID: "c-bob", InternalName: model.DirectChannelName(local.ID, bob.ID), Type: model.ChannelDirect}
	carolChannel := &model.Channel{ID: "c-carol", InternalName: model.DirectChannelName(local.ID, carol.ID), Type: model.ChannelDirect}

	cfg := testConfig(t)
	cfg.DownloadUserChannels = ptr(false)
	limit := int64(10)
	cfg.Users = []config.ChannelSpec{{
		EntityLocator:       model.EntityLocator{Name: "bob"},
		ChannelOptionsPatch: config.ChannelOptionsPatch{MaximumPostCount: &limit},
	}}
	s := New(fake, cfg, nil)
	s.user = local

	requests := s.selectDirectChannels([]*model.Channel{bobChannel, carolChannel})
	require.Len(t, requests, 1)
	assert.Equal(t, "d.local--bob", requests[0].stem)
	assert.Equal(t, int64(10), requests[0].opts.PostLimit)
	require.Len(t, requests[0].seedUsers, 2)
}

func TestSelectGroupChannelsByMembers(t *testing.T) {
	local := testUser("u-local", "local")
	alice := testUser("u-alice", "alice")
	bob := testUser("u-bob", "bob")
	group := &model.Channel{ID: "c-group", InternalName: "g-hash", Type: model.ChannelGroup}
	other := &model.Channel{ID: "c-other", InternalName: "g-other", Type: model.ChannelGroup}
	fake := &fakeClient{
		localUser: local,
		users:     map[model.Id]model.User{local.ID: local, alice.ID: alice, bob.ID: bob},
		members: map[model.Id][]model.User{
			"c-group": {local, alice, bob},
			"c-other": {local, alice},
		},
	}

	cfg := testConfig(t)
	cfg.DownloadGroupChannels = ptr(false)
	cfg.Groups = []config.GroupChannelSpec{{
		Group: config.GroupLocator{Members: []model.EntityLocator{{Name: "alice"}, {Name: "bob"}}},
	}}
	s := New(fake, cfg, nil)
	s.user = local

	requests := s.selectGroupChannels([]*model.Channel{group, other})
	require.Len(t, requests, 1)
	assert.Equal(t, "g.alice-bob-local", requests[0].stem)
	assert.Equal(t, model.Id("c-group"), requests[0].channel.ID)
}

func TestSelectTeamChannelsExplicitOnly(t *testing.T) {
	local := testUser("u-local", "local")
	team := &model.Team{ID: "t-eng", InternalName: "eng", Channels: map[model.Id]*model.Channel{
		"c-general": {ID: "c-general", InternalName: "general", Name: "General", Type: model.ChannelOpen},
		"c-random":  {ID: "c-random", InternalName: "random", Name: "Random", Type: model.ChannelOpen},
		"c-secret":  {ID: "c-secret", InternalName: "secret", Name: "Secret", Type: model.ChannelPrivate},
	}}
	fake := &fakeClient{localUser: local, users: map[model.Id]model.User{local.ID: local}}

	cfg := testConfig(t)
	cfg.Teams = []config.TeamSpec{{
		Team:                   model.EntityLocator{InternalName: "eng"},
		DownloadPublicChannels: ptr(false),
		PublicChannels:         []config.ChannelSpec{{EntityLocator: model.EntityLocator{InternalName: "general"}}},
	}}
	s := New(fake, cfg, nil)
	s.user = local

	requests := s.selectTeamChannels(team)
	require.Len(t, requests, 2)
	stems := []string{requests[0].stem, requests[1].stem}
	assert.Contains(t, stems, "o.eng--general")
	assert.Contains(t, stems, "p.eng--secret")
}
