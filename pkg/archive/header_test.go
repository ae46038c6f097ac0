package archive

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmdl/mattermost-dl/pkg/model"
)

func sampleChannel() model.Channel {
	return model.Channel{
		ID:           "ch1",
		Name:         "Town Square",
		InternalName: "town-square",
		Type:         model.ChannelOpen,
		CreateTime:   1000,
		MessageCount: 3,
	}
}

func sampleHeader() *ChannelHeader {
	h := NewChannelHeader(sampleChannel())
	h.Team = &model.Team{ID: "t1", Name: "Core", InternalName: "core", Type: model.TeamOpen, CreateTime: 500}
	h.Storage = &PostStorage{
		Count:        3,
		Organization: OrderingAscendingContinuous,
		ByteSize:     321,
		BeginTime:    100,
		FirstPostID:  "p1",
		EndTime:      300,
		LastPostID:   "p3",
	}
	h.AddUser(model.User{ID: "u1", Name: "alice", CreateTime: 10})
	h.AddUser(model.User{ID: "u2", Name: "bob", CreateTime: 20})
	h.AddEmoji(model.Emoji{ID: "e1", Name: "party", CreatorID: "u1", CreateTime: 30})
	return h
}

func TestHeaderRoundTrip(t *testing.T) {
	h := sampleHeader()

	data, err := json.Marshal(h)
	require.NoError(t, err)

	loaded, err := DecodeHeader(data, "x.meta.json")
	require.NoError(t, err)

	assert.Equal(t, "town-square", loaded.Channel.InternalName)
	require.NotNil(t, loaded.Team)
	assert.Equal(t, "core", loaded.Team.InternalName)
	require.NotNil(t, loaded.Storage)
	assert.Equal(t, *h.Storage, *loaded.Storage)
	assert.Len(t, loaded.Users, 2)
	assert.Equal(t, "alice", loaded.Users["u1"].Name)
	assert.Len(t, loaded.Emojis, 1)
}

func TestDecodeHeaderVersionHandling(t *testing.T) {
	t.Run("FutureMajorVersionIsSchemaError", func(t *testing.T) {
		data := []byte(`{"version":"1.2","channel":{"id":"ch1","internalName":"x","type":"Open"}}`)
		_, err := DecodeHeader(data, "x.meta.json")
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
	})

	t.Run("MissingVersionStillLoads", func(t *testing.T) {
		data := []byte(`{"channel":{"id":"ch1","internalName":"x","type":"Open"}}`)
		h, err := DecodeHeader(data, "x.meta.json")
		require.NoError(t, err)
		assert.Equal(t, model.Id("ch1"), h.Channel.ID)
	})

	t.Run("MinorVersionOfCurrentMajorLoads", func(t *testing.T) {
		data := []byte(`{"version":"0.3.1","channel":{"id":"ch1","internalName":"x","type":"Open"}}`)
		_, err := DecodeHeader(data, "x.meta.json")
		require.NoError(t, err)
	})

	t.Run("MissingChannelIsSchemaError", func(t *testing.T) {
		_, err := DecodeHeader([]byte(`{"version":"0"}`), "x.meta.json")
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
	})

	t.Run("GarbageIsSchemaError", func(t *testing.T) {
		_, err := DecodeHeader([]byte(`[1,2,3]`), "x.meta.json")
		var schemaErr *SchemaError
		require.ErrorAs(t, err, &schemaErr)
	})
}

func TestHeaderUpdate(t *testing.T) {
	stored := sampleHeader()

	fresh := NewChannelHeader(sampleChannel())
	fresh.Channel.MessageCount = 5
	fresh.Storage = &PostStorage{
		Count:             2,
		Organization:      OrderingAscendingContinuous,
		ByteSize:          540,
		BeginTime:         400,
		FirstPostID:       "p4",
		PostIDBeforeFirst: "p3",
		EndTime:           500,
		LastPostID:        "p5",
	}
	fresh.AddUser(model.User{ID: "u3", Name: "carol"})
	fresh.AddEmoji(model.Emoji{ID: "e2", Name: "wave"})

	require.NoError(t, stored.Update(fresh))

	assert.Equal(t, int64(5), stored.Channel.MessageCount)
	assert.Equal(t, int64(5), stored.Storage.Count)
	assert.Equal(t, int64(540), stored.Storage.ByteSize)
	assert.Equal(t, model.Id("p5"), stored.Storage.LastPostID)
	assert.Equal(t, model.Id("p1"), stored.Storage.FirstPostID)
	assert.Len(t, stored.Users, 3)
	assert.Len(t, stored.Emojis, 2)
	// Team survives even though the fresh header had none.
	require.NotNil(t, stored.Team)
}

func TestHeaderUpdateRejectsNonAdjacentStorage(t *testing.T) {
	stored := sampleHeader()

	fresh := NewChannelHeader(sampleChannel())
	fresh.Storage = &PostStorage{
		Count:             1,
		Organization:      OrderingAscendingContinuous,
		PostIDBeforeFirst: "p99",
	}

	assert.Error(t, stored.Update(fresh))
}

func TestHeaderUpdateReplacesEmptyStorage(t *testing.T) {
	stored := sampleHeader()
	stored.Storage = &PostStorage{Organization: OrderingAscendingContinuous}

	fresh := NewChannelHeader(sampleChannel())
	fresh.Storage = &PostStorage{
		Count:        2,
		Organization: OrderingDescendingContinuous,
		ByteSize:     120,
		FirstPostID:  "p2",
		LastPostID:   "p1",
	}

	// No stored posts means no adjacency to enforce; the fresh storage
	// takes over wholesale, organization included.
	require.NoError(t, stored.Update(fresh))
	assert.Equal(t, int64(2), stored.Storage.Count)
	assert.Equal(t, OrderingDescendingContinuous, stored.Storage.Organization)
}

func TestHeaderOmitsEmptySections(t *testing.T) {
	h := NewChannelHeader(sampleChannel())
	data, err := json.Marshal(h)
	require.NoError(t, err)

	var o map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &o))
	assert.Contains(t, o, "version")
	assert.Contains(t, o, "channel")
	assert.NotContains(t, o, "team")
	assert.NotContains(t, o, "storage")
	assert.NotContains(t, o, "users")
	assert.NotContains(t, o, "emojis")
}
