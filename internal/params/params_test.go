package params

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/LaunchPipe/internal/models"
	"github.com/BTreeMap/LaunchPipe/internal/store"
)

type recordingNavigator struct {
	addresses []string
}

func (n *recordingNavigator) Navigate(ctx context.Context, address string) error {
	n.addresses = append(n.addresses, address)
	return nil
}

func TestReadEntryParameters(t *testing.T) {
	t.Run("last occurrence wins, first position kept", func(t *testing.T) {
		set := ReadEntryParameters("https://app.example/quiz?id=a&locale=fr_FR&id=b")
		assert.Equal(t, "b", set.Value("id"))
		assert.Equal(t, []string{"id", "locale"}, set.Keys())
	})

	t.Run("form decoding", func(t *testing.T) {
		set := ReadEntryParameters("https://app.example/?name=Ada+Lovelace&tag=a%2Bb&bad=%zz&flag")
		assert.Equal(t, "Ada Lovelace", set.Value("name"))
		assert.Equal(t, "a+b", set.Value("tag"))
		assert.Equal(t, "%zz", set.Value("bad"))
		v, ok := set.Get("flag")
		assert.True(t, ok)
		assert.Equal(t, "", v)
	})

	t.Run("invalid utf-8 escapes become replacement characters", func(t *testing.T) {
		set := ReadEntryParameters("https://app.example/?a=%FF&b=x%E2%82y&c=%FF%FE&d=%E2%82%AC&e=%C3%zz&%FF=k")
		assert.Equal(t, "\uFFFD", set.Value("a"))
		assert.Equal(t, "x\uFFFDy", set.Value("b"))
		assert.Equal(t, "\uFFFD\uFFFD", set.Value("c"))
		assert.Equal(t, "€", set.Value("d"))
		assert.Equal(t, "\uFFFD%zz", set.Value("e"))
		assert.Equal(t, "k", set.Value("\uFFFD"))
	})

	t.Run("no query", func(t *testing.T) {
		assert.True(t, ReadEntryParameters("https://app.example/quiz").IsEmpty())
		assert.True(t, ReadEntryParameters("https://app.example/quiz?").IsEmpty())
	})

	t.Run("fragment ignored", func(t *testing.T) {
		set := ReadEntryParameters("https://app.example/?id=u1#section")
		assert.Equal(t, "u1", set.Value("id"))
		assert.Equal(t, 1, set.Len())
	})
}

func TestOriginAndBaseAddress(t *testing.T) {
	assert.Equal(t, "https://app.example:8443", OriginOf("https://app.example:8443/quiz?id=1"))
	assert.Equal(t, "", OriginOf("/relative?id=1"))
	assert.Equal(t, "https://app.example/quiz", BaseAddress("https://app.example/quiz?id=1&x=2#top"))
}

const testClient = "client-0001"

func TestSnapshotsAreScopedToOneBrowser(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	alice := NewSnapshotter(st, "https://app.example", "client-alice", nil)
	bob := NewSnapshotter(st, "https://app.example", "client-bob", nil)

	require.NoError(t, alice.Persist(ctx, ReadEntryParameters("https://app.example/?id=alice")))

	out, err := bob.Restore(ctx)
	require.NoError(t, err)
	assert.Nil(t, out)

	out, err = alice.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "alice", out.Value("id"))
}

func TestValidClientID(t *testing.T) {
	assert.True(t, ValidClientID("3f2b8c1e-9a4d-4c5e-8f7a-1b2c3d4e5f60"))
	assert.True(t, ValidClientID("client_01"))
	assert.False(t, ValidClientID(""))
	assert.False(t, ValidClientID("short"))
	assert.False(t, ValidClientID("has space in it"))
	assert.False(t, ValidClientID("../../etc/passwd"))
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotter(store.NewInMemoryStore(), "https://app.example", testClient, nil)

	in := ReadEntryParameters("https://app.example/?id=user123&deep_link_module_id=7&utm=x%20y&raw=%FF%E2%82")
	require.NoError(t, s.Persist(ctx, in))

	out, err := s.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.Keys(), out.Keys())
	for _, k := range in.Keys() {
		assert.Equal(t, in.Value(k), out.Value(k), "key %s", k)
	}
}

func TestPersistEmptyKeepsPreviousSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotter(store.NewInMemoryStore(), "https://app.example", testClient, nil)

	require.NoError(t, s.Persist(ctx, ReadEntryParameters("https://app.example/?id=u1")))
	require.NoError(t, s.Persist(ctx, models.NewParameterSet()))
	require.NoError(t, s.Persist(ctx, nil))

	out, err := s.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "u1", out.Value("id"))
}

func TestRestoreAbsent(t *testing.T) {
	s := NewSnapshotter(store.NewInMemoryStore(), "https://app.example", testClient, nil)
	out, err := s.Restore(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, out)
}

func TestRestoreMalformedReportsParseError(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	require.NoError(t, st.SaveSnapshot(ctx, "https://app.example", SnapshotKey(testClient), "{not json"))

	out, err := NewSnapshotter(st, "https://app.example", testClient, nil).Restore(ctx)
	assert.Nil(t, out)
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "https://app.example", perr.Origin)
}

func TestClearRemovesSnapshotAndNavigatesToBase(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	nav := &recordingNavigator{}
	s := NewSnapshotter(st, "https://app.example", testClient, nav)

	require.NoError(t, s.Persist(ctx, ReadEntryParameters("https://app.example/?id=u1")))
	require.NoError(t, s.Clear(ctx, "https://app.example/quiz/?id=u1&skill_id=3"))

	out, err := s.Restore(ctx)
	assert.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, []string{"https://app.example/quiz/"}, nav.addresses)
}

func TestSnapshotEncodingIsPlainObject(t *testing.T) {
	ctx := context.Background()
	st := store.NewInMemoryStore()
	s := NewSnapshotter(st, "o", testClient, nil)
	require.NoError(t, s.Persist(ctx, ReadEntryParameters("https://app.example/?id=u1&locale=de_DE")))

	data, found, err := st.LoadSnapshot(ctx, "o", SnapshotKey(testClient))
	require.NoError(t, err)
	require.True(t, found)
	var generic map[string]string
	require.NoError(t, json.Unmarshal([]byte(data), &generic))
	assert.Equal(t, map[string]string{"id": "u1", "locale": "de_DE"}, generic)
}
