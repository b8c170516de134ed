package prefctlcmd

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.gazette.dev/prefs"
	"go.gazette.dev/prefs/kvstore"
)

func TestSetThenGetOfEachType(t *testing.T) {
	var p = newPrefs()
	var ctx = context.Background()

	for _, tc := range []struct {
		typ, raw, expect string
	}{
		{"string", "dark", "dark"},
		{"int", "-42", "-42"},
		{"float", "1.5", "1.5"},
		{"bool", "true", "true"},
		{"strings", "b,a,b", "b,a,b"},
		{"set", "b,a,b", "a,b"},
		{"strings", "", ""},
		{"time", "2024-01-02T15:04:05.5Z", "2024-01-02T15:04:05.5Z"},
		{"raw", "anything", "anything"},
	} {
		var set = cmdSet{TypeConfig: TypeConfig{Type: tc.typ}, Key: "key." + tc.typ}
		require.NoError(t, set.run(ctx, p, tc.raw))

		var get = cmdGet{TypeConfig: TypeConfig{Type: tc.typ}, Key: "key." + tc.typ}
		var out bytes.Buffer
		require.NoError(t, get.run(p, &out))
		assert.Equal(t, tc.expect+"\n", out.String(), tc.typ)
	}
}

func TestGetAndSetErrors(t *testing.T) {
	var p = newPrefs()
	var ctx = context.Background()
	var out bytes.Buffer

	var get = cmdGet{TypeConfig: TypeConfig{Type: "string"}, Key: "missing"}
	assert.EqualError(t, get.run(p, &out), `preference "missing" is not set`)

	var set = cmdSet{TypeConfig: TypeConfig{Type: "int"}, Key: "n"}
	var err = set.run(ctx, p, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parsing "nope"`)
	assert.False(t, p.ContainsKey("n"))

	set = cmdSet{TypeConfig: TypeConfig{Type: "string"}, Key: "n"}
	require.NoError(t, set.run(ctx, p, "not a number"))

	get = cmdGet{TypeConfig: TypeConfig{Type: "int"}, Key: "n"}
	err = get.run(p, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `reading "n"`)
	assert.Empty(t, out.String())

	_, err = newTyped(p, "n", "unknown")
	assert.EqualError(t, err, `unknown type "unknown"`)
}

func TestClear(t *testing.T) {
	var p = newPrefs()
	var ctx = context.Background()
	mustSet(t, p, "a", "1")
	mustSet(t, p, "b", "2")
	mustSet(t, p, "c", "3")

	var cmd = cmdClear{Keys: []string{"a", "missing"}}
	require.NoError(t, cmd.run(ctx, p))
	assert.Equal(t, []string{"b", "c"}, p.Keys().Value())

	cmd = cmdClear{All: true}
	require.NoError(t, cmd.run(ctx, p))
	assert.Empty(t, p.Keys().Value())
}

func TestKeysTable(t *testing.T) {
	var p = newPrefs()
	mustSet(t, p, "theme", "dark")
	mustSet(t, p, "motd", strings.Repeat("x", 100))
	require.NoError(t, p.Store().Set(context.Background(), "blob", []byte{0xff, 0x00}).Err())

	var out bytes.Buffer
	var cmd = cmdKeys{Width: 10}
	require.NoError(t, cmd.run(p, &out))

	var s = out.String()
	assert.Contains(t, s, "theme")
	assert.Contains(t, s, "dark")
	assert.Contains(t, s, "4 B")
	assert.Contains(t, s, "xxxxxxx...")
	assert.Contains(t, s, "100 B")
	assert.Contains(t, s, "base64:")
	assert.NotContains(t, s, strings.Repeat("x", 11))
}

func TestDumpYAML(t *testing.T) {
	var p = newPrefs()
	mustSet(t, p, "theme", "dark")
	mustSet(t, p, "font", "mono")

	var out bytes.Buffer
	require.NoError(t, (&cmdDump{}).run(p, &out))
	assert.Equal(t, "font: mono\ntheme: dark\n", out.String())

	require.NoError(t, p.Store().Set(context.Background(), "blob", []byte{0xff, 0xfe}).Err())
	out.Reset()
	require.NoError(t, (&cmdDump{}).run(p, &out))
	assert.Contains(t, out.String(), "!!binary")
}

func TestWatchKeys(t *testing.T) {
	var p = newPrefs()
	mustSet(t, p, "theme", "dark")

	var ctx, cancel = context.WithCancel(context.Background())
	var out = new(syncBuffer)
	var done = make(chan error, 1)

	var cmd = cmdWatch{TypeConfig: TypeConfig{Type: "string"}, Keys: []string{"theme", "font"}}
	go func() { done <- cmd.run(ctx, p, out) }()

	out.await(t, "theme\tdark\n")
	out.await(t, "font\t\n") // Default of an unset preference.

	mustSet(t, p, "theme", "light")
	out.await(t, "theme\tlight\n")
	mustSet(t, p, "font", "mono")
	out.await(t, "font\tmono\n")

	cancel()
	require.NoError(t, <-done)
}

func TestWatchAll(t *testing.T) {
	var p = newPrefs()
	mustSet(t, p, "b", "1")

	var ctx, cancel = context.WithCancel(context.Background())
	var out = new(syncBuffer)
	var done = make(chan error, 1)

	var cmd = cmdWatch{All: true}
	go func() { done <- cmd.run(ctx, p, out) }()

	out.await(t, "b\n")
	mustSet(t, p, "a", "1")
	out.await(t, "a,b\n")

	cancel()
	require.NoError(t, <-done)
}

func TestPreviewAndFormatting(t *testing.T) {
	assert.Equal(t, "hello", preview("hello", 5))
	assert.Equal(t, "he...", preview("hello!", 5))
	assert.Equal(t, "hel", preview("hello", 3))
	assert.Equal(t, "héllo wörld", preview("héllo wörld", 0))

	assert.Equal(t, "text", formatRaw([]byte("text")))
	assert.Equal(t, "base64:/w==", formatRaw([]byte{0xff}))

	var v, _ = splitList("")
	assert.Equal(t, []string{}, v)
	v, _ = splitList("a,,b")
	assert.Equal(t, []string{"a", "", "b"}, v)
}

func newPrefs() *prefs.Preferences { return prefs.New(kvstore.NewMemoryStore(nil)) }

func mustSet(t *testing.T, p *prefs.Preferences, key, value string) {
	require.NoError(t, p.String(key, "").Write(context.Background(), value).Err())
}

// syncBuffer is a bytes.Buffer safe for concurrent use.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// await blocks until the buffer contains |s|.
func (b *syncBuffer) await(t *testing.T, s string) {
	t.Helper()
	require.Eventually(t, func() bool { return strings.Contains(b.String(), s) },
		5*time.Second, time.Millisecond, "awaiting %q (have %q)", s, b.String())
}
