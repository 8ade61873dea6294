package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sunwell/internal/eventbus"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFileLog_AppendChainsHashes(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFileLog(filepath.Join(dir, "audit.log"), nil)
	require.NoError(t, err)
	defer log.Close()

	e1, err := log.Append(context.Background(), "engine", "wave_scored", map[string]int{"wave_num": 0}, [16]byte{1}, [16]byte{2})
	require.NoError(t, err)
	assert.Equal(t, "", e1.PreviousHash)
	assert.NotEmpty(t, e1.EntryHash)

	e2, err := log.Append(context.Background(), "engine", "wave_scored", map[string]int{"wave_num": 1}, [16]byte{1}, [16]byte{2})
	require.NoError(t, err)
	assert.Equal(t, e1.EntryHash, e2.PreviousHash)
	assert.NotEqual(t, e1.EntryHash, e2.EntryHash)
}

func TestFileLog_SignatureSetWhenKeyConfigured(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFileLog(filepath.Join(dir, "audit.log"), []byte("secret"))
	require.NoError(t, err)
	defer log.Close()

	e, err := log.Append(context.Background(), "engine", "cascade_complete", "ok", [16]byte{}, [16]byte{})
	require.NoError(t, err)
	assert.NotEmpty(t, e.Signature)
}

func TestFileLog_ReopenRecoversChainTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")

	log1, err := OpenFileLog(path, nil)
	require.NoError(t, err)
	e1, err := log1.Append(context.Background(), "engine", "cascade_paused", "x", [16]byte{}, [16]byte{})
	require.NoError(t, err)
	require.NoError(t, log1.Close())

	log2, err := OpenFileLog(path, nil)
	require.NoError(t, err)
	defer log2.Close()
	e2, err := log2.Append(context.Background(), "engine", "cascade_paused", "y", [16]byte{}, [16]byte{})
	require.NoError(t, err)

	assert.Equal(t, e1.EntryHash, e2.PreviousHash)
	assert.Equal(t, e1.Seq+1, e2.Seq)
}

func TestFileLog_VerifyIntegrityPassesOnUntamperedChain(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFileLog(filepath.Join(dir, "audit.log"), []byte("secret"))
	require.NoError(t, err)
	defer log.Close()

	for i := 0; i < 3; i++ {
		_, err := log.Append(context.Background(), "engine", "wave_scored", i, [16]byte{}, [16]byte{})
		require.NoError(t, err)
	}

	ok, count, err := log.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, count)
}

func TestFileLog_VerifyIntegrityDetectsTamperedEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log, err := OpenFileLog(path, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := log.Append(context.Background(), "engine", "wave_scored", i, [16]byte{}, [16]byte{})
		require.NoError(t, err)
	}
	require.NoError(t, log.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 3)

	var e Entry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e))
	e.Action = "tampered"
	tampered, err := json.Marshal(e)
	require.NoError(t, err)
	lines[1] = string(tampered)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))

	reopened, err := OpenFileLog(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	ok, brokenAt, err := reopened.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, brokenAt)
}

func TestFileLog_QueryFiltersByRange(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFileLog(filepath.Join(dir, "audit.log"), nil)
	require.NoError(t, err)
	defer log.Close()

	for i := 0; i < 5; i++ {
		_, err := log.Append(context.Background(), "engine", "wave_scored", i, [16]byte{}, [16]byte{})
		require.NoError(t, err)
	}

	entries, err := log.Query(context.Background(), Range{FromSeq: 2, ToSeq: 3})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 2, entries[0].Seq)
	assert.Equal(t, 3, entries[1].Seq)
}

func TestFileLog_QueryFiltersByAction(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFileLog(filepath.Join(dir, "audit.log"), nil)
	require.NoError(t, err)
	defer log.Close()

	_, err = log.Append(context.Background(), "engine", "wave_scored", 1, [16]byte{}, [16]byte{})
	require.NoError(t, err)
	_, err = log.Append(context.Background(), "engine", "cascade_aborted", 2, [16]byte{}, [16]byte{})
	require.NoError(t, err)

	entries, err := log.Query(context.Background(), Range{Action: "cascade_aborted"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cascade_aborted", entries[0].Action)
}

func TestRunSubscriber_TranslatesTrackedEventsIntoEntries(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenFileLog(filepath.Join(dir, "audit.log"), nil)
	require.NoError(t, err)
	defer log.Close()

	bus := eventbus.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	go RunSubscriber(ctx, bus, log)

	_, err = bus.Publish(eventbus.EventWaveScored, map[string]int{"wave_num": 0})
	require.NoError(t, err)
	_, err = bus.Publish(eventbus.EventScanStart, map[string]string{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		entries, err := log.Query(context.Background(), Range{})
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := log.Query(context.Background(), Range{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "wave_scored", entries[0].Action)

	cancel()
	bus.Close()
}

func TestHashEntry_ChangesWithDetails(t *testing.T) {
	e1 := &Entry{Seq: 0, Action: "x", Details: []byte(`{"a":1}`)}
	e2 := &Entry{Seq: 0, Action: "x", Details: []byte(`{"a":2}`)}
	assert.NotEqual(t, hashEntry(e1), hashEntry(e2))
}

func TestSignHash_MatchesHMAC(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("abc"))
	want := hex.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, signHash([]byte("secret"), "abc"))
}
