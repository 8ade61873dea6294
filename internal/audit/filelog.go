package audit

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sunwell/internal/logging"
)

// FileLog appends one JSON line per entry to a file, keeping the running
// previous_hash in memory. Opening an existing log recomputes that hash
// from its last line so a restarted process can keep extending the chain.
type FileLog struct {
	mu           sync.Mutex
	file         *os.File
	signingKey   []byte
	previousHash string
	nextSeq      int
}

// DefaultLogPath returns the conventional audit log location under a
// workspace root.
func DefaultLogPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".health", "audit.log")
}

// OpenFileLog opens (creating if absent) the audit log at path, replaying
// it to recover the chain's tail hash and next sequence number. signingKey
// may be nil, in which case entries are chained but unsigned.
func OpenFileLog(path string, signingKey []byte) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("audit: create log directory: %w", err)
	}

	l := &FileLog{signingKey: signingKey}

	if existing, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(existing)
		scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
		for scanner.Scan() {
			var e Entry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				existing.Close()
				return nil, fmt.Errorf("audit: parse existing log at seq boundary: %w", err)
			}
			l.previousHash = e.EntryHash
			l.nextSeq = e.Seq + 1
		}
		existing.Close()
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("audit: scan existing log: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("audit: open existing log: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log for append: %w", err)
	}
	l.file = f
	return l, nil
}

// Append computes the entry hash over the canonical serialization
// (including previous_hash), signs it if a key is configured, writes the
// JSON line, and fsyncs before returning.
func (l *FileLog) Append(ctx context.Context, actorID, action string, details any, inputsHash, outputsHash [16]byte) (*Entry, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal details: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := &Entry{
		Seq:          l.nextSeq,
		Timestamp:    time.Now(),
		ActorID:      actorID,
		Action:       action,
		Details:      raw,
		InputsHash:   inputsHash,
		OutputsHash:  outputsHash,
		PreviousHash: l.previousHash,
	}
	e.EntryHash = hashEntry(e)
	if len(l.signingKey) > 0 {
		e.Signature = signHash(l.signingKey, e.EntryHash)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("audit: marshal entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("audit: write entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return nil, fmt.Errorf("audit: sync entry: %w", err)
	}

	l.previousHash = e.EntryHash
	l.nextSeq++
	logging.Get(logging.CategoryAudit).Debug("appended entry seq=%d action=%s", e.Seq, e.Action)
	return e, nil
}

// Query re-reads the log and filters entries to the requested range.
func (l *FileLog) Query(ctx context.Context, r Range) ([]*Entry, error) {
	l.mu.Lock()
	path := l.file.Name()
	l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log for query: %w", err)
	}
	defer f.Close()

	var results []*Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit: parse entry during query: %w", err)
		}
		if matchesRange(&e, r) {
			entry := e
			results = append(results, &entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log during query: %w", err)
	}
	return results, nil
}

func matchesRange(e *Entry, r Range) bool {
	if r.FromSeq != 0 && e.Seq < r.FromSeq {
		return false
	}
	if r.ToSeq != 0 && e.Seq > r.ToSeq {
		return false
	}
	if !r.Since.IsZero() && e.Timestamp.Before(r.Since) {
		return false
	}
	if !r.Until.IsZero() && e.Timestamp.After(r.Until) {
		return false
	}
	if r.Action != "" && e.Action != r.Action {
		return false
	}
	return true
}

// VerifyIntegrity re-walks the chain from the start, rechecking every
// entry's hash, previous_hash linkage, and signature. It returns the
// number of entries that verified cleanly before the first break, and
// whether the whole chain verified.
func (l *FileLog) VerifyIntegrity(ctx context.Context) (bool, int, error) {
	entries, err := l.Query(ctx, Range{})
	if err != nil {
		return false, 0, err
	}

	prev := ""
	for i, e := range entries {
		if e.PreviousHash != prev {
			return false, i, nil
		}
		want := hashEntry(e)
		if e.EntryHash != want {
			return false, i, nil
		}
		if len(l.signingKey) > 0 {
			if e.Signature != signHash(l.signingKey, e.EntryHash) {
				return false, i, nil
			}
		}
		prev = e.EntryHash
	}
	return true, len(entries), nil
}

// Close releases the underlying file handle.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func hashEntry(e *Entry) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%s|%s|%s|%s|%x|%x|%s",
		e.Seq, e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		e.ActorID, e.Action, e.Details, e.InputsHash, e.OutputsHash, e.PreviousHash)
	return hex.EncodeToString(h.Sum(nil))
}

func signHash(key []byte, entryHash string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(entryHash))
	return hex.EncodeToString(mac.Sum(nil))
}
