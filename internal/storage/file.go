package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"snoozebot/internal/mute"
	logx "snoozebot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl         (append-only JSON Lines)
//   - <prefix>.mute.snapshot.json  (periodic snapshot)
//   - <prefix>.mute.journal.jsonl  (append-only journal, fsynced per write)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	byMember     map[int64]muteRow
	lastID       int64

	writes       int
	compactEvery int
}

type journalOp struct {
	Op       string   `json:"op"` // "put" | "del"
	Row      *muteRow `json:"row,omitempty"`
	MemberID int64    `json:"member_id,omitempty"`
}

type fileSnapshot struct {
	LastID  int64     `json:"last_id"`
	Records []muteRow `json:"records"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".mute.snapshot.json"
	journalPath := prefix + ".mute.journal.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	st := &fileStore{
		log:          log,
		auditFile:    af,
		snapshotPath: snapPath,
		byMember:     map[int64]muteRow{},
		compactEvery: 1000,
	}
	if err := st.loadSnapshot(snapPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = af.Close()
		return nil, fmt.Errorf("failed to load mute snapshot: %w", err)
	}
	if err := st.replayJournal(journalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = af.Close()
		return nil, fmt.Errorf("failed to replay mute journal: %w", err)
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}
	if err := terminateTornLine(jf); err != nil {
		_ = af.Close()
		_ = jf.Close()
		return nil, err
	}
	st.journalFile = jf
	log.Info("file store opened", logx.String("prefix", prefix), logx.Int("records", len(st.byMember)))
	return st, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.journalFile != nil {
		err2 = s.journalFile.Close()
		s.journalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	stampAudit(&e)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Upsert(ctx context.Context, rec mute.Record) (mute.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return mute.Record{}, ErrClosed
	}
	rec.ID = s.lastID + 1
	row := rowOf(rec)
	if err := s.appendLocked(journalOp{Op: "put", Row: &row}); err != nil {
		return mute.Record{}, fmt.Errorf("failed to upsert mute record: %w", err)
	}
	s.lastID = rec.ID
	s.byMember[rec.MemberID] = row
	s.afterWriteLocked()
	return rec, nil
}

func (s *fileStore) Get(ctx context.Context, memberID int64) (mute.Record, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return mute.Record{}, false, ErrClosed
	}
	row, ok := s.byMember[memberID]
	if !ok {
		return mute.Record{}, false, nil
	}
	return row.record(), true, nil
}

func (s *fileStore) Delete(ctx context.Context, memberID int64) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	if _, ok := s.byMember[memberID]; !ok {
		return nil
	}
	if err := s.appendLocked(journalOp{Op: "del", MemberID: memberID}); err != nil {
		return fmt.Errorf("failed to delete mute record: %w", err)
	}
	delete(s.byMember, memberID)
	s.afterWriteLocked()
	return nil
}

func (s *fileStore) ListAll(ctx context.Context) ([]mute.Record, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrClosed
	}
	out := make([]mute.Record, 0, len(s.byMember))
	for _, row := range s.byMember {
		out = append(out, row.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt < out[j].ExpiresAt })
	return out, nil
}

// appendLocked writes one journal line and fsyncs it.
func (s *fileStore) appendLocked(op journalOp) error {
	b, err := json.Marshal(op)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := s.journalFile.Write(b); err != nil {
		return err
	}
	return s.journalFile.Sync()
}

func (s *fileStore) afterWriteLocked() {
	s.writes++
	if s.compactEvery > 0 && s.writes%s.compactEvery == 0 {
		// Best-effort compact; the journal stays authoritative on failure.
		if err := s.compactLocked(); err != nil {
			s.log.Warn("mute journal compact failed", logx.Err(err))
		}
	}
}

func (s *fileStore) compactLocked() error {
	snap := fileSnapshot{LastID: s.lastID, Records: make([]muteRow, 0, len(s.byMember))}
	for _, row := range s.byMember {
		snap.Records = append(snap.Records, row)
	}

	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) loadSnapshot(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var snap fileSnapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return err
	}
	s.lastID = snap.LastID
	for _, row := range snap.Records {
		s.byMember[row.MemberID] = row
		s.lastID = max(s.lastID, row.ID)
	}
	return nil
}

func (s *fileStore) replayJournal(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var op journalOp
		if err := json.Unmarshal(sc.Bytes(), &op); err != nil {
			// A torn final line from a crash mid-write is skipped.
			s.log.Warn("skipping unreadable journal line", logx.Err(err))
			continue
		}
		switch op.Op {
		case "put":
			if op.Row == nil {
				continue
			}
			s.byMember[op.Row.MemberID] = *op.Row
			s.lastID = max(s.lastID, op.Row.ID)
		case "del":
			delete(s.byMember, op.MemberID)
		}
	}
	return sc.Err()
}

// terminateTornLine appends a newline when the journal ends mid-line, so the
// next record does not get glued to a torn write.
func terminateTornLine(f *os.File) error {
	fi, err := f.Stat()
	if err != nil || fi.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, fi.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.Write([]byte{'\n'})
	return err
}
