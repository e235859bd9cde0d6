// Package journal keeps an append-only, length-framed log of cycle records on disk.
package journal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/qcr/abb-libegm/internal/domain"
	"github.com/qcr/abb-libegm/internal/ports"
)

const recordHeaderLen = 12

// FileName is the journal file inside the journal directory.
const FileName = "cycles.journal"

type EntryID uint64

type Stats struct {
	Records   uint64
	LatestID  EntryID
	SizeBytes int64
}

type FileJournal struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	nextID    EntryID
	records   uint64
	sizeBytes int64
	scratch   bytes.Buffer
}

// Open opens (or creates) the journal in dir. A record torn by a crash is truncated.
func Open(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	j := &FileJournal{
		path:   path,
		file:   f,
		writer: bufio.NewWriterSize(f, 1<<20),
	}
	if err := j.scanExisting(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) scanExisting() error {
	rf, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset  int64
		lastID  EntryID
		records uint64
	)

	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan header: %w", err)
		}
		id := EntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])

		if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan body: %w", err)
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
		records++
	}

	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.sizeBytes = offset
	j.nextID = lastID
	j.records = records
	return nil
}

// Append buffers one record; Flush makes it visible to readers.
func (j *FileJournal) Append(rec *domain.CycleRecord) (EntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appendLocked(rec)
}

func (j *FileJournal) appendLocked(rec *domain.CycleRecord) (EntryID, error) {
	j.scratch.Reset()
	if err := j.frame(&j.scratch, j.nextID+1, rec); err != nil {
		return 0, err
	}
	return j.commitLocked(1)
}

// frame encodes one entry: [8 bytes id][4 bytes len][len bytes json].
func (j *FileJournal) frame(buf *bytes.Buffer, id EntryID, rec *domain.CycleRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))
	buf.Write(hdr[:])
	buf.Write(b)
	return nil
}

// commitLocked writes the framed entries in scratch; ids and counters only advance
// once the bytes are accepted by the writer.
func (j *FileJournal) commitLocked(n int) (EntryID, error) {
	size := j.scratch.Len()
	if _, err := j.writer.Write(j.scratch.Bytes()); err != nil {
		return 0, err
	}
	j.nextID += EntryID(n)
	j.records += uint64(n)
	j.sizeBytes += int64(size)
	return j.nextID, nil
}

// WriteBatch appends and flushes a batch, so the journal can serve as a cycle sink.
// The whole batch is encoded before anything is written; records that cannot be
// encoded (NaN feedback, for instance) are skipped and reported through a
// ports.PartialWriteError.
func (j *FileJournal) WriteBatch(records []*domain.CycleRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.scratch.Reset()
	var (
		written int
		skipErr error
	)
	for _, rec := range records {
		mark := j.scratch.Len()
		if err := j.frame(&j.scratch, j.nextID+EntryID(written)+1, rec); err != nil {
			j.scratch.Truncate(mark)
			if skipErr == nil {
				skipErr = err
			}
			continue
		}
		written++
	}
	if written > 0 {
		if _, err := j.commitLocked(written); err != nil {
			return err
		}
		if err := j.writer.Flush(); err != nil {
			return err
		}
	}
	if skipErr != nil {
		return &ports.PartialWriteError{Written: written, Dropped: len(records) - written, Err: skipErr}
	}
	return nil
}

func (j *FileJournal) Name() string { return "journal" }

func (j *FileJournal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.writer.Flush()
}

// Iterate replays every record with an id >= from in append order.
func (j *FileJournal) Iterate(from EntryID, fn func(id EntryID, rec *domain.CycleRecord) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return iterateFile(j.path, from, fn)
}

func (j *FileJournal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Stats{Records: j.records, LatestID: j.nextID, SizeBytes: j.sizeBytes}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.writer.Flush(); err != nil {
		j.file.Close()
		return err
	}
	return j.file.Close()
}

// Replay reads a journal directory without opening it for writing.
func Replay(dir string, fn func(id EntryID, rec *domain.CycleRecord) error) error {
	return iterateFile(filepath.Join(dir, FileName), 0, fn)
}

func iterateFile(path string, from EntryID, fn func(id EntryID, rec *domain.CycleRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	remaining := info.Size()

	r := bufio.NewReader(f)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("journal iterate truncated header: %w", err)
		}
		id := EntryID(binary.BigEndian.Uint64(hdr[0:8]))
		l := binary.BigEndian.Uint32(hdr[8:12])
		remaining -= recordHeaderLen
		if int64(l) > remaining {
			return fmt.Errorf("corrupt journal: entry %d claims %d bytes, %d left", id, l, remaining)
		}
		remaining -= int64(l)

		b := make([]byte, l)
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt journal: %w", err)
		}
		if id < from {
			continue
		}

		var rec domain.CycleRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return fmt.Errorf("corrupt journal entry %d: %w", id, err)
		}
		if err := fn(id, &rec); err != nil {
			return err
		}
	}
}

var _ ports.CycleSink = (*FileJournal)(nil)
