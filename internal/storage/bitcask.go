package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/tunablekv/tunablekv/pkg/types"
)

const (
	// record format: CRC32(4) + Timestamp(8) + KeyLen(4) + ValueLen(4) + Key + Value
	headerSize   = 4 + 8 + 4 + 4 // 20 bytes
	dataFileName = "data.db"
)

// Bitcask is a trimmed-down Bitcask append log: every Store call appends a
// record to a single data file and records its offset in an in-memory
// index, so Retrieve is one map lookup plus one seek. The teacher's
// engine additionally supported tombstone deletes and online compaction;
// the black-box backend this spec requires (§1, §4.2) only ever stores
// and retrieves, so both are gone and the on-disk record header is one
// field shorter for it.
type Bitcask struct {
	mu        sync.RWMutex
	dataDir   string
	dataFile  *os.File
	writer    *bufio.Writer
	idx       *index
	position  int64
	closed    bool
	syncWrite bool

	totalReads  uint64
	totalWrites uint64
}

// NewBitcask opens (or creates) a Bitcask log under dataDir, replaying any
// existing records to rebuild its index.
func NewBitcask(dataDir string, syncWrite bool) (*Bitcask, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dataPath := filepath.Join(dataDir, dataFileName)
	dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}

	bc := &Bitcask{
		dataDir:   dataDir,
		dataFile:  dataFile,
		writer:    bufio.NewWriterSize(dataFile, 64*1024),
		idx:       newIndex(),
		syncWrite: syncWrite,
	}

	pos, err := dataFile.Seek(0, io.SeekEnd)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("failed to seek to end: %w", err)
	}
	bc.position = pos

	if pos > 0 {
		if err := bc.rebuildIndex(); err != nil {
			dataFile.Close()
			return nil, fmt.Errorf("failed to rebuild index: %w", err)
		}
	}

	return bc, nil
}

// record is one decoded append-log entry.
type record struct {
	key       string
	value     []byte
	timestamp int64
}

// rebuildIndex replays the data file on startup to repopulate idx.
func (bc *Bitcask) rebuildIndex() error {
	file, err := os.Open(filepath.Join(bc.dataDir, dataFileName))
	if err != nil {
		return err
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, 64*1024)
	var offset int64

	for {
		rec, bytesRead, err := bc.readRecord(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error at offset %d: %w", offset, err)
		}

		bc.idx.put(rec.key, offset, int32(len(rec.value)))
		offset += int64(bytesRead)
	}

	return nil
}

// readRecord reads and CRC-validates a single record from r.
func (bc *Bitcask) readRecord(r io.Reader) (record, int, error) {
	header := make([]byte, headerSize)
	n, err := io.ReadFull(r, header)
	if err != nil {
		return record{}, n, err
	}

	storedCRC := binary.BigEndian.Uint32(header[0:4])
	timestamp := int64(binary.BigEndian.Uint64(header[4:12]))
	keyLen := binary.BigEndian.Uint32(header[12:16])
	valueLen := binary.BigEndian.Uint32(header[16:20])

	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return record{}, n, fmt.Errorf("failed to read key: %w", err)
	}

	value := make([]byte, valueLen)
	if _, err := io.ReadFull(r, value); err != nil {
		return record{}, n, fmt.Errorf("failed to read value: %w", err)
	}

	payload := append(append([]byte{}, header[4:]...), key...)
	payload = append(payload, value...)
	if crc32.ChecksumIEEE(payload) != storedCRC {
		return record{}, n, ErrCorruptData
	}

	return record{key: string(key), value: value, timestamp: timestamp},
		headerSize + int(keyLen) + int(valueLen), nil
}

// writeRecord appends one record to the log and returns its offset.
func (bc *Bitcask) writeRecord(key string, value []byte, timestamp int64) (int64, error) {
	keyBytes := []byte(key)
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint64(header[4:12], uint64(timestamp))
	binary.BigEndian.PutUint32(header[12:16], uint32(len(keyBytes)))
	binary.BigEndian.PutUint32(header[16:20], uint32(len(value)))

	payload := append(append([]byte{}, header[4:]...), keyBytes...)
	payload = append(payload, value...)
	binary.BigEndian.PutUint32(header[0:4], crc32.ChecksumIEEE(payload))

	offset := bc.position
	if _, err := bc.writer.Write(header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := bc.writer.Write(keyBytes); err != nil {
		return 0, fmt.Errorf("failed to write key: %w", err)
	}
	if _, err := bc.writer.Write(value); err != nil {
		return 0, fmt.Errorf("failed to write value: %w", err)
	}
	bc.position += int64(headerSize + len(keyBytes) + len(value))

	if bc.syncWrite {
		if err := bc.writer.Flush(); err != nil {
			return 0, fmt.Errorf("failed to flush: %w", err)
		}
		if err := bc.dataFile.Sync(); err != nil {
			return 0, fmt.Errorf("failed to sync: %w", err)
		}
	}

	return offset, nil
}

// Store appends req to the log and indexes it.
func (bc *Bitcask) Store(req types.ReplicationRequest) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.closed {
		return ErrStorageClosed
	}
	atomic.AddUint64(&bc.totalWrites, 1)

	offset, err := bc.writeRecord(req.Key, req.Value, 0)
	if err != nil {
		return err
	}
	bc.idx.put(req.Key, offset, int32(len(req.Value)))
	return nil
}

// Retrieve returns the latest value stored for key.
func (bc *Bitcask) Retrieve(key string) (types.GetResponse, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	if bc.closed {
		return types.GetResponse{}, ErrStorageClosed
	}
	atomic.AddUint64(&bc.totalReads, 1)

	entry, exists := bc.idx.get(key)
	if !exists {
		return types.GetResponse{}, ErrKeyNotFound
	}

	if err := bc.writer.Flush(); err != nil {
		return types.GetResponse{}, fmt.Errorf("failed to flush: %w", err)
	}
	if _, err := bc.dataFile.Seek(entry.offset, io.SeekStart); err != nil {
		return types.GetResponse{}, fmt.Errorf("failed to seek: %w", err)
	}

	rec, _, err := bc.readRecord(bufio.NewReader(bc.dataFile))
	if err != nil {
		return types.GetResponse{}, fmt.Errorf("failed to read record: %w", err)
	}

	return types.GetResponse{Key: key, Value: rec.value}, nil
}

// Has reports whether key is present in the index.
func (bc *Bitcask) Has(key string) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.closed {
		return false
	}
	return bc.idx.has(key)
}

// Close flushes and closes the data file.
func (bc *Bitcask) Close() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.closed {
		return nil
	}
	bc.closed = true

	if err := bc.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := bc.dataFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	return bc.dataFile.Close()
}

// Sync forces any buffered writes to disk.
func (bc *Bitcask) Sync() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.closed {
		return ErrStorageClosed
	}
	if err := bc.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return bc.dataFile.Sync()
}

// Stats reports the current record count, log size, and request counters.
func (bc *Bitcask) Stats() Stats {
	bc.mu.RLock()
	defer bc.mu.RUnlock()

	var dataSize int64
	if info, err := bc.dataFile.Stat(); err == nil {
		dataSize = info.Size()
	}

	return Stats{
		ActiveKeys:   bc.idx.count(),
		DataFileSize: dataSize,
		TotalReads:   atomic.LoadUint64(&bc.totalReads),
		TotalWrites:  atomic.LoadUint64(&bc.totalWrites),
	}
}
