package abicache

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	goeosio "github.com/greymass/go-eosio/pkg/chain"
	"github.com/greymass/ramindex/libraries/chain"
)

const headerSize = 16

var ErrNoABI = errors.New("no ABI found")

// Each record in abis.dat is a 16 byte header (block u32, contract u64, length u32,
// little endian) followed by the ABI JSON. A zero length clears the contract's ABI.
type version struct {
	block  uint32
	offset int64
	length uint32
}

// Cache is an append-only, block-versioned ABI store. Versions are indexed in memory
// on open; parsed ABIs are cached per data offset.
type Cache struct {
	mu       sync.RWMutex
	dataFile *os.File
	size     int64
	versions map[uint64][]version

	parsedMu sync.Mutex
	parsed   map[int64]*goeosio.Abi
}

func Open(basePath string) (*Cache, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	dataPath := filepath.Join(basePath, "abis.dat")
	dataFile, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}

	c := &Cache{
		dataFile: dataFile,
		versions: make(map[uint64][]version),
		parsed:   make(map[int64]*goeosio.Abi),
	}
	if err := c.load(); err != nil {
		dataFile.Close()
		return nil, err
	}
	return c, nil
}

// load scans the data file and drops a torn trailing record left by a crash mid-write.
func (c *Cache) load() error {
	stat, err := c.dataFile.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat data file: %w", err)
	}

	header := make([]byte, headerSize)
	var offset int64
	for offset+headerSize <= stat.Size() {
		if _, err := c.dataFile.ReadAt(header, offset); err != nil {
			return fmt.Errorf("failed to read header at %d: %w", offset, err)
		}
		length := binary.LittleEndian.Uint32(header[12:16])
		if offset+headerSize+int64(length) > stat.Size() {
			break
		}
		c.index(binary.LittleEndian.Uint64(header[4:12]), version{
			block:  binary.LittleEndian.Uint32(header[0:4]),
			offset: offset,
			length: length,
		})
		offset += headerSize + int64(length)
	}

	if offset != stat.Size() {
		if err := c.dataFile.Truncate(offset); err != nil {
			return fmt.Errorf("failed to truncate torn record: %w", err)
		}
	}
	c.size = offset
	return nil
}

func (c *Cache) index(contract uint64, v version) {
	list := c.versions[contract]
	i := sort.Search(len(list), func(i int) bool { return list[i].block > v.block })
	list = append(list, version{})
	copy(list[i+1:], list[i:])
	list[i] = v
	c.versions[contract] = list
}

// Put records the ABI a contract uses from blockNum on. An empty abiJSON clears it.
func (c *Cache) Put(blockNum uint32, contract uint64, abiJSON []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	record := make([]byte, headerSize+len(abiJSON))
	binary.LittleEndian.PutUint32(record[0:4], blockNum)
	binary.LittleEndian.PutUint64(record[4:12], contract)
	binary.LittleEndian.PutUint32(record[12:16], uint32(len(abiJSON)))
	copy(record[headerSize:], abiJSON)

	if _, err := c.dataFile.WriteAt(record, c.size); err != nil {
		return fmt.Errorf("failed to write ABI record: %w", err)
	}
	c.index(contract, version{block: blockNum, offset: c.size, length: uint32(len(abiJSON))})
	c.size += int64(len(record))
	return nil
}

// Sync flushes records written by Put to stable storage.
func (c *Cache) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataFile.Sync()
}

func (c *Cache) lookup(contract uint64, atBlock uint32) (version, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.versions[contract]
	i := sort.Search(len(list), func(i int) bool { return list[i].block > atBlock })
	if i == 0 {
		return version{}, fmt.Errorf("%w for %s at block %d", ErrNoABI, chain.NameToString(contract), atBlock)
	}
	v := list[i-1]
	if v.length == 0 {
		return version{}, fmt.Errorf("%w for %s at block %d (ABI was cleared)", ErrNoABI, chain.NameToString(contract), atBlock)
	}
	return v, nil
}

func (c *Cache) Get(contract uint64, atBlock uint32) ([]byte, error) {
	v, err := c.lookup(contract, atBlock)
	if err != nil {
		return nil, err
	}
	data := make([]byte, v.length)
	if _, err := c.dataFile.ReadAt(data, v.offset+headerSize); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read ABI data: %w", err)
	}
	return data, nil
}

func (c *Cache) abiAt(contract uint64, atBlock uint32) (*goeosio.Abi, error) {
	v, err := c.lookup(contract, atBlock)
	if err != nil {
		return nil, err
	}

	c.parsedMu.Lock()
	cached, ok := c.parsed[v.offset]
	c.parsedMu.Unlock()
	if ok {
		return cached, nil
	}

	abiBytes, err := c.Get(contract, atBlock)
	if err != nil {
		return nil, err
	}
	var abi goeosio.Abi
	if err := json.Unmarshal(abiBytes, &abi); err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	c.parsedMu.Lock()
	c.parsed[v.offset] = &abi
	c.parsedMu.Unlock()
	return &abi, nil
}

// Decode renders binary action data with the contract ABI in effect at atBlock.
func (c *Cache) Decode(contract, action uint64, data []byte, atBlock uint32) (map[string]interface{}, error) {
	abi, err := c.abiAt(contract, atBlock)
	if err != nil {
		return nil, err
	}

	decoded, err := abi.Decode(bytes.NewReader(data), chain.NameToString(action))
	if err != nil {
		return nil, fmt.Errorf("failed to decode action: %w", err)
	}
	decodedMap, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("decoded action is not a map")
	}
	return decodedMap, nil
}

func (c *Cache) DecodeHex(contract, action uint64, hexData string, atBlock uint32) (map[string]interface{}, error) {
	data, err := hex.DecodeString(hexData)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return c.Decode(contract, action, data, atBlock)
}

func (c *Cache) Contracts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.versions)
}

func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.dataFile.Sync(); err != nil {
		c.dataFile.Close()
		return fmt.Errorf("sync data: %w", err)
	}
	return c.dataFile.Close()
}
