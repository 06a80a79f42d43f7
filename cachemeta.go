// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kiln

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// metadataFilename is the cache's persisted-state file, written directly
// in the cache root (not inside any hashed entry directory, so
// VerifyState's "stray file" check has to special-case it by name).
const metadataFilename = "metadata.kcache"

// metadataMagic/metadataVersion identify the format. Per Design Note 4
// (spec.md §9) this is a hand-rolled, versioned, length-prefixed binary
// format rather than encoding/gob or any other reflective serializer —
// gob shares pickle's "serialize arbitrary object graphs by reflection"
// character that the design notes call out to avoid.
const (
	metadataMagic   uint32 = 0x4b4c4e31 // "KLN1"
	metadataVersion uint32 = 1
)

func (c *Cache) metadataPath() string {
	return filepath.Join(c.root, metadataFilename)
}

// Save persists the cache's metadata to <root>/metadata.kcache. Per
// spec.md §4.B, an empty cache must not write a file at all (both because
// there's nothing to save and because the cache directory may not exist
// yet).
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Len() == 0 {
		return nil
	}

	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return err
	}

	f, err := os.Create(c.metadataPath())
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeU32(w, metadataMagic); err != nil {
		return err
	}
	if err := writeU32(w, metadataVersion); err != nil {
		return err
	}
	if err := writeI64(w, c.sizeUsed); err != nil {
		return err
	}

	keys := c.lru.Keys() // LRU order, oldest first
	if err := writeU32(w, uint32(len(keys))); err != nil {
		return err
	}
	for _, full := range keys {
		entry, _ := c.lru.Peek(full)
		if err := writeEntry(w, full, entry); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Load restores metadata from <root>/metadata.kcache. A missing file, a
// decode error, or a VerifyState failure are all recoverable: the cache
// returns to (and, in the latter two cases, is unlinked and reset to) an
// empty state rather than propagating an error to the caller. The save
// file is always unlinked after being read, so a crash-partial mutation
// is never replayed on the next Load.
func (c *Cache) Load() error {
	path := c.metadataPath()
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	decodeErr := c.decodeFrom(f)
	f.Close()
	os.Remove(path)

	if decodeErr != nil {
		c.log.Warn("cache metadata failed to decode, starting empty", zap.Error(decodeErr))
		c.mu.Lock()
		c.resetLocked()
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	verifyErr := c.verifyStateLocked()
	if verifyErr != nil {
		c.resetLocked()
	}
	c.mu.Unlock()

	if verifyErr != nil {
		c.log.Warn("cache metadata failed verification, starting empty", zap.Error(verifyErr))
	}
	return nil
}

func (c *Cache) decodeFrom(f *os.File) error {
	r := bufio.NewReader(f)

	magic, err := readU32(r)
	if err != nil {
		return err
	}
	if magic != metadataMagic {
		return errors.New("kiln: bad cache metadata magic")
	}
	version, err := readU32(r)
	if err != nil {
		return err
	}
	if version != metadataVersion {
		return errors.New("kiln: unsupported cache metadata version")
	}

	sizeUsed, err := readI64(r)
	if err != nil {
		return err
	}

	count, err := readU32(r)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.resetLocked()
	c.sizeUsed = sizeUsed
	for i := uint32(0); i < count; i++ {
		full, entry, err := readEntry(r)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.lru.Add(full, entry)
		c.partialIndex[entry.partial] = append(c.partialIndex[entry.partial], full)
	}
	c.mu.Unlock()
	return nil
}

func writeEntry(w *bufio.Writer, full FullHash, entry *cacheEntry) error {
	if _, err := w.Write(full[:]); err != nil {
		return err
	}
	if _, err := w.Write(entry.partial[:]); err != nil {
		return err
	}
	if err := writeI64(w, entry.size); err != nil {
		return err
	}
	if err := writeU32(w, uint32(len(entry.implicitDeps))); err != nil {
		return err
	}
	for _, dep := range entry.implicitDeps {
		if err := writeString(w, dep.Path); err != nil {
			return err
		}
		if _, err := w.Write(dep.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

func readEntry(r *bufio.Reader) (FullHash, *cacheEntry, error) {
	var full FullHash
	if _, err := io.ReadFull(r, full[:]); err != nil {
		return full, nil, err
	}
	var partial PartialHash
	if _, err := io.ReadFull(r, partial[:]); err != nil {
		return full, nil, err
	}
	size, err := readI64(r)
	if err != nil {
		return full, nil, err
	}
	n, err := readU32(r)
	if err != nil {
		return full, nil, err
	}
	deps := make([]ImplicitDep, n)
	for i := range deps {
		path, err := readString(r)
		if err != nil {
			return full, nil, err
		}
		var h FullHash
		if _, err := io.ReadFull(r, h[:]); err != nil {
			return full, nil, err
		}
		deps[i] = ImplicitDep{Path: path, Hash: h}
	}
	return full, &cacheEntry{size: size, partial: partial, implicitDeps: deps}, nil
}

func writeU32(w *bufio.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r *bufio.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeI64(w *bufio.Writer, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func readI64(r *bufio.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func writeString(w *bufio.Writer, s string) error {
	if err := writeU32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	n, err := readU32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
