// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package overrides

import (
	"bytes"
	"encoding/binary"
	"sort"

	"grimm.is/peek/internal/errors"
	"grimm.is/peek/internal/model"
)

// On-disk layout, little-endian:
//
//	[magic u32][version u32][count u32][sealed records]
//
// where the sealed payload decrypts to count fixed-size records of
//
//	[path 1024 bytes, NUL padded][status u32][valid u32]
const (
	Magic   uint32 = 0x4B454550
	Version uint32 = 2

	// PathMax is the longest path that fits a record with its terminator.
	PathMax = recordPathSize - 1

	recordPathSize = 1024
	RecordSize     = recordPathSize + 8
	headerSize     = 12
)

type record struct {
	path   string
	status model.TrustStatus
	valid  bool
}

func encodeHeader(count int) []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b[0:], Magic)
	binary.LittleEndian.PutUint32(b[4:], Version)
	binary.LittleEndian.PutUint32(b[8:], uint32(count))
	return b
}

// decodeHeader returns the record count. Any error means the file is
// corrupt.
func decodeHeader(b []byte, limit int) (int, error) {
	if len(b) < headerSize {
		return 0, errors.Errorf(errors.KindCorrupt, "short header: %d bytes", len(b))
	}
	if m := binary.LittleEndian.Uint32(b[0:]); m != Magic {
		return 0, errors.Errorf(errors.KindCorrupt, "bad magic %#08x", m)
	}
	if v := binary.LittleEndian.Uint32(b[4:]); v != Version {
		return 0, errors.Errorf(errors.KindCorrupt, "unsupported version %d", v)
	}
	count := binary.LittleEndian.Uint32(b[8:])
	if count > uint32(limit) {
		return 0, errors.Errorf(errors.KindCorrupt, "record count %d exceeds %d", count, limit)
	}
	return int(count), nil
}

// encodeRecords lays out records sorted by path so identical tables
// produce identical plaintext.
func encodeRecords(recs []record) []byte {
	sort.Slice(recs, func(i, j int) bool { return recs[i].path < recs[j].path })
	buf := make([]byte, len(recs)*RecordSize)
	for i, r := range recs {
		off := i * RecordSize
		copy(buf[off:off+recordPathSize], r.path)
		binary.LittleEndian.PutUint32(buf[off+recordPathSize:], uint32(r.status))
		var valid uint32
		if r.valid {
			valid = 1
		}
		binary.LittleEndian.PutUint32(buf[off+recordPathSize+4:], valid)
	}
	return buf
}

func decodeRecords(plain []byte, count int) ([]record, error) {
	if len(plain) != count*RecordSize {
		return nil, errors.Errorf(errors.KindCorrupt, "payload is %d bytes, want %d", len(plain), count*RecordSize)
	}
	recs := make([]record, 0, count)
	for i := 0; i < count; i++ {
		off := i * RecordSize
		raw := plain[off : off+recordPathSize]
		if n := bytes.IndexByte(raw, 0); n >= 0 {
			raw = raw[:n]
		} else {
			return nil, errors.Errorf(errors.KindCorrupt, "record %d: path not terminated", i)
		}
		status := model.TrustStatus(binary.LittleEndian.Uint32(plain[off+recordPathSize:]))
		if !status.Valid() {
			return nil, errors.Errorf(errors.KindCorrupt, "record %d: invalid status %d", i, uint32(status))
		}
		valid := binary.LittleEndian.Uint32(plain[off+recordPathSize+4:])
		if valid > 1 {
			return nil, errors.Errorf(errors.KindCorrupt, "record %d: invalid flag %d", i, valid)
		}
		recs = append(recs, record{path: string(raw), status: status, valid: valid == 1})
	}
	return recs, nil
}
