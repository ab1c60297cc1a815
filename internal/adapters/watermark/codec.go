package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

// snapshot layout: [4 bytes magic][1 byte version][32 bytes blake3][zstd(cbor)]
const (
	formatVersion = 1
	headerLen     = 4 + 1 + 32
)

var magic = [4]byte{'A', 'W', 'W', 'M'}

var (
	errShortSnapshot = errors.New("snapshot shorter than header")
	errBadMagic      = errors.New("snapshot magic mismatch")
	errBadChecksum   = errors.New("snapshot checksum mismatch")
)

var (
	encMode cbor.EncMode
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("watermark: cbor encoder: " + err.Error())
	}
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("watermark: zstd encoder: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("watermark: zstd decoder: " + err.Error())
	}
}

type entry struct {
	Scope     string  `cbor:"1,keyasint"`
	Entity    string  `cbor:"2,keyasint"`
	Metric    string  `cbor:"3,keyasint"`
	UnixNanos int64   `cbor:"4,keyasint"`
	Value     float64 `cbor:"5,keyasint"`
	Statistic string  `cbor:"6,keyasint"`
	Name      string  `cbor:"7,keyasint,omitempty"`
}

func encodeSnapshot(marks domain.Watermarks) ([]byte, error) {
	entries := make([]entry, 0, len(marks))
	for k, s := range marks {
		entries = append(entries, entry{
			Scope:     k.Scope,
			Entity:    k.Entity,
			Metric:    k.Metric,
			UnixNanos: s.Timestamp.UnixNano(),
			Value:     s.Value,
			Statistic: string(s.Statistic),
			Name:      s.Name,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.Entity != b.Entity {
			return a.Entity < b.Entity
		}
		return a.Metric < b.Metric
	})

	raw, err := encMode.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode watermarks: %w", err)
	}
	payload := encoder.EncodeAll(raw, nil)
	sum := blake3.Sum256(payload)

	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload))
	buf.Write(magic[:])
	buf.WriteByte(formatVersion)
	buf.Write(sum[:])
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (domain.Watermarks, error) {
	if len(data) < headerLen {
		return nil, errShortSnapshot
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return nil, errBadMagic
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", data[4])
	}
	payload := data[headerLen:]
	if sum := blake3.Sum256(payload); !bytes.Equal(sum[:], data[5:headerLen]) {
		return nil, errBadChecksum
	}

	raw, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var entries []entry
	if err := cbor.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	marks := make(domain.Watermarks, len(entries))
	for _, e := range entries {
		key := domain.MetricKey{Scope: e.Scope, Entity: e.Entity, Metric: e.Metric}
		marks[key] = domain.Sample{
			Timestamp: time.Unix(0, e.UnixNanos).UTC(),
			Value:     e.Value,
			Statistic: domain.Statistic(e.Statistic),
			Name:      e.Name,
		}
	}
	return marks, nil
}
