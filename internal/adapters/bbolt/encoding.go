// Record encoding.
//
// Keys are the bucket sequence as 8 big-endian bytes so byte order equals
// insertion order. Values are msgpack maps with short field names; unknown
// fields are ignored on decode so older binaries can read newer records.
package bbolt

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/corey/temmekit/internal/ports"
)

// runWire is the stored form of ports.RunRecord.
type runWire struct {
	Kind     string    `msgpack:"k"`
	Document string    `msgpack:"d"`
	URL      string    `msgpack:"u"`
	OK       bool      `msgpack:"ok"`
	Error    string    `msgpack:"e,omitempty"`
	Bytes    int       `msgpack:"b"`
	Elapsed  int64     `msgpack:"el"` // nanoseconds
	At       time.Time `msgpack:"at"`
}

func encodeRecord(rec ports.RunRecord) ([]byte, error) {
	b, err := msgpack.Marshal(runWire{
		Kind:     string(rec.Kind),
		Document: rec.Document,
		URL:      rec.URL,
		OK:       rec.OK,
		Error:    rec.Error,
		Bytes:    rec.Bytes,
		Elapsed:  int64(rec.Elapsed),
		At:       rec.At,
	})
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}
	return b, nil
}

func decodeRecord(b []byte) (ports.RunRecord, error) {
	var w runWire
	if err := msgpack.Unmarshal(b, &w); err != nil {
		return ports.RunRecord{}, err
	}
	return ports.RunRecord{
		Kind:     ports.RunKind(w.Kind),
		Document: w.Document,
		URL:      w.URL,
		OK:       w.OK,
		Error:    w.Error,
		Bytes:    w.Bytes,
		Elapsed:  time.Duration(w.Elapsed),
		At:       w.At,
	}, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

func keySeq(k []byte) uint64 {
	if len(k) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(k)
}
