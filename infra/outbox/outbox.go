// Package outbox persists execution reports in pebble until they are
// acknowledged by the message broker. The engine appends a NEW record for
// every placement result; the broadcaster drains NEW/FAILED records to
// Kafka and marks them SENT then ACKED. Crash anywhere in between and the
// record is republished on the next scan, so delivery is at-least-once.
package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Record is one pending execution report.
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// binary encoding: [state:1][retries:4][lastAttempt:8][payload...]
func encodeRecord(r *Record) []byte {
	buf := make([]byte, 1+4+8+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[13:], r.Payload)
	return buf
}

func decodeRecord(seq uint64, b []byte) (*Record, error) {
	if len(b) < 13 {
		return nil, errors.New("outbox: record too short")
	}
	payload := make([]byte, len(b)-13)
	copy(payload, b[13:])
	return &Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     payload,
	}, nil
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // we WANT durability
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Append stores a new report in state NEW.
func (o *Outbox) Append(seq uint64, payload []byte) error {
	rec := Record{Seq: seq, State: StateNew, Payload: payload}
	return o.db.Set(keyFor(seq), encodeRecord(&rec), pebble.Sync)
}

// MarkSent flips a record to SENT and bumps its retry counter, recording
// the attempt time.
func (o *Outbox) MarkSent(seq uint64, at int64) error {
	return o.transition(seq, StateSent, at, true)
}

// MarkAcked flips a record to ACKED once the broker confirmed it.
func (o *Outbox) MarkAcked(seq uint64, at int64) error {
	return o.transition(seq, StateAcked, at, false)
}

// MarkFailed flips a record back to FAILED so the next scan retries it.
func (o *Outbox) MarkFailed(seq uint64, at int64) error {
	return o.transition(seq, StateFailed, at, false)
}

func (o *Outbox) transition(seq uint64, state State, at int64, bumpRetries bool) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.LastAttempt = at
	if bumpRetries {
		rec.Retries++
	}
	return o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// Delete removes an ACKED record (cleanup).
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// Get returns the record for a sequence.
func (o *Outbox) Get(seq uint64) (*Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	return decodeRecord(seq, val)
}

// ScanPending iterates NEW and FAILED records in sequence order. The
// broadcaster uses this to find reports still owed to the broker.
func (o *Outbox) ScanPending(fn func(rec *Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec, err := decodeRecord(seq, iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateNew && rec.State != StateFailed {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// TruncateAckedUpTo removes ACKED records with sequence <= seq.
func (o *Outbox) TruncateAckedUpTo(seq uint64) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		s, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		if s > seq {
			break
		}
		rec, err := decodeRecord(s, iter.Value())
		if err != nil {
			return err
		}
		if rec.State != StateAcked {
			continue
		}
		if err := o.db.Delete(keyFor(s), pebble.Sync); err != nil {
			return err
		}
	}
	return iter.Error()
}

const keyPrefix = "report/"

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(b), keyPrefix+"%d", &seq)
	return seq, err
}
