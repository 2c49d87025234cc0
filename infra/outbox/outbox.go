// Package outbox persists settlement results until the broadcaster has
// pushed them onto the bus, giving at-least-once delivery across
// restarts. Records move NEW -> SENT -> ACKED and acked records are
// purged.
package outbox

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"helios/infra/sequence"
)

// State of an outbox record.
type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// Record is one publishable envelope: destination topic, record key and
// payload, plus delivery bookkeeping.
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Topic       string
	Key         string
	Payload     []byte
}

// binary encoding:
// [state:1][retries:4][lastAttempt:8][topicLen:2][topic][keyLen:2][key][payload]
func encodeRecord(r Record) []byte {
	buf := make([]byte, 0, 17+len(r.Topic)+len(r.Key)+len(r.Payload))
	buf = append(buf, byte(r.State))
	buf = binary.BigEndian.AppendUint32(buf, r.Retries)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.LastAttempt))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Topic)))
	buf = append(buf, r.Topic...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(r.Key)))
	buf = append(buf, r.Key...)
	buf = append(buf, r.Payload...)
	return buf
}

func decodeRecord(b []byte) (Record, error) {
	if len(b) < 17 {
		return Record{}, errors.New("outbox: record too short")
	}
	r := Record{
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
	}
	off := 13
	topicLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+topicLen+2 {
		return Record{}, errors.New("outbox: truncated topic")
	}
	r.Topic = string(b[off : off+topicLen])
	off += topicLen
	keyLen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if len(b) < off+keyLen {
		return Record{}, errors.New("outbox: truncated key")
	}
	r.Key = string(b[off : off+keyLen])
	off += keyLen
	r.Payload = append([]byte(nil), b[off:]...)
	return r, nil
}

// Outbox is a pebble-backed store of pending publishes.
type Outbox struct {
	db  *pebble.DB
	seq *sequence.Sequencer
}

// Open opens (or creates) the outbox in dir and resumes sequence
// numbering after the highest stored record.
func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // records must survive a crash
	})
	if err != nil {
		return nil, err
	}
	last, err := lastSeq(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Outbox{db: db, seq: sequence.New(last)}, nil
}

func lastSeq(db *pebble.DB) (uint64, error) {
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("out/"),
		UpperBound: []byte("out/~"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	if !iter.Last() {
		return 0, iter.Error()
	}
	return parseKey(iter.Key())
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// maxNameLen bounds topic and key: both are stored behind 2-byte
// length prefixes.
const maxNameLen = 1<<16 - 1

// Append stores a new publishable record and returns its sequence.
func (o *Outbox) Append(topic, key string, payload []byte) (uint64, error) {
	if len(topic) > maxNameLen || len(key) > maxNameLen {
		return 0, errors.New("outbox: topic or key too long")
	}
	seq := o.seq.Next()
	rec := Record{
		Seq:     seq,
		State:   StateNew,
		Topic:   topic,
		Key:     key,
		Payload: payload,
	}
	if err := o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync); err != nil {
		return 0, err
	}
	return seq, nil
}

// MarkSent records a publish attempt.
func (o *Outbox) MarkSent(seq uint64) error {
	return o.transition(seq, StateSent, true)
}

// MarkAcked records broker acknowledgement.
func (o *Outbox) MarkAcked(seq uint64) error {
	return o.transition(seq, StateAcked, false)
}

func (o *Outbox) transition(seq uint64, state State, attempted bool) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	if attempted {
		rec.Retries++
		rec.LastAttempt = time.Now().UnixNano()
	}
	return o.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
}

// Get returns the record stored under seq.
func (o *Outbox) Get(seq uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	rec, err := decodeRecord(val)
	if err != nil {
		return Record{}, err
	}
	rec.Seq = seq
	return rec, nil
}

// ScanByState visits every record in the given state, in sequence
// order.
func (o *Outbox) ScanByState(state State, fn func(rec Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("out/"),
		UpperBound: []byte("out/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Value())
		if err != nil {
			return err
		}
		if rec.State != state {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec.Seq = seq
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Purge deletes every acked record.
func (o *Outbox) Purge() error {
	return o.ScanByState(StateAcked, func(rec Record) error {
		return o.db.Delete(keyFor(rec.Seq), pebble.Sync)
	})
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("out/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(b), "out/%d", &seq)
	return seq, err
}
