package service_test

import (
	"context"

	"helios/wire"
)

// fakeTopic records everything sent to one outbound stream.
type fakeTopic struct {
	keys     []string
	payloads [][]byte
}

func (f *fakeTopic) Send(_ context.Context, key, value []byte) error {
	f.keys = append(f.keys, string(key))
	f.payloads = append(f.payloads, value)
	return nil
}

func (f *fakeTopic) last() []byte {
	if len(f.payloads) == 0 {
		return nil
	}
	return f.payloads[len(f.payloads)-1]
}

// fakeSink records outbox appends without a store behind them.
type fakeSink struct {
	topics   []string
	keys     []string
	payloads [][]byte
}

func (f *fakeSink) Append(topic, key string, payload []byte) (uint64, error) {
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	return uint64(len(f.payloads)), nil
}

func encode(v any) []byte {
	payload, err := wire.Encode(v)
	if err != nil {
		panic(err)
	}
	return payload
}
