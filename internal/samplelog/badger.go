package samplelog

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"

	"github.com/leaguepulse/leaguepulse/internal/aggregate"
	"github.com/leaguepulse/leaguepulse/internal/monitor"
)

var samplePrefix = []byte("sample/")

// BadgerConfig holds configuration for the embedded store.
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
}

// BadgerStore is an embedded sample log for single-node deployments. Keys
// sort by record time so windowed reads are a single range scan. Values are
// zstd-compressed JSON.
type BadgerStore struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
}

// OpenBadgerStore opens or creates a badger database.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		db.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &BadgerStore{db: db, encoder: encoder, decoder: decoder, now: time.Now}, nil
}

// Append stores a sample.
func (b *BadgerStore) Append(_ context.Context, s monitor.Sample) error {
	s, err := Normalize(s, b.now())
	if err != nil {
		return err
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}
	value := b.encoder.EncodeAll(raw, nil)

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sampleKey(s.RecordedAt, s.ID), value)
	})
}

// Aggregate folds the samples for source within window.
func (b *BadgerStore) Aggregate(_ context.Context, source monitor.SourceID, window monitor.Window) (monitor.WindowedAggregate, error) {
	now := b.now()
	samples, err := b.scan(window.Start(now), now, source)
	if err != nil {
		return monitor.WindowedAggregate{}, err
	}
	return aggregate.Fold(samples, source, window, now), nil
}

// Percentiles returns latency percentiles for source within window.
func (b *BadgerStore) Percentiles(ctx context.Context, source monitor.SourceID, window monitor.Window) (*monitor.Percentiles, error) {
	agg, err := b.Aggregate(ctx, source, window)
	if err != nil {
		return nil, err
	}
	return agg.Percentiles, nil
}

// FailureTimes returns the times of failures for source within window.
func (b *BadgerStore) FailureTimes(_ context.Context, source monitor.SourceID, window monitor.Window) ([]time.Time, error) {
	now := b.now()
	samples, err := b.scan(window.Start(now), now, source)
	if err != nil {
		return nil, err
	}
	return aggregate.FailureTimesOf(samples, source, window, now), nil
}

// Close releases the database and codecs.
func (b *BadgerStore) Close() error {
	b.encoder.Close()
	b.decoder.Close()
	return b.db.Close()
}

func (b *BadgerStore) scan(from, to time.Time, source monitor.SourceID) ([]monitor.Sample, error) {
	var samples []monitor.Sample
	upper := timeKey(to)

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(timeKey(from)); it.ValidForPrefix(samplePrefix); it.Next() {
			item := it.Item()
			if bytes.Compare(item.Key()[:len(upper)], upper) > 0 {
				break
			}

			var s monitor.Sample
			err := item.Value(func(val []byte) error {
				raw, err := b.decoder.DecodeAll(val, nil)
				if err != nil {
					return fmt.Errorf("decompress sample: %w", err)
				}
				return json.Unmarshal(raw, &s)
			})
			if err != nil {
				return err
			}
			if source == monitor.SourceAll || s.Source == source {
				samples = append(samples, s)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan samples: %w", err)
	}
	return samples, nil
}

// timeKey is the prefix shared by every sample recorded at t.
func timeKey(t time.Time) []byte {
	key := make([]byte, len(samplePrefix)+8)
	copy(key, samplePrefix)
	binary.BigEndian.PutUint64(key[len(samplePrefix):], uint64(t.UnixNano())) //nolint:gosec // record times are after 1970
	return key
}

func sampleKey(t time.Time, id string) []byte {
	return append(timeKey(t), id...)
}

// Ensure BadgerStore implements Store interface.
var _ Store = (*BadgerStore)(nil)
