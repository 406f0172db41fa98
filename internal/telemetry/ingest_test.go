package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laces/genesis/internal/domain"
)

type fakeRepo struct {
	inserted []domain.TelemetrySample
}

func (f *fakeRepo) Insert(_ context.Context, s domain.TelemetrySample) error {
	f.inserted = append(f.inserted, s)
	return nil
}

func (f *fakeRepo) InsertBatch(_ context.Context, samples []domain.TelemetrySample) error {
	f.inserted = append(f.inserted, samples...)
	return nil
}

func (f *fakeRepo) Window(_ context.Context, _ string, _ time.Time, _ int) ([]domain.TelemetrySample, error) {
	return f.inserted, nil
}

func (f *fakeRepo) LatestByOnlineNode(_ context.Context) (map[string]domain.TelemetrySample, error) {
	return nil, nil
}

func testConfig() Config {
	return Config{BatchMaxSamples: 100, RateLimitPerSec: 1000, RateLimitBurst: 1000, InsertTimeout: time.Second}
}

func TestIngest_Single(t *testing.T) {
	repo := &fakeRepo{}
	in := New(repo, testConfig(), nil, nil)

	err := in.Single(context.Background(), domain.TelemetrySample{NodeID: "node1", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Len(t, repo.inserted, 1)
}

func TestIngest_Batch_RejectsOversizedBatch(t *testing.T) {
	repo := &fakeRepo{}
	cfg := testConfig()
	cfg.BatchMaxSamples = 2
	in := New(repo, cfg, nil, nil)

	samples := make([]domain.TelemetrySample, 3)
	_, err := in.Batch(context.Background(), samples)
	assert.Error(t, err)
}

func TestIngest_Batch_InsertsWithinLimit(t *testing.T) {
	repo := &fakeRepo{}
	in := New(repo, testConfig(), nil, nil)

	samples := []domain.TelemetrySample{{NodeID: "node1"}, {NodeID: "node2"}}
	count, err := in.Batch(context.Background(), samples)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, repo.inserted, 2)
}

func TestIngest_Single_RateLimited(t *testing.T) {
	repo := &fakeRepo{}
	cfg := Config{BatchMaxSamples: 100, RateLimitPerSec: 0, RateLimitBurst: 0, InsertTimeout: time.Second}
	in := New(repo, cfg, nil, nil)

	err := in.Single(context.Background(), domain.TelemetrySample{NodeID: "node1"})
	assert.Error(t, err)
}
