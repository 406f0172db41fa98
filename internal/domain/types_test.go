package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorClock_Advance(t *testing.T) {
	c := VectorClock{"s1": 3}
	advanced := c.Advance("s1")
	assert.Equal(t, uint64(4), advanced["s1"])
	assert.Equal(t, uint64(3), c["s1"], "original clock untouched")
}

func TestVectorClock_Merge_TakesPairwiseMax(t *testing.T) {
	a := VectorClock{"s1": 5, "s2": 1}
	b := VectorClock{"s1": 2, "s3": 7}

	merged := a.Merge(b)

	assert.Equal(t, uint64(5), merged["s1"])
	assert.Equal(t, uint64(1), merged["s2"])
	assert.Equal(t, uint64(7), merged["s3"])
}

func TestEditLock_Expired(t *testing.T) {
	now := time.Now()
	lock := EditLock{ExpiresAt: now.Add(-time.Second)}
	assert.True(t, lock.Expired(now))

	lock.ExpiresAt = now.Add(time.Minute)
	assert.False(t, lock.Expired(now))
}

func TestEditLock_Overlaps(t *testing.T) {
	a := EditLock{Components: []string{"geometry", "material"}}
	b := EditLock{Components: []string{"material"}}
	c := EditLock{Components: []string{"schedule"}}

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
}

func TestSession_Expired(t *testing.T) {
	now := time.Now()
	s := Session{Active: true, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, s.Expired(now))

	s.ExpiresAt = now.Add(-time.Hour)
	assert.True(t, s.Expired(now))

	s.ExpiresAt = now.Add(time.Hour)
	s.Active = false
	assert.True(t, s.Expired(now))
}

func TestJSONValue_RoundTrip(t *testing.T) {
	input := `{"vibration":4.2,"ok":true,"tags":["a","b"],"nested":{"k":"v"},"empty":null}`

	var v JSONValue
	require.NoError(t, json.Unmarshal([]byte(input), &v))

	obj, ok := v.Object()
	require.True(t, ok)

	vib, ok := obj["vibration"].Number()
	require.True(t, ok)
	assert.Equal(t, 4.2, vib)

	ok2, ok := obj["ok"].Bool()
	require.True(t, ok)
	assert.True(t, ok2)

	tags, ok := obj["tags"].Array()
	require.True(t, ok)
	require.Len(t, tags, 2)
	s0, _ := tags[0].String()
	assert.Equal(t, "a", s0)

	nested, ok := v.Field("nested")
	require.True(t, ok)
	k, ok := nested.Field("k")
	require.True(t, ok)
	ks, _ := k.String()
	assert.Equal(t, "v", ks)

	out, err := json.Marshal(v)
	require.NoError(t, err)

	var roundTripped JSONValue
	require.NoError(t, json.Unmarshal(out, &roundTripped))
	assert.Equal(t, v.kind, roundTripped.kind)
}
