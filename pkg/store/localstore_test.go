package store

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalStore() *LocalStore {
	return NewLocalStore(zerolog.Nop())
}

func TestLocalStore_SetThenGetRoundTrips(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	out, err := s.Set(ctx, "t", "k", []byte("v"), 0, 60)
	require.NoError(t, err)
	require.Equal(t, StatusOK, out.Status)
	require.Greater(t, out.CAS, uint64(0))

	got, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, got.Status)
	assert.Equal(t, []byte("v"), got.Data)
	assert.Equal(t, out.CAS, got.CAS)
}

func TestLocalStore_CasMismatchIsContention(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	first, _ := s.Set(ctx, "t", "k", []byte("v1"), 0, 60)
	require.Equal(t, StatusOK, first.Status)

	second, _ := s.Set(ctx, "t", "k", []byte("v2"), first.CAS, 60)
	require.Equal(t, StatusOK, second.Status)

	third, _ := s.Set(ctx, "t", "k", []byte("v3"), first.CAS, 60)
	assert.Equal(t, StatusDataContention, third.Status)
}

func TestLocalStore_AddWithoutCasFailsWhenRecordAlreadyExists(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	_, _ = s.Set(ctx, "t", "k", []byte("v1"), 0, 60)
	out, _ := s.Set(ctx, "t", "k", []byte("v2"), 0, 60)
	assert.Equal(t, StatusDataContention, out.Status)
}

func TestLocalStore_GetMissingKeyIsNotFound(t *testing.T) {
	s := newTestLocalStore()
	out, err := s.Get(context.Background(), "t", "missing")
	require.NoError(t, err)
	assert.Equal(t, StatusNotFound, out.Status)
}

func TestLocalStore_ExpiredRecordIsRemovedAndReportedNotFound(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	// expiry=0 is the immediate-expiry sentinel.
	out, _ := s.Set(ctx, "t", "k", []byte("v"), 0, 0)
	require.Equal(t, StatusOK, out.Status)

	got, _ := s.Get(ctx, "t", "k")
	assert.Equal(t, StatusNotFound, got.Status)
}

func TestLocalStore_SetAfterExpiryWithZeroCasReinserts(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	_, _ = s.Set(ctx, "t", "k", []byte("v1"), 0, 0)
	out, _ := s.Set(ctx, "t", "k", []byte("v2"), 0, 60)
	assert.Equal(t, StatusOK, out.Status)

	got, _ := s.Get(ctx, "t", "k")
	assert.Equal(t, []byte("v2"), got.Data)
}

func TestLocalStore_TombstoneSurfacesAsNotFoundWithZeroCas(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	_, _ = s.Set(ctx, "t", "k", TombstoneValue, 0, 60)
	got, _ := s.Get(ctx, "t", "k")
	assert.Equal(t, StatusNotFound, got.Status)
	assert.Equal(t, uint64(0), got.CAS)
}

func TestLocalStore_ForceGetError(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	s.ForceGetError()
	out, err := s.Get(ctx, "t", "k")
	require.NoError(t, err)
	assert.Equal(t, StatusError, out.Status)

	// One-shot: the next Get is unaffected.
	out2, _ := s.Get(ctx, "t", "k")
	assert.Equal(t, StatusNotFound, out2.Status)
}

func TestLocalStore_ForceContentionReadsShadowMap(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	first, _ := s.Set(ctx, "t", "k", []byte("v1"), 0, 60)
	_, _ = s.Set(ctx, "t", "k", []byte("v2"), first.CAS, 60)

	s.ForceContention()
	got, _ := s.Get(ctx, "t", "k")
	assert.Equal(t, StatusOK, got.Status)
	assert.Equal(t, []byte("v1"), got.Data)

	got2, _ := s.Get(ctx, "t", "k")
	assert.Equal(t, []byte("v2"), got2.Data)
}

func TestLocalStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestLocalStore()
	ctx := context.Background()

	_, _ = s.Set(ctx, "t", "k", []byte("v"), 0, 60)

	out1, _ := s.Delete(ctx, "t", "k")
	assert.Equal(t, StatusOK, out1.Status)

	out2, _ := s.Delete(ctx, "t", "k")
	assert.Equal(t, StatusOK, out2.Status)
}

func TestLocalStore_SwapDBsExchangesLiveData(t *testing.T) {
	a := newTestLocalStore()
	b := newTestLocalStore()
	ctx := context.Background()

	_, _ = a.Set(ctx, "t", "k", []byte("from-a"), 0, 60)
	_, _ = b.Set(ctx, "t", "k", []byte("from-b"), 0, 60)

	a.SwapDBs(b)

	gotA, _ := a.Get(ctx, "t", "k")
	gotB, _ := b.Get(ctx, "t", "k")
	assert.Equal(t, []byte("from-b"), gotA.Data)
	assert.Equal(t, []byte("from-a"), gotB.Data)
}

func TestNewKey_RejectsSeparatorInComponents(t *testing.T) {
	_, err := NewKey("t"+Sep, "k")
	assert.Error(t, err)

	_, err = NewKey("t", "k"+Sep)
	assert.Error(t, err)

	_, err = NewKey("t", "k")
	assert.NoError(t, err)
}
