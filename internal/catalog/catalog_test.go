package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/giisexport/internal/core"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name   string
		lookup func(context.Context, string) (bool, error)
		code   string
		want   bool
	}{
		{"mexico", c.CountryExists, "142", true},
		{"foreign country outside the shipped subset", c.CountryExists, "276", true},
		{"dominican republic", c.CountryExists, "214", true},
		{"region padded", c.RegionExists, "09", true},
		{"region unpadded", c.RegionExists, "9", true},
		{"region foreign", c.RegionExists, "88", true},
		{"region out of range", c.RegionExists, "33", false},
		{"personnel", c.PersonnelTypeExists, "30", true},
		{"unknown personnel", c.PersonnelTypeExists, "77", false},
		{"affiliation", c.AffiliationExists, "2", true},
		{"affiliation padded", c.AffiliationExists, " 02 ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.lookup(ctx, tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.False(t, c.Constrained(ListCountries))
	assert.True(t, c.Constrained(ListRegions))

	// No establishments list: every code passes.
	info, err := c.Establishment(ctx, "DFSSA001234")
	require.NoError(t, err)
	assert.Equal(t, core.EstablishmentInfo{Found: true, Operational: true}, info)
}

func TestParseStatic_Establishments(t *testing.T) {
	c, err := ParseStatic([]byte(`
establishments:
  - {clues: dfssa001234, name: Centro de Salud}
  - {clues: DFSSA009999, operational: false}
`))
	require.NoError(t, err)
	ctx := context.Background()

	info, _ := c.Establishment(ctx, "DFSSA001234")
	assert.Equal(t, core.EstablishmentInfo{Found: true, Operational: true}, info)

	info, _ = c.Establishment(ctx, "DFSSA009999")
	assert.Equal(t, core.EstablishmentInfo{Found: true, Operational: false}, info)

	info, _ = c.Establishment(ctx, "DFSSA000001")
	assert.False(t, info.Found)
}

func TestParseStatic_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "colours: []\n"},
		{"empty code", "countries:\n  - {code: \"\"}\n"},
		{"empty clues", "establishments:\n  - {name: x}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStatic([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

// fakeRedis implements CacheClient over a map.
type fakeRedis struct {
	mu      sync.Mutex
	data    map[string]string
	getErr  error
	setErr  error
	setTTLs []time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.data[key] = value.(string)
	f.setTTLs = append(f.setTTLs, ttl)
	return redis.NewStatusResult("OK", nil)
}

// countingCatalog counts calls that reach it.
type countingCatalog struct {
	core.Catalog
	calls int
	err   error
}

func (c *countingCatalog) CountryExists(ctx context.Context, code string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.Catalog.CountryExists(ctx, code)
}

func (c *countingCatalog) Establishment(ctx context.Context, clues string) (core.EstablishmentInfo, error) {
	c.calls++
	if c.err != nil {
		return core.EstablishmentInfo{}, c.err
	}
	return c.Catalog.Establishment(ctx, clues)
}

func TestParseStatic_PartialAndEmptyLists(t *testing.T) {
	ctx := context.Background()

	strict, err := ParseStatic([]byte("countries:\n  - {code: \"142\"}\n"))
	require.NoError(t, err)
	ok, _ := strict.CountryExists(ctx, "276")
	assert.False(t, ok)
	ok, _ = strict.RegionExists(ctx, "45")
	assert.True(t, ok, "an empty list does not constrain")
	assert.False(t, strict.Constrained(ListRegions))

	partial, err := ParseStatic([]byte("partial: [countries]\ncountries:\n  - {code: \"142\"}\n"))
	require.NoError(t, err)
	ok, _ = partial.CountryExists(ctx, "276")
	assert.True(t, ok)
	ok, _ = partial.CountryExists(ctx, "142")
	assert.True(t, ok)

	_, err = ParseStatic([]byte("partial: [colours]\n"))
	assert.ErrorContains(t, err, "colours")
}

// strictCatalog has a complete country list of two codes.
func strictCatalog(t *testing.T) *Static {
	t.Helper()
	c, err := ParseStatic([]byte("countries:\n  - {code: \"142\"}\n  - {code: \"840\"}\n"))
	require.NoError(t, err)
	return c
}

func TestCached_ReadThrough(t *testing.T) {
	base := strictCatalog(t)
	next := &countingCatalog{Catalog: base}
	rdb := newFakeRedis()
	c := NewCached(next, rdb, WithTTL(time.Minute), WithKeyPrefix("test:"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.CountryExists(ctx, "142")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.CountryExists(ctx, "999")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 2, next.calls, "one miss per distinct code")
	assert.Equal(t, "1", rdb.data["test:country:142"])
	assert.Equal(t, "0", rdb.data["test:country:999"])
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, rdb.setTTLs)

	info, err := c.Establishment(ctx, "DFSSA001234")
	require.NoError(t, err)
	assert.True(t, info.Found)
	info, err = c.Establishment(ctx, "dfssa001234")
	require.NoError(t, err)
	assert.True(t, info.Operational)
	assert.Equal(t, 3, next.calls)
	assert.Equal(t, "11", rdb.data["test:establishment:DFSSA001234"])
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	base, err := Default()
	require.NoError(t, err)
	next := &countingCatalog{Catalog: base}
	rdb := newFakeRedis()
	rdb.getErr = errors.New("connection refused")
	rdb.setErr = errors.New("connection refused")
	c := NewCached(next, rdb)

	ok, err := c.CountryExists(context.Background(), "142")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, next.calls)
}

func TestCached_LookupErrorNotCached(t *testing.T) {
	base, err := Default()
	require.NoError(t, err)
	boom := errors.New("catalog down")
	next := &countingCatalog{Catalog: base, err: boom}
	rdb := newFakeRedis()
	c := NewCached(next, rdb)
	ctx := context.Background()

	_, err = c.CountryExists(ctx, "142")
	assert.True(t, errors.Is(err, boom))
	assert.Empty(t, rdb.data)

	next.err = nil
	ok, err := c.CountryExists(ctx, "142")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, next.calls)
}
