package sites

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		group Group
		key   string
		want  string
	}{
		{Flood, "1", "River Wye"},
		{Flood, "4", "River Dee"},
		{Flood, "wye", "River Wye"},
		{Flood, "River Usk", "River Usk"},
		{Flood, "SEVERN", "Severn"},
		{Forest, "cefn fannog", "Cefn Fannog"},
		{Forest, "2", "Esgair Gelli"},
		{Burn, "Mynydd Llanllwni", "Mynydd Llanllwni"},
		{Burn, " glanaman ", "Glanaman"},
	}
	for _, tt := range tests {
		s, err := tt.group.Lookup(tt.key)
		require.NoError(t, err, tt.key)
		assert.Equal(t, tt.want, s.Name)
	}
}

func TestLookup_Unknown(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"0", "5", "thames", ""} {
		_, err := Flood.Lookup(key)
		assert.ErrorIs(t, err, ErrUnknownSite, key)
	}
	_, err := Flood.Lookup("thames")
	assert.ErrorContains(t, err, "River Wye, River Usk, Severn, River Dee")
}

func TestExtents(t *testing.T) {
	t.Parallel()
	for name, g := range Groups {
		for _, s := range g {
			assert.True(t, s.Extent.Valid(), "%s/%s", name, s.Name)
		}
	}
	wye, err := Flood.Lookup("wye")
	require.NoError(t, err)
	assert.Equal(t, 330650.0, wye.Extent.MinX)
	assert.Equal(t, 248690.0, wye.Extent.MaxY)
	assert.Equal(t, BNG, wye.Extent.CRS)
	assert.Equal(t, WGS84, Burn[0].Extent.CRS)
}

func TestQuery(t *testing.T) {
	t.Parallel()
	q, err := Forest[0].Query("2017-01-01", "2021-12-31", S1Product, "VH")
	require.NoError(t, err)
	assert.Equal(t, S1Product, q.Product)
	assert.Equal(t, []string{"VH"}, q.Measurements)
	assert.Equal(t, 10.0, q.Resolution)
	require.NotNil(t, q.Extent)
	assert.Equal(t, Forest[0].Extent, *q.Extent)
	assert.True(t, q.Time.Contains(time.Date(2021, 12, 31, 23, 0, 0, 0, time.UTC)))

	_, err = Forest[0].Query("2021-01-01", "2020-01-01", S1Product)
	assert.Error(t, err)
}
