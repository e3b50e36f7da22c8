package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilter(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		wantAll bool
		wantIDs []string
	}{
		{name: "nil", args: nil, wantAll: true},
		{name: "empty list", args: []string{}, wantAll: true},
		{name: "only blanks", args: []string{"", "   ", "\t"}, wantAll: true},
		{name: "trim dedupe drop empty", args: []string{"  42 ", "", "42", "7"}, wantIDs: []string{"42", "7"}},
		{name: "keeps first occurrence order", args: []string{"b", "a", "b"}, wantIDs: []string{"b", "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := ParseFilter(tc.args)
			assert.Equal(t, tc.wantAll, f.IsAll())
			assert.Equal(t, tc.wantIDs, f.IDs())
		})
	}
}

func TestFilter_String(t *testing.T) {
	assert.Equal(t, "all", AllProducts().String())
	assert.Equal(t, "42,7", ByIDs("42", " 7", "42").String())
}

func TestFilter_IDsReturnsCopy(t *testing.T) {
	f := ByIDs("a", "b")
	ids := f.IDs()
	ids[0] = "zzz"
	assert.Equal(t, []string{"a", "b"}, f.IDs())
}

func TestTotal(t *testing.T) {
	assert.Equal(t, "?", UnknownTotal().String())
	assert.False(t, UnknownTotal().Known)
	assert.Equal(t, "3", KnownTotal(3).String())
	assert.Equal(t, Total{N: 0, Known: true}, KnownTotal(-1))
}

func TestImageSize_Validate(t *testing.T) {
	for _, s := range DefaultSizes() {
		assert.NoError(t, s.Validate(), s.ID)
	}
	assert.Error(t, ImageSize{ID: "../x", Width: 1}.Validate())
	assert.Error(t, ImageSize{ID: "a"}.Validate())
	assert.Error(t, ImageSize{ID: "a", Width: 10, Quality: 101}.Validate())
	assert.Error(t, ImageSize{ID: "a", Width: 10, Format: "bmp"}.Validate())
	assert.NoError(t, ImageSize{ID: "a", Width: 10, Format: "png"}.Validate())
	assert.Equal(t, DefaultJPEGQuality, ImageSize{ID: "a", Width: 1}.EffectiveQuality())
}

func TestCheckProductID(t *testing.T) {
	for _, ok := range []string{"42", "SKU-7", "a.b_c"} {
		assert.NoError(t, CheckProductID(ok), ok)
	}
	for _, bad := range []string{"", "..", "../etc", "a/b", ".hidden", "a b"} {
		assert.Error(t, CheckProductID(bad), bad)
	}
}
