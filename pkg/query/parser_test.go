package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmptySourceYieldsEmpty(t *testing.T) {
	e, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, Empty, e)

	e, err = Parse("   ")
	require.NoError(t, err)
	assert.Equal(t, Empty, e)
}

func TestParseBareTag(t *testing.T) {
	e, err := Parse("finance")
	require.NoError(t, err)
	assert.Equal(t, &Expr{Kind: KindTag, Key: "finance"}, e)
}

func TestParseKVStringAndInt(t *testing.T) {
	e, err := Parse(`kind="invoice"`)
	require.NoError(t, err)
	assert.Equal(t, KindKV, e.Kind)
	assert.Equal(t, "kind", e.Key)
	assert.Equal(t, "invoice", e.StrValue)
	assert.False(t, e.IsInt)

	e, err = Parse("size=42")
	require.NoError(t, err)
	assert.Equal(t, KindKV, e.Kind)
	assert.True(t, e.IsInt)
	assert.Equal(t, int64(42), e.IntValue)
}

func TestParseHasKey(t *testing.T) {
	e, err := Parse("size?")
	require.NoError(t, err)
	assert.Equal(t, KindHasKey, e.Kind)
	assert.Equal(t, "size", e.Key)
}

func TestParseNumericRangeOperators(t *testing.T) {
	cases := []struct {
		src    string
		wantLo *int64
		wantHi *int64
	}{
		{"size<10", nil, int64p(9)},
		{"size<=10", nil, int64p(10)},
		{"size>10", int64p(11), nil},
		{"size>=10", int64p(10), nil},
	}
	for _, c := range cases {
		e, err := Parse(c.src)
		require.NoError(t, err, c.src)
		assert.Equal(t, KindNumericRange, e.Kind, c.src)
		assert.Equal(t, c.wantLo, e.Lo, c.src)
		assert.Equal(t, c.wantHi, e.Hi, c.src)
	}
}

func TestParseAnnotations(t *testing.T) {
	e, err := Parse(`@parent("blob-1")`)
	require.NoError(t, err)
	assert.Equal(t, KindParent, e.Kind)
	assert.Equal(t, "blob-1", e.BlobID)

	e, err = Parse(`@ancestor("blob-2")`)
	require.NoError(t, err)
	assert.Equal(t, KindAncestor, e.Kind)
	assert.Equal(t, "blob-2", e.BlobID)

	e, err = Parse(`@owner("alice")`)
	require.NoError(t, err)
	assert.Equal(t, KindOwner, e.Kind)
	assert.Equal(t, "alice", e.Owner)
}

func TestParseUnknownAnnotationErrors(t *testing.T) {
	_, err := Parse(`@bogus("x")`)
	assert.Error(t, err)
}

func TestParseAndOrNotPrecedence(t *testing.T) {
	// && binds tighter than ||: "a || b && c" == "a || (b && c)"
	e, err := Parse("a || b && c")
	require.NoError(t, err)
	require.Equal(t, KindOr, e.Kind)
	assert.Equal(t, KindTag, e.Left.Kind)
	assert.Equal(t, "a", e.Left.Key)
	assert.Equal(t, KindAnd, e.Right.Kind)
}

func TestParseNot(t *testing.T) {
	e, err := Parse("!finance")
	require.NoError(t, err)
	assert.Equal(t, KindNot, e.Kind)
	assert.Equal(t, "finance", e.Left.Key)
}

func TestParseParenthesesOverridePrecedence(t *testing.T) {
	e, err := Parse("(a || b) && c")
	require.NoError(t, err)
	require.Equal(t, KindAnd, e.Kind)
	assert.Equal(t, KindOr, e.Left.Kind)
}

func TestParseTrailingInputErrors(t *testing.T) {
	_, err := Parse("a b")
	assert.Error(t, err)
}

func TestParseUnterminatedStringErrors(t *testing.T) {
	_, err := Parse(`kind="unterminated`)
	assert.Error(t, err)
}

func int64p(v int64) *int64 { return &v }
