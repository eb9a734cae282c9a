package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatEmptyIsBlank(t *testing.T) {
	assert.Equal(t, "", Format(Empty))
	assert.Equal(t, "", Format(nil))
}

func TestFormatRoundTripsThroughParse(t *testing.T) {
	sources := []string{
		"finance",
		`kind="invoice"`,
		"size=42",
		"size?",
		"size>=10",
		"size<=10",
		"a || b && c",
		"(a || b) && c",
		"!finance",
		`@parent(blob-1)`,
		`@ancestor(blob-2)`,
		`@owner(alice)`,
	}
	for _, src := range sources {
		e, err := Parse(src)
		require.NoError(t, err, src)

		formatted := Format(e)
		reparsed, err := Parse(formatted)
		require.NoError(t, err, formatted)
		assert.Equal(t, e, reparsed, "round trip through %q", src)
	}
}

func TestFormatAddsParensToPreserveAndOverOr(t *testing.T) {
	e := And(Or(Tag("a"), Tag("b")), Tag("c"))
	formatted := Format(e)
	assert.Equal(t, "(a || b) && c", formatted)
}

func TestFormatNotOverBinaryNeedsParens(t *testing.T) {
	e := Not(Or(Tag("a"), Tag("b")))
	formatted := Format(e)
	assert.Equal(t, "!(a || b)", formatted)
}
