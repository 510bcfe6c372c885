package launch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteArg(t *testing.T) {
	q, keep := QuoteArg("")
	assert.False(t, keep)
	assert.Equal(t, "", q)

	q, keep = QuoteArg("hello")
	assert.True(t, keep)
	assert.Equal(t, `"hello"`, q)

	q, keep = QuoteArg(`say "hi"`)
	assert.True(t, keep)
	assert.Equal(t, `"say \"hi\""`, q)

	q, keep = QuoteArg("'already quoted'")
	assert.True(t, keep)
	assert.Equal(t, "'already quoted'", q)
}

func TestQuoteArgs_DropsEmpty(t *testing.T) {
	got := QuoteArgs([]string{"a", "", "b"})
	assert.Equal(t, `"a" "b"`, got)
}
