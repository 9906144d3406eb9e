package script

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfheal/domain/entities"
)

func TestParse(t *testing.T) {
	t.Run("should parse the three primitives", func(t *testing.T) {
		code := `# Example self-healing script
click('#submit-button', 'submitBtn')
wait(1000)
fill('#email', 'test@example.com', 'emailInput')
click('button:has-text("Login")', 'loginButton')
`
		actions, err := Parse(code)
		require.NoError(t, err)
		require.Len(t, actions, 4)

		assert.Equal(t, entities.Click("#submit-button", "submitBtn"), actions[0])
		assert.Equal(t, entities.Wait(1000), actions[1])
		assert.Equal(t, entities.Fill("#email", "test@example.com", "emailInput"), actions[2])
		assert.Equal(t, `button:has-text("Login")`, actions[3].Selector)
		assert.Equal(t, "loginButton", actions[3].Name)
	})

	t.Run("should default the locator name to the selector", func(t *testing.T) {
		actions, err := Parse(`click("#go")`)
		require.NoError(t, err)
		assert.Equal(t, "#go", actions[0].Name)
	})

	t.Run("should accept keyword arguments and trailing comments", func(t *testing.T) {
		actions, err := Parse(`fill('#q', value="go\"lang", locator_name='search')  # type query`)
		require.NoError(t, err)
		require.Len(t, actions, 1)
		assert.Equal(t, `go"lang`, actions[0].Value)
		assert.Equal(t, "search", actions[0].Name)
	})

	t.Run("should accept page prefixed calls", func(t *testing.T) {
		actions, err := Parse(`page.wait(ms=250);`)
		require.NoError(t, err)
		assert.Equal(t, 250, actions[0].Milliseconds)
	})

	t.Run("should accept the longest representable wait", func(t *testing.T) {
		actions, err := Parse(fmt.Sprintf("wait(%d)", maxWaitMillis))
		require.NoError(t, err)
		assert.Positive(t, actions[0].Duration())
	})

	tests := []struct {
		name string
		code string
		line int
	}{
		{"unknown action", "hover('#a')", 1},
		{"missing selector", "click()", 1},
		{"empty selector", "click('  ')", 1},
		{"wait with a string", "wait('soon')", 1},
		{"too many args", "wait(1, 2)", 1},
		{"wait overflowing a duration", "wait(9999999999999999)", 1},
		{"wait beyond int range", "wait(99999999999999999999)", 1},
		{"unterminated string", "click('#a", 1},
		{"garbage after call", "click('#a') click('#b')", 1},
		{"error on later line", "wait(10)\n\nfill('#a')", 3},
		{"only comments", "# nothing here", 0},
		{"positional after keyword", "click(name='x', '#a')", 1},
	}
	for _, tt := range tests {
		t.Run("should reject "+tt.name, func(t *testing.T) {
			_, err := Parse(tt.code)
			require.Error(t, err)

			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr))
			assert.Equal(t, tt.line, syntaxErr.Line)
		})
	}
}
