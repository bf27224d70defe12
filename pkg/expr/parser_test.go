package expr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccepts(t *testing.T) {
	sources := []string{
		`true`,
		`null`,
		`42`,
		`3.14`,
		`'single quoted'`,
		`"double quoted"`,
		`user`,
		`user.subscription == 'premium'`,
		`user.age >= 18 && user.age < 65`,
		`!user.blocked`,
		`-user.score + 10 > 0`,
		`user.country in ["DE", "FR", "NL"]`,
		`"admin" in user.roles`,
		`"road" in page.url`,
		`request.headers["x-beta"] == "1"`,
		`user.email | split("@")`,
		`user.email | lower() == "a@b.com"`,
		`user.plan | upper() | lower()`,
		`now() >= ts("2025-01-01T00:00:00Z")`,
		`ts(user.createdAt) < now()`,
		`(user.a || user.b) && !(user.c)`,
		`[]`,
		`[1, "two", true, null]`,
		`user.visits % 2 == 0`,
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			p, err := Parse(src)
			require.NoError(t, err)
			assert.Equal(t, src, p.Source())
		})
	}
}

func TestParseRejects(t *testing.T) {
	sources := []string{
		``,
		`1 2`,
		`user ==`,
		`== 1`,
		`user = 1`,
		`a & b`,
		`"unterminated`,
		`'also unterminated\'`,
		`(1 + 2`,
		`[1, 2`,
		`user.`,
		`user..name`,
		`foo()`,
		`ts()`,
		`ts(1, 2)`,
		`now(1)`,
		`user | trim()`,
		`user | split()`,
		`user | lower(1)`,
		`(user.name)(1)`,
		`user.name(1)`,
		`@`,
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			_, err := Parse(src)
			assert.Error(t, err)
		})
	}
}

func TestParseDepthIsBounded(t *testing.T) {
	deep := strings.Repeat("(", 80) + "1" + strings.Repeat(")", 80)
	_, err := Parse(deep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nests too deeply")

	shallow := strings.Repeat("(", 16) + "1" + strings.Repeat(")", 16)
	_, err = Parse(shallow)
	assert.NoError(t, err)
}

func TestParseErrorCarriesOffset(t *testing.T) {
	_, err := Parse(`user.name == `)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 13, perr.Pos)
}
