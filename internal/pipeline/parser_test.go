package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []Command
	}{
		{"empty", "", nil},
		{"whitespace only", "  \t  \n", nil},
		{"single", "ls", []Command{{Name: "ls", Args: []string{}}}},
		{"args", "grep -r TODO src/", []Command{{Name: "grep", Args: []string{"-r", "TODO", "src/"}}}},
		{"whitespace runs", "  echo \t a   b  ", []Command{{Name: "echo", Args: []string{"a", "b"}}}},
		{"trailing newline", "echo hi\n", []Command{{Name: "echo", Args: []string{"hi"}}}},
		{
			"pipeline",
			"echo hi | tr a-z A-Z",
			[]Command{
				{Name: "echo", Args: []string{"hi"}},
				{Name: "tr", Args: []string{"a-z", "A-Z"}},
			},
		},
		{
			"no spaces around pipe",
			"cat|wc -l",
			[]Command{
				{Name: "cat", Args: []string{}},
				{Name: "wc", Args: []string{"-l"}},
			},
		},
		{
			"blank stage",
			"echo hi | | wc",
			[]Command{
				{Name: "echo", Args: []string{"hi"}},
				{},
				{Name: "wc", Args: []string{}},
			},
		},
		{
			"no quoting",
			`echo "a b"`,
			[]Command{{Name: "echo", Args: []string{`"a`, `b"`}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.line)
			assert.Equal(t, tt.want, got.Stages)
		})
	}
}

func TestRunnableDropsBlankStages(t *testing.T) {
	p := Tokenize(" | echo hi |  | tr a-z A-Z | ")
	assert.Len(t, p.Stages, 5)

	r := p.Runnable()
	assert.Equal(t, []string{"echo", "tr"}, r.Names())
}

func TestRunnableAllBlank(t *testing.T) {
	assert.Empty(t, Tokenize(" | | ").Runnable().Stages)
}
