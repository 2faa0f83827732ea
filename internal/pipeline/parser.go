package pipeline

import "strings"

// Tokenize splits a raw input line on OpPipe into stages, then each stage on
// runs of whitespace into a command name and its arguments. There is no
// quoting or escaping. A blank stage yields a Command with an empty name.
func Tokenize(line string) Pipeline {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return Pipeline{}
	}

	parts := strings.Split(line, OpPipe)
	p := Pipeline{Stages: make([]Command, 0, len(parts))}
	for _, part := range parts {
		p.Stages = append(p.Stages, parseStage(part))
	}
	return p
}

func parseStage(s string) Command {
	words := strings.Fields(s)
	if len(words) == 0 {
		return Command{}
	}
	return Command{Name: words[0], Args: words[1:]}
}
