package pipeline

// OpPipe separates stages on an input line.
const OpPipe = "|"

// Command is a single stage of a pipeline: a program name and its arguments.
// Name is empty only for a blank stage.
type Command struct {
	Name string
	Args []string
}

// Blank reports whether the stage had no words at all.
func (c Command) Blank() bool { return c.Name == "" }

// Argv returns the name followed by the arguments.
func (c Command) Argv() []string {
	return append([]string{c.Name}, c.Args...)
}

// Pipeline is an ordered sequence of commands joined by OpPipe.
type Pipeline struct {
	Stages []Command
}

// Runnable returns the pipeline with blank stages dropped.
func (p Pipeline) Runnable() Pipeline {
	out := Pipeline{Stages: make([]Command, 0, len(p.Stages))}
	for _, c := range p.Stages {
		if !c.Blank() {
			out.Stages = append(out.Stages, c)
		}
	}
	return out
}

// Names returns each stage's command name in order.
func (p Pipeline) Names() []string {
	names := make([]string, len(p.Stages))
	for i, c := range p.Stages {
		names[i] = c.Name
	}
	return names
}
