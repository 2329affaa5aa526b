package target

// OutputDelegate receives raw inferior output as it is read from the
// inferior's terminal.
type OutputDelegate func(data []byte)

// ProcessSpawner accumulates the launch parameters of a new inferior.
type ProcessSpawner struct {
	Executable  string
	Arguments   []string
	Environment []string

	OutputDelegate OutputDelegate
	ErrorDelegate  OutputDelegate
}

func (sp *ProcessSpawner) SetExecutable(path string) {
	sp.Executable = path
}

func (sp *ProcessSpawner) SetArguments(args []string) {
	sp.Arguments = args
}

// SetEnvironment sets the inferior environment as a list of KEY=VALUE
// entries.
func (sp *ProcessSpawner) SetEnvironment(env []string) {
	sp.Environment = env
}

// RedirectOutputToDelegate routes inferior standard output to fn.
func (sp *ProcessSpawner) RedirectOutputToDelegate(fn OutputDelegate) {
	sp.OutputDelegate = fn
}

// RedirectErrorToDelegate routes inferior standard error to fn.
func (sp *ProcessSpawner) RedirectErrorToDelegate(fn OutputDelegate) {
	sp.ErrorDelegate = fn
}
