// Package functions discovers local Lambda functions and restarts them when
// their sources change.
package functions

// Source records where a function definition came from.
type Source string

const (
	// SourceDiscovered is a directory of Go files found under the functions path.
	SourceDiscovered Source = "discovered"
	// SourceManifest is a directory with a function.yaml manifest.
	SourceManifest Source = "manifest"
	// SourceConfig is an entry under functions.definitions.
	SourceConfig Source = "config"
	// SourceDefault is a name that matched nothing and uses the command template.
	SourceDefault Source = "default"
)

// ManifestFile is the per-function manifest file name.
const ManifestFile = "function.yaml"

// FunctionDef represents a function and how to run it.
type FunctionDef struct {
	// Name is the function name, used in Runtime API paths.
	Name string `json:"name"`
	// Dir is the function's source directory.
	Dir string `json:"dir"`
	// Command is the program and arguments that run the function.
	Command []string `json:"command"`
	// WorkDir is where Command runs; empty means the current directory.
	WorkDir string `json:"work_dir,omitempty"`
	// Env contains environment variables for this function.
	Env map[string]string `json:"env,omitempty"`
	// Memory overrides the reported memory size in MB (optional).
	Memory int `json:"memory,omitempty"`
	// Timeout overrides the synchronous invoke timeout in seconds (optional).
	Timeout int `json:"timeout,omitempty"`
	// Watch holds glob patterns, relative to Dir, that trigger a restart.
	Watch []string `json:"watch,omitempty"`
	// Source is where this definition came from.
	Source Source `json:"source"`
}

// FunctionManifest represents a function's YAML manifest file.
type FunctionManifest struct {
	Name    string            `yaml:"name"`
	Command string            `yaml:"command"`
	Timeout string            `yaml:"timeout"`
	Memory  string            `yaml:"memory"`
	Env     map[string]string `yaml:"env"`
	Watch   []string          `yaml:"watch"`
}
