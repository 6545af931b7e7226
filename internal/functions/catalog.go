package functions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/watzon/lambdev/internal/config"
	"github.com/watzon/lambdev/internal/scheduler"
)

var (
	errNotAFunction = errors.New("not a function directory")

	// ErrInvalidName is returned for function names that cannot be used in a path.
	ErrInvalidName = errors.New("invalid function name")
)

// Catalog knows every function that can be run and how to start it.
type Catalog struct {
	root      string
	template  string
	env       map[string]string
	overrides map[string]config.FunctionDefinition
	functions map[string]*FunctionDef
	mu        sync.RWMutex
}

// NewCatalog creates a catalog for the given functions configuration.
// Discover must be called to populate it.
func NewCatalog(cfg *config.FunctionsConfig) *Catalog {
	template := cfg.Command
	if strings.TrimSpace(template) == "" {
		template = config.DefaultCommand
	}

	return &Catalog{
		root:      cfg.Path,
		template:  template,
		env:       cfg.Env,
		overrides: cfg.Definitions,
		functions: make(map[string]*FunctionDef),
	}
}

// Discover scans the functions directory and applies configured definitions.
func (c *Catalog) Discover() error {
	functions := make(map[string]*FunctionDef)

	if err := c.scan(functions); err != nil {
		return err
	}

	for name, def := range c.overrides {
		fn := c.fromDefinition(name, def, functions[name])
		functions[name] = fn
		log.Debug().Str("name", name).Str("source", string(fn.Source)).Msg("Configured function")
	}

	c.mu.Lock()
	c.functions = functions
	c.mu.Unlock()

	log.Info().Int("count", len(functions)).Str("path", c.root).Msg("Functions discovered")
	return nil
}

func (c *Catalog) scan(functions map[string]*FunctionDef) error {
	if _, err := os.Stat(c.root); os.IsNotExist(err) {
		log.Warn().Str("path", c.root).Msg("Functions directory does not exist")
		return nil
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return fmt.Errorf("reading functions directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Skip hidden and shared directories
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			continue
		}

		fn, err := c.parseDir(name)
		if errors.Is(err, errNotAFunction) {
			continue
		}
		if err != nil {
			log.Warn().Err(err).Str("dir", name).Msg("Failed to parse function")
			continue
		}

		if existing, ok := functions[fn.Name]; ok {
			log.Warn().
				Str("name", fn.Name).
				Str("dir", fn.Dir).
				Str("existing", existing.Dir).
				Msg("Duplicate function name, keeping the first")
			continue
		}

		functions[fn.Name] = fn
		log.Debug().
			Str("name", fn.Name).
			Str("dir", fn.Dir).
			Str("source", string(fn.Source)).
			Msg("Discovered function")
	}

	return nil
}

func (c *Catalog) parseDir(dirName string) (*FunctionDef, error) {
	dir := filepath.Join(c.root, dirName)

	manifestPath := filepath.Join(dir, ManifestFile)
	if _, err := os.Stat(manifestPath); err == nil {
		return c.loadManifest(dirName, dir, manifestPath)
	}

	hasGo, err := containsGoFiles(dir)
	if err != nil {
		return nil, err
	}
	if !hasGo {
		return nil, errNotAFunction
	}

	return &FunctionDef{
		Name:    dirName,
		Dir:     dir,
		Command: c.expandTemplate(dirName, dir),
		Env:     c.mergeEnv(nil),
		Source:  SourceDiscovered,
	}, nil
}

func (c *Catalog) loadManifest(dirName, dir, path string) (*FunctionDef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest FunctionManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	fn := &FunctionDef{
		Name:    dirName,
		Dir:     dir,
		Env:     c.mergeEnv(manifest.Env),
		Memory:  parseMemoryMB(manifest.Memory),
		Timeout: parseTimeoutSeconds(manifest.Timeout),
		Watch:   manifest.Watch,
		Source:  SourceManifest,
	}

	if manifest.Name != "" {
		if err := ValidateName(manifest.Name); err != nil {
			return nil, err
		}
		fn.Name = manifest.Name
	}

	// Manifest commands are relative to the function directory.
	if manifest.Command != "" {
		fn.Command = strings.Fields(manifest.Command)
		fn.WorkDir = dir
	} else {
		fn.Command = c.expandTemplate(fn.Name, dir)
	}

	return fn, nil
}

func (c *Catalog) fromDefinition(name string, def config.FunctionDefinition, discovered *FunctionDef) *FunctionDef {
	fn := &FunctionDef{
		Name:   name,
		Dir:    filepath.Join(c.root, name),
		Source: SourceConfig,
	}
	if discovered != nil {
		*fn = *discovered
		fn.Source = SourceConfig
	}

	if def.Dir != "" {
		fn.Dir = def.Dir
	}
	if def.Command != "" {
		fn.Command = strings.Fields(c.substitute(def.Command, name, fn.Dir))
		fn.WorkDir = ""
	} else if fn.Command == nil {
		fn.Command = c.expandTemplate(name, fn.Dir)
	}
	if def.Memory > 0 {
		fn.Memory = def.Memory
	}
	if def.Timeout > 0 {
		fn.Timeout = int(def.Timeout / time.Second)
	}
	if len(def.Watch) > 0 {
		fn.Watch = def.Watch
	}

	env := make(map[string]string, len(fn.Env)+len(def.Env))
	for k, v := range fn.Env {
		env[k] = v
	}
	for k, v := range def.Env {
		env[k] = os.ExpandEnv(v)
	}
	fn.Env = c.mergeEnv(env)

	return fn
}

// Resolve returns the command that runs a function. Names that are not in the
// catalog run through the default command template.
func (c *Catalog) Resolve(name string) (*scheduler.Command, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	fn, ok := c.Get(name)
	if !ok {
		fn = c.fallback(name)
		log.Debug().Str("name", name).Strs("command", fn.Command).Msg("Using default command for unknown function")
	}

	if len(fn.Command) == 0 {
		return nil, fmt.Errorf("function %s has no command", name)
	}

	return &scheduler.Command{
		Args:     append([]string(nil), fn.Command...),
		Dir:      fn.WorkDir,
		Env:      fn.Env,
		MemoryMB: fn.Memory,
	}, nil
}

// Timeout returns the per-function invoke timeout, or zero if the function
// does not override it.
func (c *Catalog) Timeout(name string) time.Duration {
	fn, ok := c.Get(name)
	if !ok || fn.Timeout <= 0 {
		return 0
	}
	return time.Duration(fn.Timeout) * time.Second
}

func (c *Catalog) fallback(name string) *FunctionDef {
	dir := filepath.Join(c.root, name)
	return &FunctionDef{
		Name:    name,
		Dir:     dir,
		Command: c.expandTemplate(name, dir),
		Env:     c.mergeEnv(nil),
		Source:  SourceDefault,
	}
}

func (c *Catalog) expandTemplate(name, dir string) []string {
	return strings.Fields(c.substitute(c.template, name, dir))
}

func (c *Catalog) substitute(command, name, dir string) string {
	return strings.NewReplacer(
		"{name}", name,
		"{dir}", relativeDir(dir),
	).Replace(command)
}

// relativeDir makes absolute directories relative to the working directory so
// that templates such as "go run ./{dir}" keep working.
func relativeDir(dir string) string {
	dir = filepath.Clean(dir)
	if filepath.IsAbs(dir) {
		if wd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(wd, dir); err == nil {
				dir = rel
			}
		}
	}
	return filepath.ToSlash(dir)
}

// mergeEnv layers function variables over the shared ones.
func (c *Catalog) mergeEnv(fnEnv map[string]string) map[string]string {
	env := make(map[string]string, len(c.env)+len(fnEnv))
	for k, v := range c.env {
		env[k] = os.ExpandEnv(v)
	}
	for k, v := range fnEnv {
		env[k] = os.ExpandEnv(v)
	}
	return env
}

// Get returns a function definition by name.
func (c *Catalog) Get(name string) (*FunctionDef, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fn, ok := c.functions[name]
	return fn, ok
}

// List returns all known functions sorted by name.
func (c *Catalog) List() []*FunctionDef {
	c.mu.RLock()
	result := make([]*FunctionDef, 0, len(c.functions))
	for _, fn := range c.functions {
		result = append(result, fn)
	}
	c.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Count returns the number of known functions.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.functions)
}

// Reload rediscovers all functions.
func (c *Catalog) Reload() error {
	return c.Discover()
}

// Root returns the configured functions directory.
func (c *Catalog) Root() string {
	return c.root
}

// ValidateName rejects names that would escape the functions directory or
// break Runtime API routing.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\ `) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func containsGoFiles(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".go") && !strings.HasSuffix(entry.Name(), "_test.go") {
			return true, nil
		}
	}
	return false, nil
}
