package recipe

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"buzzy/internal/schema"
	"buzzy/internal/usererr"
)

// Registrar is implemented by backends that add source or builder variants.
type Registrar interface {
	Register(s *Store) error
}

// Store loads recipes from a directory and caches them by name. It also owns
// the source and builder registries the recipe specification dispatches to.
// A Store is not safe for concurrent use.
type Store struct {
	dir      string
	backend  Backend
	log      *zap.Logger
	sources  *schema.Variants[Source]
	builders *schema.Variants[Builder]
	spec     *schema.Record[Recipe]
	recipes  map[string]*Recipe
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for debug output.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore returns a store reading <dir>/<name>.yaml. When backend
// implements Registrar its hook runs before the recipe specification is
// built.
func NewStore(dir string, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		dir:      dir,
		backend:  backend,
		log:      zap.NewNop(),
		sources:  schema.NewVariants[Source]("source"),
		builders: schema.NewVariants[Builder]("builder"),
		recipes:  make(map[string]*Recipe),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := registerSources(s.sources); err != nil {
		return nil, err
	}
	if err := registerBuilders(s.builders); err != nil {
		return nil, err
	}
	scope := ""
	if backend != nil {
		scope = backend.Name()
		if r, ok := backend.(Registrar); ok {
			if err := r.Register(s); err != nil {
				return nil, fmt.Errorf("registering %s backend: %w", scope, err)
			}
		}
	}
	s.spec = newSpec(scope, s.sources, s.builders)
	return s, nil
}

// Dir returns the recipe database directory.
func (s *Store) Dir() string { return s.dir }

// Backend returns the backend packages are created for.
func (s *Store) Backend() Backend { return s.backend }

// Sources returns the source variant registry.
func (s *Store) Sources() *schema.Variants[Source] { return s.sources }

// Builders returns the builder variant registry.
func (s *Store) Builders() *schema.Variants[Builder] { return s.builders }

func validName(name string) bool {
	return name != "" && path.Clean(name) == name && !path.IsAbs(name) &&
		name != ".." && !strings.HasPrefix(name, "../")
}

// Load returns the recipe called name, reading it on first use.
func (s *Store) Load(name string) (*Recipe, error) {
	if r, ok := s.recipes[name]; ok {
		return r, nil
	}
	if !validName(name) {
		return nil, usererr.Errorf("no recipe named %s", name)
	}
	file := filepath.Join(s.dir, filepath.FromSlash(name)+".yaml")
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, usererr.Errorf("no recipe named %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading recipe %s: %w", name, err)
	}

	r, err := s.Decode(name, data)
	if err != nil {
		return nil, err
	}
	s.log.Debug("loaded recipe", zap.String("recipe", name), zap.String("file", file))
	s.recipes[name] = r
	return r, nil
}

// Decode parses a recipe description for name without caching it.
func (s *Store) Decode(name string, data []byte) (*Recipe, error) {
	doc, err := schema.Parse(data)
	if err != nil {
		return nil, usererr.Wrap(err, "recipe "+name)
	}
	r := &Recipe{Name: name}
	c := &schema.Context{Root: doc, Extra: map[string]string{"name": name}}
	if err := s.spec.Decode(doc, c, r); err != nil {
		return nil, usererr.Wrap(err, "recipe "+name)
	}
	if r.DeclaredName != "" && r.DeclaredName != name {
		return nil, usererr.Errorf("invalid recipe description, name must be %s", name)
	}
	return r, nil
}

// Encode renders r in minimal form.
func (s *Store) Encode(r *Recipe) (*schema.Node, error) {
	return s.spec.Encode(r)
}

// AllNames walks the recipe database and yields one name per description
// file. Every call walks the directory again.
func (s *Store) AllNames() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if p != s.dir && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(d.Name(), ".yaml") {
				return nil
			}
			rel, err := filepath.Rel(s.dir, p)
			if err != nil {
				return err
			}
			if !yield(filepath.ToSlash(strings.TrimSuffix(rel, ".yaml")), nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", fmt.Errorf("walking recipe database: %w", err))
		}
	}
}
