/*
Package configdir loads configuration from directories of JSON and YAML
files, and watches them for changes.

Every file is keyed by its base name without the extension. JSON files
are parsed as YAML, so both formats decode the same way.
*/
package configdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"
)

// DefaultExtensions are used when no extensions are passed to the load
// functions. The order defines the precedence between files with the same
// base name.
var DefaultExtensions = []string{"json", "yaml", "yml"}

// ErrNotFound is returned by LoadFile when no file exists with the
// requested name.
var ErrNotFound = errors.New("config file not found")

func normalizeExtensions(ext []string) []string {
	if len(ext) == 0 {
		ext = DefaultExtensions
	}

	n := make([]string, len(ext))
	for i, e := range ext {
		n[i] = strings.ToLower(strings.TrimPrefix(e, "."))
	}

	return n
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// files returns the config files of dir by base name. When a base name
// exists with more than one extension, the one with the earlier extension
// wins.
func files(dir string, namePattern *regexp.Regexp, ext []string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	rank := make(map[string]int)
	for i, e := range ext {
		rank[e] = i
	}

	found := make(map[string]string)
	foundRank := make(map[string]int)
	for _, e := range entries {
		if e.IsDir() || hidden(e.Name()) {
			continue
		}

		x := strings.ToLower(strings.TrimPrefix(filepath.Ext(e.Name()), "."))
		r, ok := rank[x]
		if !ok {
			continue
		}

		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if namePattern != nil && !namePattern.MatchString(name) {
			continue
		}

		if prev, exists := foundRank[name]; exists {
			if prev <= r {
				log.Warnf("config file %s ignored, shadowed by %s", filepath.Join(dir, e.Name()), found[name])
				continue
			}

			log.Warnf("config file %s ignored, shadowed by %s", found[name], filepath.Join(dir, e.Name()))
		}

		found[name] = filepath.Join(dir, e.Name())
		foundRank[name] = r
	}

	return found, nil
}

func decodeFile(path string, into interface{}, strict bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strict {
		err = yaml.UnmarshalStrict(b, into)
	} else {
		err = yaml.Unmarshal(b, into)
	}

	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// Load reads the config files of a directory. When namePattern is not
// empty, only the files whose base name matches it are loaded. The result
// maps the base names to the parsed content. A missing directory returns
// an error matching fs.ErrNotExist.
func Load(dir, namePattern string, extensions ...string) (map[string]interface{}, error) {
	var rx *regexp.Regexp
	if namePattern != "" {
		var err error
		rx, err = regexp.Compile(namePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid name pattern %q: %w", namePattern, err)
		}
	}

	found, err := files(dir, rx, normalizeExtensions(extensions))
	if err != nil {
		return nil, err
	}

	m := make(map[string]interface{}, len(found))
	for name, path := range found {
		var v interface{}
		if err := decodeFile(path, &v, false); err != nil {
			return nil, err
		}

		m[name] = v
	}

	return m, nil
}

// LoadInto decodes every config file of a directory into a new value
// created by create, and passes it to set. Files that fail to decode are
// reported in the returned error, but they don't stop loading the rest.
// Unknown fields are decoding errors.
func LoadInto(dir string, create func() interface{}, set func(name string, v interface{}), extensions ...string) error {
	found, err := files(dir, nil, normalizeExtensions(extensions))
	if err != nil {
		return err
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}

	sort.Strings(names)
	var errs []error
	for _, name := range names {
		v := create()
		if err := decodeFile(found[name], v, true); err != nil {
			errs = append(errs, err)
			continue
		}

		set(name, v)
	}

	return errors.Join(errs...)
}

// LoadFile decodes the config file of a directory with the given base
// name into v. When no such file exists, it returns ErrNotFound. Unknown
// fields are decoding errors.
func LoadFile(dir, name string, v interface{}, extensions ...string) error {
	found, err := files(dir, regexp.MustCompile("^"+regexp.QuoteMeta(name)+"$"), normalizeExtensions(extensions))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}

	if err != nil {
		return err
	}

	path, ok := found[name]
	if !ok {
		return ErrNotFound
	}

	return decodeFile(path, v, true)
}
