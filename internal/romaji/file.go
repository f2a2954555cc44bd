package romaji

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidFile wraps every error caused by the content of a dictionary file.
var ErrInvalidFile = errors.New("romaji: invalid dictionary file")

//go:embed dictionary.schema.json
var schemaJSON []byte

const schemaURL = "https://kanaime.invalid/schema/dictionary-v1.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func fileSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// File is a user dictionary file.
//
//	{"version": 1, "name": "yoon", "entries": {"kya": "きゃ"}}
//
// The same shape is accepted as TOML.
type File struct {
	Version int               `json:"version" toml:"version"`
	Name    string            `json:"name,omitempty" toml:"name"`
	Entries map[string]string `json:"entries" toml:"entries"`
}

// LoadFile reads a .json or .toml dictionary file and validates it.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary file: %w", err)
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f, err := ParseFile(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseFile decodes data in the given format ("json" or "toml") and validates
// it against the dictionary schema.
func ParseFile(data []byte, format string) (*File, error) {
	var doc any

	switch format {
	case "json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: decode JSON: %v", ErrInvalidFile, err)
		}
	case "toml":
		var f File
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("%w: decode TOML: %v", ErrInvalidFile, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown key %q", ErrInvalidFile, undecoded[0].String())
		}
		// Round-trip through JSON so both formats meet the same schema.
		raw, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("encode TOML document: %w", err)
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode TOML document: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidFile, format)
	}

	schema, err := fileSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	// The schema guarantees the shape, so this cannot fail for JSON input.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return &f, nil
}

// Apply overlays the file's entries on base.
func (f *File) Apply(base *Dictionary) (*Dictionary, error) {
	d, err := base.Merge(f.Entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	return d, nil
}
