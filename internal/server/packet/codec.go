package packet

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		files, err := fs.Glob(schemaFS, "schemas/*.schema.json")
		if err != nil {
			schemasErr = err
			return
		}
		out := make(map[string]*jsonschema.Schema, len(files))
		for _, f := range files {
			raw, err := schemaFS.ReadFile(f)
			if err != nil {
				schemasErr = err
				return
			}
			s, err := jsonschema.CompileString(f, string(raw))
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", f, err)
				return
			}
			out[strings.TrimSuffix(path.Base(f), ".schema.json")] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// DecodeError is returned for messages that cannot be accepted. Code is one
// of the Code* constants.
type DecodeError struct {
	Code string
	Err  error
}

func (e *DecodeError) Error() string { return e.Code + ": " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Validate checks data against the schema of its message type.
func Validate(data []byte) (string, error) {
	all, err := loadSchemas()
	if err != nil {
		return "", &DecodeError{Code: CodeInternal, Err: err}
	}

	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return "", &DecodeError{Code: CodeBadRequest, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return "", &DecodeError{Code: CodeBadRequest, Err: fmt.Errorf("message is not an object")}
	}
	typ, _ := obj["type"].(string)
	s, ok := all[typ]
	if !ok {
		return typ, &DecodeError{Code: CodeUnknownType, Err: fmt.Errorf("unknown message type %q", typ)}
	}
	if err := s.Validate(v); err != nil {
		return typ, &DecodeError{Code: CodeBadRequest, Err: err}
	}
	return typ, nil
}

// Decode validates and parses a client message.
func Decode(data []byte) (Message, error) {
	typ, err := Validate(data)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeHello:
		return decodeAs[Hello](data)
	case TypeChunk:
		return decodeAs[Chunk](data)
	case TypeRemove:
		return decodeAs[Remove](data)
	case TypePlace:
		return decodeAs[Place](data)
	}
	return nil, &DecodeError{Code: CodeUnknownType, Err: fmt.Errorf("%q is not a client message", typ)}
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &DecodeError{Code: CodeBadRequest, Err: err}
	}
	return m, nil
}

// Encode marshals a server message.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	return data, nil
}
