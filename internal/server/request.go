package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// formMemory is how much of a multipart body is kept in memory.
const formMemory = 8 << 20

// requestFields is a flattened request body. Send endpoints accept JSON,
// url-encoded forms and multipart forms alike.
type requestFields struct {
	values map[string]string
	files  map[string][]*multipart.FileHeader
}

func (f requestFields) get(name string) string {
	return strings.TrimSpace(f.values[name])
}

func (f requestFields) file(name string) *multipart.FileHeader {
	if fh := f.files[name]; len(fh) > 0 {
		return fh[0]
	}
	return nil
}

// require returns a field to message map for every empty field.
func (f requestFields) require(names ...string) map[string]string {
	var missing map[string]string
	for _, name := range names {
		if f.get(name) == "" {
			if missing == nil {
				missing = make(map[string]string)
			}
			missing[name] = msgInvalidValue
		}
	}
	return missing
}

// readFields decodes the request body according to its content type.
func readFields(r *http.Request) (requestFields, error) {
	fields := requestFields{values: make(map[string]string)}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(formMemory); err != nil {
			return fields, fmt.Errorf("parse multipart form: %w", err)
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				fields.values[k] = v[0]
			}
		}
		fields.files = r.MultipartForm.File
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return fields, fmt.Errorf("parse form: %w", err)
		}
		for k := range r.PostForm {
			fields.values[k] = r.PostForm.Get(k)
		}
	default:
		var raw map[string]any
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return fields, nil
			}
			return fields, fmt.Errorf("decode body: %w", err)
		}
		for k, v := range raw {
			switch v := v.(type) {
			case string:
				fields.values[k] = v
			case nil:
			default:
				fields.values[k] = fmt.Sprint(v)
			}
		}
	}
	return fields, nil
}
