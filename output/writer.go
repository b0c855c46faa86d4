package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/solvik/fetchq/errors"
)

// Writer persists result payloads as JSON files under a root directory,
// one subdirectory per operation. Writes are staged to a temporary file
// and published with an atomic rename so readers never see a partial
// result.
type Writer struct {
	root string
}

// NewWriter creates a result writer rooted at dir, creating it if needed.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create results directory %s", dir)
	}
	return &Writer{root: dir}, nil
}

// Root returns the writer's root directory.
func (w *Writer) Root() string {
	return w.root
}

// WriteJSON writes raw under <root>/<op>/<name>.json and returns the
// published path. op and name are validated against path traversal.
func (w *Writer) WriteJSON(op, name string, raw json.RawMessage) (string, error) {
	if err := validateSegment(op, "operation"); err != nil {
		return "", err
	}
	if err := validateSegment(name, "result name"); err != nil {
		return "", err
	}

	dir := filepath.Join(w.root, op)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create result directory %s", dir)
	}

	final := filepath.Join(dir, name+".json")
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return "", errors.Wrap(err, "failed to stage result file")
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "failed to publish result file")
	}

	return final, nil
}

// validateSegment rejects path components that could escape the root.
func validateSegment(s, what string) error {
	switch {
	case s == "":
		return errors.Newf("%s cannot be empty", what)
	case strings.Contains(s, ".."):
		return errors.Newf("%s cannot contain '..': %s", what, s)
	case strings.ContainsAny(s, `/\`):
		return errors.Newf("%s cannot contain path separators: %s", what, s)
	case strings.ContainsRune(s, 0):
		return errors.Newf("%s cannot contain null bytes", what)
	default:
		return nil
	}
}
