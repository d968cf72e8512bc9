package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeFile reads a YAML or JSON file into out, picking the decoder from
// the extension. A missing file reports found=false and no error.
func DecodeFile(path string, out any) (found bool, err error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, out)
	} else {
		err = yaml.Unmarshal(data, out)
	}
	if err != nil {
		return true, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}
