package core

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLConfigLoader reads raw configuration from a YAML document. Path is
// read on every load; Data is used when Path is empty.
type YAMLConfigLoader struct {
	Path string
	Data []byte
}

func (l YAMLConfigLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	data := l.Data
	if path := strings.TrimSpace(l.Path); path != "" {
		read, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("core: read config %s: %w", path, err)
		}
		data = read
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("core: decode yaml config: %w", err)
	}
	return raw, nil
}

var _ RawConfigLoader = YAMLConfigLoader{}
