package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var datasetNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,127}$`)

// Dataset is a parquet object exposed to SQL under Name. Several datasets may
// share a name; their objects are read together.
type Dataset struct {
	Name      string
	ObjectKey string
}

// ParseDatasets reads a comma separated list of name=object/key.parquet pairs.
func ParseDatasets(spec string) ([]Dataset, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	entries := strings.Split(spec, ",")
	datasets := make([]Dataset, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, key, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("invalid dataset entry %q: expected name=object_key", entry)
		}
		name = strings.TrimSpace(name)
		if err := validateDatasetName(name); err != nil {
			return nil, err
		}
		key, err := cleanObjectKey(key)
		if err != nil {
			return nil, fmt.Errorf("invalid dataset entry %q: %w", entry, err)
		}
		datasets = append(datasets, Dataset{Name: name, ObjectKey: key})
	}
	return datasets, nil
}

func validateDatasetName(value string) error {
	if !datasetNamePattern.MatchString(value) {
		return fmt.Errorf("invalid dataset name: %q", value)
	}
	return nil
}

func cleanObjectKey(key string) (string, error) {
	key = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("object key escapes the bucket: %q", key)
	}
	return cleaned, nil
}
