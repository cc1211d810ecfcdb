// Package doctor implements `nexus doctor`: config migrations, workspace
// repair, channel and security audits, and the health/reminder probes used
// to check on a running gateway.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/haasonsaas/nexus/internal/config"
	"gopkg.in/yaml.v3"
)

// MigrationReport records the migrations ApplyConfigMigrations applied.
type MigrationReport struct {
	Applied     []string
	FromVersion int
	ToVersion   int
}

// LoadRawConfig reads a YAML/JSON config file into a mutable map, the same
// way config.Load does before decoding it strictly into a Config.
func LoadRawConfig(path string) (map[string]any, error) {
	return config.LoadRaw(path)
}

// WriteRawConfig writes a config map back to disk in its original format,
// preserving the file's permission bits.
func WriteRawConfig(path string, raw map[string]any) error {
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" || ext == ".json5" {
		data, err = json.MarshalIndent(raw, "", "  ")
	} else {
		data, err = yaml.Marshal(raw)
	}
	if err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, data, mode)
}

// ApplyConfigMigrations rewrites legacy config keys in-place: an old
// top-level "plugins" section becomes "marketplace", and an old top-level
// "memory" section becomes "vector_memory", matching fields config.Config
// has carried since this repo's marketplace and vector-memory sections
// were split out and renamed.
func ApplyConfigMigrations(raw map[string]any) (MigrationReport, error) {
	report := MigrationReport{ToVersion: config.CurrentVersion}
	if raw == nil {
		return report, nil
	}

	version, err := parseConfigVersion(raw)
	if err != nil {
		return report, err
	}
	report.FromVersion = version
	if version < 0 {
		return report, fmt.Errorf("invalid config version %d", version)
	}
	if version > config.CurrentVersion {
		return report, &config.VersionError{Version: version, Current: config.CurrentVersion, Reason: "newer than this build"}
	}

	if legacy, ok := getStringMap(raw, "plugins"); ok {
		if _, exists := raw["marketplace"]; exists {
			report.Applied = append(report.Applied, "removed legacy plugins section (marketplace already set)")
		} else {
			raw["marketplace"] = legacy
			report.Applied = append(report.Applied, "moved plugins -> marketplace")
		}
		delete(raw, "plugins")
	}

	if legacy, ok := getStringMap(raw, "memory"); ok {
		if _, exists := raw["vector_memory"]; exists {
			report.Applied = append(report.Applied, "removed legacy memory section (vector_memory already set)")
		} else {
			raw["vector_memory"] = legacy
			report.Applied = append(report.Applied, "moved memory -> vector_memory")
		}
		delete(raw, "memory")
	}

	if version < config.CurrentVersion {
		raw["version"] = config.CurrentVersion
		report.Applied = append(report.Applied, fmt.Sprintf("set version to %d", config.CurrentVersion))
	}

	return report, nil
}

func parseConfigVersion(raw map[string]any) (int, error) {
	if raw == nil {
		return 0, nil
	}
	value, ok := raw["version"]
	if !ok || value == nil {
		return 0, nil
	}
	switch typed := value.(type) {
	case int:
		return typed, nil
	case int64:
		return int(typed), nil
	case int32:
		return int(typed), nil
	case float64:
		return int(typed), nil
	case float32:
		return int(typed), nil
	case string:
		if strings.TrimSpace(typed) == "" {
			return 0, nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, fmt.Errorf("invalid config version %q", typed)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("invalid config version type %T", value)
	}
}

func getStringMap(root map[string]any, key string) (map[string]any, bool) {
	if root == nil {
		return nil, false
	}
	current, ok := root[key]
	if !ok {
		return nil, false
	}
	switch value := current.(type) {
	case map[string]any:
		return value, true
	case map[any]any:
		converted := map[string]any{}
		for k, v := range value {
			converted[fmt.Sprint(k)] = v
		}
		root[key] = converted
		return converted, true
	default:
		return nil, false
	}
}
