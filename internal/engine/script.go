package engine

import (
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/respstack/respstats/internal/models"
)

// Attribute keys the script hook reserves for typed incident fields. Any
// other key the script writes lands in the incident's open attribute map.
const (
	scriptKeyID        = "ID"
	scriptKeyTime      = "Time"
	scriptKeyLocation  = "Location"
	scriptKeyLatitude  = "Latitude"
	scriptKeyLongitude = "Longitude"
)

// Packages a post-processing script may import. Scripts run in-process, so
// filesystem, network, and exec access stay off the table.
var allowedScriptImports = map[string]bool{
	"strings":       true,
	"strconv":       true,
	"fmt":           true,
	"math":          true,
	"regexp":        true,
	"sort":          true,
	"time":          true,
	"unicode":       true,
	"encoding/json": true,
}

// ScriptHook runs a user-supplied Go script against each incident after
// derivation. The script must define:
//
//	func Process(incident map[string]any) error
//
// Incident attributes appear as native values; keys the script adds or
// changes are written back into the incident's attribute map.
type ScriptHook struct {
	logger  *slog.Logger
	name    string
	process func(map[string]any) error
}

// NewScriptHook loads and evaluates the script at path. An empty or missing
// path yields a nil hook, which disables the stage.
func NewScriptHook(path string, logger *slog.Logger) (*ScriptHook, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read script: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	src := string(data)
	if err := validateScriptImports(src); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load script stdlib: %w", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("evaluate script: %w", err)
	}

	v, err := i.Eval("main.Process")
	if err != nil {
		return nil, fmt.Errorf("script has no Process function: %w", err)
	}
	process, ok := v.Interface().(func(map[string]any) error)
	if !ok {
		return nil, fmt.Errorf("script Process must be func(map[string]any) error")
	}

	return &ScriptHook{
		logger:  logger,
		name:    filepath.Base(path),
		process: process,
	}, nil
}

// Name returns the script file name.
func (h *ScriptHook) Name() string { return h.name }

// Process runs the script against one incident. Script failures are logged
// and recorded as load errors; they never abort the run. Returns true when
// the incident was processed cleanly.
func (h *ScriptHook) Process(inc *models.Incident, errs *models.ErrorLog) bool {
	payload := h.export(inc)
	if err := h.process(payload); err != nil {
		h.logger.Warn("script failed for incident",
			slog.String("script", h.name),
			slog.String("incident_id", inc.ID),
			slog.Any("error", err),
		)
		if errs != nil {
			errs.Append(models.LoadError{
				Kind:   models.ErrLoaderException,
				Source: h.name,
				Record: map[string]string{"incident_id": inc.ID},
				Detail: err.Error(),
			})
		}
		return false
	}
	h.writeBack(inc, payload)
	return true
}

func (h *ScriptHook) export(inc *models.Incident) map[string]any {
	payload := make(map[string]any, len(inc.Data)+5)
	payload[scriptKeyID] = inc.ID
	payload[scriptKeyTime] = inc.Time
	payload[scriptKeyLocation] = inc.Location
	if inc.HasCoords() {
		payload[scriptKeyLatitude] = inc.Latitude
		payload[scriptKeyLongitude] = inc.Longitude
	}
	for name, value := range inc.Data {
		payload[name] = exportValue(value)
	}
	return payload
}

// writeBack folds script-added or script-changed keys into the attribute
// map. Typed fields stay read-only from scripts.
func (h *ScriptHook) writeBack(inc *models.Incident, payload map[string]any) {
	for name, raw := range payload {
		switch name {
		case scriptKeyID, scriptKeyTime, scriptKeyLocation, scriptKeyLatitude, scriptKeyLongitude:
			continue
		}
		value, ok := importValue(raw)
		if !ok {
			continue
		}
		if existing, present := inc.Data[name]; present && existing.Equal(value) {
			continue
		}
		inc.Data[name] = value
	}
}

func exportValue(v models.Value) any {
	switch v.Kind() {
	case models.KindInt:
		f, _ := v.AsFloat()
		return int64(f)
	case models.KindFloat:
		f, _ := v.AsFloat()
		return f
	case models.KindTime:
		t, _ := v.AsTime()
		return t
	default:
		return v.AsString()
	}
}

func importValue(raw any) (models.Value, bool) {
	switch v := raw.(type) {
	case string:
		return models.Coerce(v), true
	case int:
		return models.IntValue(int64(v)), true
	case int64:
		return models.IntValue(v), true
	case float64:
		return models.FloatValue(v), true
	case bool:
		if v {
			return models.IntValue(1), true
		}
		return models.IntValue(0), true
	case time.Time:
		return models.TimeValue(v), true
	default:
		return models.Value{}, false
	}
}

func validateScriptImports(src string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "script.go", src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse script: %w", err)
	}
	for _, imp := range file.Imports {
		pkg, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return fmt.Errorf("parse script import %s: %w", imp.Path.Value, err)
		}
		if !allowedScriptImports[pkg] {
			return fmt.Errorf("script imports disallowed package %q", pkg)
		}
	}
	return nil
}
