package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// get returns the value for key, reporting false when it is missing or null.
func get(data map[string]any, key string) (any, bool) {
	if data == nil || key == "" {
		return nil, false
	}
	v, ok := data[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func getFloat(data map[string]any, key string, fallback float64) float64 {
	v, ok := get(data, key)
	if !ok {
		return fallback
	}
	f, ok := toFloat(v)
	if !ok {
		return fallback
	}
	return f
}

// truthy follows the usual dynamic-language rules: missing, null, false, zero
// and empty values are false.
func truthy(data map[string]any, key string) bool {
	v, ok := get(data, key)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

// exactly reports whether the value for key equals want. Numbers are compared
// by value regardless of their Go type.
func exactly(data map[string]any, key string, want any) bool {
	v, ok := get(data, key)
	if !ok {
		return want == nil
	}
	if wf, ok := toFloat(want); ok {
		if _, isBool := want.(bool); !isBool {
			vf, ok := toFloat(v)
			_, vIsBool := v.(bool)
			return ok && !vIsBool && vf == wf
		}
	}
	return v == want
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case uint:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(t) {
		case "true", "on", "1", "yes":
			return true, true
		case "false", "off", "0", "no":
			return false, true
		}
		return false, false
	}
	if f, ok := toFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func formatFloat(value float64, decimals uint) string {
	return fmt.Sprintf(fmt.Sprintf("%%.%df", decimals), value)
}

// IconForBatteryLevel returns the material design icon for a battery level.
func IconForBatteryLevel(level *float64, charging bool) string {
	icon := "mdi:battery"
	if level == nil {
		return icon + "-unknown"
	}
	l := *level
	switch {
	case charging && l > 10:
		icon += fmt.Sprintf("-charging-%d", int(math.RoundToEven(l/20-0.01))*20)
	case charging:
		icon += "-outline"
	case l <= 5:
		icon += "-alert"
	case l > 5 && l < 95:
		icon += fmt.Sprintf("-%d", int(math.RoundToEven(l/10-0.01))*10)
	}
	return icon
}
