package main

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/relink-dev/relink/pkg/protocol"
)

// formatArgs renders event arguments for terminal output.
func formatArgs(args []protocol.Value) string {
	parts := make([]string, len(args))
	for i, v := range args {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, " ")
}

// formatValue renders one value in a JSON-like shape. Binary payloads
// print as a length tag instead of raw bytes.
func formatValue(v protocol.Value) string {
	switch v.Kind {
	case protocol.KindNull:
		return "null"
	case protocol.KindBool:
		return strconv.FormatBool(v.Bool)
	case protocol.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case protocol.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case protocol.KindString:
		return strconv.Quote(v.Str)
	case protocol.KindBinary:
		return fmt.Sprintf("<%d bytes>", len(v.Bin))
	case protocol.KindArray:
		parts := make([]string, len(v.Arr))
		for i, item := range v.Arr {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case protocol.KindObject:
		keys := make([]string, 0, len(v.Obj))
		for k := range v.Obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, formatValue(v.Obj[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

// parseArgs converts positional command arguments into event values:
// plain strings by default, JSON values with jsonArgs.
func parseArgs(args []string, jsonArgs bool) ([]protocol.Value, error) {
	out := make([]protocol.Value, 0, len(args))
	for _, arg := range args {
		if !jsonArgs {
			out = append(out, protocol.String(arg))
			continue
		}
		var raw any
		if err := json.Unmarshal([]byte(arg), &raw); err != nil {
			return nil, fmt.Errorf("argument %q is not valid JSON: %w", arg, err)
		}
		out = append(out, valueFromJSON(raw))
	}
	return out, nil
}

// valueFromJSON maps a decoded JSON value onto the protocol value model.
// Integral numbers inside the safe float range become ints.
func valueFromJSON(raw any) protocol.Value {
	switch x := raw.(type) {
	case bool:
		return protocol.Bool(x)
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return protocol.Int(int64(x))
		}
		return protocol.Float(x)
	case string:
		return protocol.String(x)
	case []any:
		items := make([]protocol.Value, len(x))
		for i, item := range x {
			items[i] = valueFromJSON(item)
		}
		return protocol.Array(items...)
	case map[string]any:
		fields := make(map[string]protocol.Value, len(x))
		for k, item := range x {
			fields[k] = valueFromJSON(item)
		}
		return protocol.Object(fields)
	default:
		return protocol.Null()
	}
}
