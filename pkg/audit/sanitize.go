package audit

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/meridian-labs/solagent/internal/core/domain"
	"github.com/meridian-labs/solagent/pkg/logging"
)

// keyMaterialPattern matches any key-adjacent substring regardless of casing
// or underscore placement. Used for the post-serialization assertion.
var keyMaterialPattern = regexp.MustCompile(`(?i)(secret_?key|private_?key|key_?pair|seed|mnemonic|key_?material)`)

// Sanitize returns a deep copy of details with every field whose name matches
// the key-adjacent set removed. Applies to object fields and to object
// elements inside arrays. The input tree is never mutated.
func Sanitize(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for name, value := range details {
		if logging.IsKeyAdjacent(name) {
			continue
		}
		out[name] = sanitizeValue(value)
	}
	return out
}

func sanitizeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return Sanitize(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, elem := range v {
			out[i] = sanitizeValue(elem)
		}
		return out
	default:
		return value
	}
}

// AssertNoKeyMaterial verifies that a serialized details blob contains no
// key-adjacent substring. It backs up Sanitize: a hit here means the
// sanitizer missed something and the write must not happen.
func AssertNoKeyMaterial(serialized string) error {
	if match := keyMaterialPattern.FindString(serialized); match != "" {
		return domain.Errorf(domain.CodeInvalidConfig, "details blob contains key-adjacent content %q", strings.ToLower(match))
	}
	return nil
}

// sanitizeParams normalizes values that do not survive JSON serialization:
// big integer types become strings, functions are dropped.
func sanitizeParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for name, value := range params {
		if value != nil && reflect.TypeOf(value).Kind() == reflect.Func {
			continue
		}
		switch v := value.(type) {
		case uint64:
			out[name] = fmt.Sprintf("%d", v)
		case int64:
			out[name] = fmt.Sprintf("%d", v)
		default:
			out[name] = value
		}
	}
	return out
}
