// Package kvtext reads and writes the single-quoted key/value text used for
// nested values embedded in CSV cells, e.g.
//
//	[{'running_balance': 2500, 'reason': 'usage'}]
//
// The format is JSON with single quotes in place of double quotes. A string
// that itself contains a single quote is written in double quotes instead,
// and such text does not survive ToJSON.
package kvtext

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/dvloznov/billing-reporter/internal/flatten"
)

// ToJSON rewrites every single quote to a double quote. The result is
// checked for validity; text that still is not JSON is returned with an
// error so that callers can null the cell.
func ToJSON(text string) (string, error) {
	repaired := strings.ReplaceAll(text, "'", `"`)
	if !gojson.Valid([]byte(repaired)) {
		return "", fmt.Errorf("ToJSON: not valid after quote repair: %q", truncate(text, 64))
	}
	return repaired, nil
}

// Parse repairs text and decodes it into an ordered document.
func Parse(text string) (any, error) {
	repaired, err := ToJSON(text)
	if err != nil {
		return nil, err
	}
	return flatten.Decode([]byte(repaired))
}

// Encode renders a document (as produced by flatten.Decode) in single-quoted
// form.
func Encode(v any) (string, error) {
	var b strings.Builder
	if err := encode(&b, v); err != nil {
		return "", fmt.Errorf("Encode: %w", err)
	}
	return b.String(), nil
}

func encode(b *strings.Builder, v any) error {
	switch node := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(node))
	case json.Number:
		b.WriteString(node.String())
	case string:
		return encodeString(b, node)
	case []any:
		b.WriteByte('[')
		for i, item := range node {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := encode(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case *flatten.Object:
		b.WriteByte('{')
		for i, k := range node.Keys() {
			if i > 0 {
				b.WriteString(", ")
			}
			if err := encodeString(b, k); err != nil {
				return err
			}
			b.WriteString(": ")
			val, _ := node.Get(k)
			if err := encode(b, val); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
	return nil
}

func encodeString(b *strings.Builder, s string) error {
	quoted, err := gojson.Marshal(s)
	if err != nil {
		return err
	}
	inner := string(quoted[1 : len(quoted)-1])

	switch {
	case !strings.Contains(s, "'"):
		b.WriteByte('\'')
		b.WriteString(inner)
		b.WriteByte('\'')
	case !strings.Contains(s, `"`):
		b.Write(quoted)
	default:
		b.WriteByte('\'')
		b.WriteString(strings.ReplaceAll(inner, "'", `\'`))
		b.WriteByte('\'')
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
