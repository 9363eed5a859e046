package parser

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/clbanning/mxj/v2"
)

// decodeJSON turns a JSON object into a generic map. An anonymous top-level
// array is wrapped by mxj under the "object" key.
func decodeJSON(payload []byte) (map[string]interface{}, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	m, err := mxj.NewMapJson(payload)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// listValue returns v as a list; a lone object is treated as a one-element
// list, anything else as empty.
func listValue(v interface{}) []interface{} {
	switch l := v.(type) {
	case []interface{}:
		return l
	case map[string]interface{}:
		return []interface{}{l}
	default:
		return nil
	}
}

// stringValue accepts strings and JSON numbers, so numeric ids survive.
func stringValue(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	default:
		return "", false
	}
}

func intValue(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
