package qdrant

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/kirillkom/company-rag/internal/infrastructure/resilience"
)

func mustMatch(fields map[string]string) map[string]any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	must := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		must = append(must, map[string]any{
			"key":   k,
			"match": map[string]any{"value": fields[k]},
		})
	}
	return map[string]any{"must": must}
}

func asStatus(err error, target **resilience.HTTPStatusError) bool {
	return errors.As(err, target)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
