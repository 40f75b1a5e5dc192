package dto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleStringSlice accepts either a JSON string or an array of strings.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = arr
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = nil
			return nil
		}
		// "Music, Arts" is a common single-string answer.
		parts := strings.Split(s, ",")
		res := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				res = append(res, p)
			}
		}
		*f = res
		return nil
	}

	return fmt.Errorf("categories: expected string or []string, got %s", string(data))
}

// CategoryResponseSchema is the structured answer requested from the model.
type CategoryResponseSchema struct {
	Categories FlexibleStringSlice `json:"categories" description:"One to three categories from the allowed list that best describe the event"`
}

// Allowed keeps only categories from allowed, in their canonical spelling.
func (r CategoryResponseSchema) Allowed(allowed []string) []string {
	canon := make(map[string]string, len(allowed))
	for _, a := range allowed {
		canon[strings.ToLower(a)] = a
	}
	res := make([]string, 0, len(r.Categories))
	for _, c := range r.Categories {
		if a, ok := canon[strings.ToLower(strings.TrimSpace(c))]; ok {
			res = append(res, a)
		}
	}
	return res
}
