package dto

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestCategoryResponseUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`{"categories":["Music","Arts"]}`, []string{"Music", "Arts"}},
		{`{"categories":"Music, Festival"}`, []string{"Music", "Festival"}},
		{`{"categories":""}`, nil},
	}
	for _, tt := range tests {
		var r CategoryResponseSchema
		if err := json.Unmarshal([]byte(tt.in), &r); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if !reflect.DeepEqual([]string(r.Categories), tt.want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, r.Categories, tt.want)
		}
	}

	var r CategoryResponseSchema
	if err := json.Unmarshal([]byte(`{"categories":42}`), &r); err == nil {
		t.Error("number accepted as categories")
	}
}

func TestAllowed(t *testing.T) {
	r := CategoryResponseSchema{Categories: FlexibleStringSlice{"music", " Sport ", "Underwater Basket Weaving"}}
	got := r.Allowed([]string{"Music", "Sport", "Arts"})
	if !reflect.DeepEqual(got, []string{"Music", "Sport"}) {
		t.Fatalf("Allowed = %v", got)
	}
}
