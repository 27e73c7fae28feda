package types

import (
	"encoding/json"
	"testing"
)

func TestNumber_Float64(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"0.5", 0.5, false},
		{" 1 ", 1, false},
		{"45%", 0.45, false},
		{"100 %", 1, false},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Number(tt.in).Float64()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Float64() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Float64() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	var v struct {
		A *Number `json:"a"`
		B *Number `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":0.25,"b":"75"}`), &v); err != nil {
		t.Fatalf("Unmarshal error = %v", err)
	}

	a, err := v.A.Float64()
	if err != nil || a != 0.25 {
		t.Errorf("a = %v, %v", a, err)
	}
	b, err := v.B.Float64()
	if err != nil || b != 75 {
		t.Errorf("b = %v, %v", b, err)
	}
}
