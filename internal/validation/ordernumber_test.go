package validation

import "testing"

func TestIsValidOrderNumber(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{
			name:   "padded number",
			number: "ORD-00042",
			valid:  true,
		},
		{
			name:   "number beyond padding floor",
			number: "ORD-123456",
			valid:  true,
		},
		{
			name:   "missing prefix",
			number: "00042",
			valid:  false,
		},
		{
			name:   "too few digits",
			number: "ORD-42",
			valid:  false,
		},
		{
			name:   "contains letters",
			number: "ORD-00a42",
			valid:  false,
		},
		{
			name:   "non-ascii digits",
			number: "ORD-٠٠٠٠١",
			valid:  false,
		},
		{
			name:   "empty string",
			number: "",
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidOrderNumber(tt.number)
			if got != tt.valid {
				t.Fatalf("IsValidOrderNumber(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}
