package shell

import "testing"

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "''"},
		{"/data/run1/job.sh", "/data/run1/job.sh"},
		{"--qos=high", "--qos=high"},
		{"/data/run 42", "'/data/run 42'"},
		{"it's", `'it'\''s'`},
		{"a;rm -rf /", "'a;rm -rf /'"},
		{"$HOME", "'$HOME'"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJoin(t *testing.T) {
	got := Join([]string{"fastqc_0.11.5", "my module"})
	if got != "fastqc_0.11.5 'my module'" {
		t.Errorf("Join() = %q", got)
	}
}
