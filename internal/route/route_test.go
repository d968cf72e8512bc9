package route

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: "/"},
		{in: "/", want: "/"},
		{in: "/api", want: "/"},
		{in: "/api/", want: "/"},
		{in: "/webhook", want: "/webhook"},
		{in: "/webhook/", want: "/webhook"},
		{in: "/api/webhook", want: "/webhook"},
		{in: "/api/jobs/status/", want: "/jobs/status"},
		{in: "/apiary", want: "/apiary"},
		{in: "ping", want: "/ping"},
		{in: "/custom//", want: "/custom"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsPublic(t *testing.T) {
	t.Parallel()

	public := []string{"/telegram/webhook", "/api/telegram/webhook", "/github/webhook/"}
	for _, p := range public {
		if !IsPublic(p) {
			t.Fatalf("expected %s to be public", p)
		}
	}
	private := []string{"/webhook", "/telegram/register", "/ping", "/jobs/status", "/telegram/webhook/extra"}
	for _, p := range private {
		if IsPublic(p) {
			t.Fatalf("expected %s to require auth", p)
		}
	}
}
