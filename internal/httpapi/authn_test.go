package httpapi

import (
	"testing"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "plain", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "padded", header: "  Bearer   tok  ", want: "tok"},
		{name: "empty", header: "", wantErr: true},
		{name: "wrong scheme", header: "Basic abc", wantErr: true},
		{name: "scheme only", header: "Bearer ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractBearerToken(tc.header)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIsPublicPath(t *testing.T) {
	for _, p := range []string{"/healthz", "/readyz", "/metrics", "/v1/info", "/v1/auth/token", "/"} {
		if !isPublicPath(p) {
			t.Fatalf("expected %s public", p)
		}
	}
	for _, p := range []string{"/v1/entities", "/v1/moderator", "/v1/events", "/v1/entities/x/claim"} {
		if isPublicPath(p) {
			t.Fatalf("expected %s protected", p)
		}
	}
}
