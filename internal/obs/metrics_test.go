package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/entities":                      "/v1/entities",
		"/v1/entities/admin":                "/v1/entities/admin",
		"/v1/entities/dao.guild":            "/v1/entities/:id",
		"/v1/entities/dao.guild/founders":   "/v1/entities/:id/founders",
		"/v1/entities/dao.guild/needs/design":                 "/v1/entities/:id/needs/:name",
		"/v1/entities/dao.guild/invites?x=1":                  "/v1/entities/:id/invites",
		"/v1/entities/dao.guild/contributions/alice":          "/v1/entities/:id/contributions/:id",
		"/v1/entities/dao.guild/contributions/alice/history":  "/v1/entities/:id/contributions/:id/history",
		"/v1/entities/dao.guild/contributions/finish":         "/v1/entities/:id/contributions/finish",
		"/v1/contributors/alice/contributions":                "/v1/contributors/:id/contributions",
		"/v1/moderator": "/v1/moderator",
		"/v1/events":    "/v1/events",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
