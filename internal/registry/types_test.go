package registry

import (
	"reflect"
	"testing"
)

func TestIsFounding(t *testing.T) {
	cases := []struct {
		ctype ContributionType
		want  bool
	}{
		{TypeFounding, true},
		{OtherType("Founding"), true},
		{OtherType("founding"), false},
		{TypeDevelopment, false},
		{OtherType("Mentoring"), false},
	}
	for _, tc := range cases {
		if got := tc.ctype.IsFounding(); got != tc.want {
			t.Errorf("IsFounding(%q) = %v, want %v", tc.ctype, got, tc.want)
		}
	}
}

func TestNormalizePermissions(t *testing.T) {
	if got := NormalizePermissions(nil); got != nil {
		t.Fatalf("nil must stay nil, got %v", got)
	}
	got := NormalizePermissions([]Permission{"admin", " admin ", "", "viewer", "admin"})
	want := Permissions{"admin", "viewer"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got := NormalizePermissions([]Permission{}); len(got) != 0 || got == nil {
		t.Fatalf("empty slice must stay empty non-nil, got %#v", got)
	}
}

func TestWithDetailArchivesVerbatim(t *testing.T) {
	end := uint64(9)
	row := Contribution{
		Permissions: Permissions{PermissionAdmin},
		Current: ContributionDetail{
			Description:      "first",
			ContributionType: TypeDevelopment,
			StartDate:        1,
			EndDate:          &end,
		},
	}

	next := row.withDetail(ContributionDetail{Description: "second", StartDate: 10}, nil)
	if len(next.History) != 1 {
		t.Fatalf("history length: %d", len(next.History))
	}
	if !reflect.DeepEqual(next.History[0], row.Current) {
		t.Fatalf("archived detail changed: %+v", next.History[0])
	}
	if next.Current.Description != "second" {
		t.Fatalf("current not replaced: %+v", next.Current)
	}
	if !reflect.DeepEqual(next.Permissions, row.Permissions) {
		t.Fatalf("nil perms must keep the set: %v", next.Permissions)
	}

	replaced := next.withDetail(ContributionDetail{Description: "third"}, Permissions{})
	if len(replaced.History) != 2 || replaced.History[1].Description != "second" {
		t.Fatalf("history order: %+v", replaced.History)
	}
	if len(replaced.Permissions) != 0 {
		t.Fatalf("non-nil perms must replace: %v", replaced.Permissions)
	}
}
