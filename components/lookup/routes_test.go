package lookup

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formstate/pkg/model"
)

func TestMountPath(t *testing.T) {
	cases := []struct {
		base, route, want string
	}{
		{"/admin", "/api/options", "/admin/api/options"},
		{"admin", "/api/options", "/admin/api/options"},
		{"/admin/", "api/cities", "/admin/api/cities"},
		{"", "", "/"},
		{"/", "/x", "/x"},
	}
	for _, tc := range cases {
		if got := MountPath(tc.base, tc.route); got != tc.want {
			t.Fatalf("MountPath(%q, %q) = %q, want %q", tc.base, tc.route, got, tc.want)
		}
	}
}

func TestRegisterRoutes(t *testing.T) {
	mux := http.NewServeMux()
	c := New(WithEntries(EntriesFromValues("EUR", "USD")), WithRoute("currencies"))
	pattern, err := c.RegisterRoutes(mux, "/api")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if pattern != "/api/currencies" {
		t.Fatalf("pattern = %q", pattern)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, pattern+"?q=eu&limit=1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"EUR"`) {
		t.Fatalf("GET %s: %d %s", pattern, rec.Code, rec.Body.String())
	}

	if _, err := c.RegisterRoutes(nil, ""); err == nil {
		t.Fatalf("expected error for nil mux")
	}
}

func TestComponentRemoteConfig(t *testing.T) {
	c := New(WithFilters("country"), WithShape(Shape{ResultsPath: "data", ValueField: "code"}))
	want := model.RemoteConfig{
		URL:           "http://lookup/api/cities",
		SearchParam:   "q",
		ResultsPath:   "data",
		ValueField:    "code",
		LabelField:    "label",
		DynamicParams: map[string]string{"country": "{{ country }}"},
		RefreshOn:     []string{"country"},
	}
	if diff := cmp.Diff(want, c.RemoteConfig("http://lookup/api/cities")); diff != "" {
		t.Fatalf("remote config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEntries(t *testing.T) {
	src := strings.NewReader(`
# cities
OPO|Porto|country=PT
MAD | Madrid | country=ES, capital=yes
OPO|Duplicate
UTC
|empty value
`)
	got, err := LoadEntries(src)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []Entry{
		{Value: "MAD", Label: "Madrid", Attrs: map[string]string{"country": "ES", "capital": "yes"}},
		{Value: "OPO", Label: "Porto", Attrs: map[string]string{"country": "PT"}},
		{Value: "UTC", Label: "UTC"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("entries mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadEntries(strings.NewReader("A|a|broken")); err == nil {
		t.Fatalf("expected an error for a malformed attribute")
	}
}
