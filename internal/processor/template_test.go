package processor

import "testing"

func TestResolveTemplate(t *testing.T) {
	fields := map[string]string{"id": "a", "text": "hello", "tag": "x"}

	cases := []struct {
		template string
		want     string
	}{
		{"${id}-${tag}", "a-x"},
		{"${id}", "a"},
		{"prefix:${text}", "prefix:hello"},
		{"${missing}", "${missing}"},
		{"${id}-${missing}", "a-${missing}"},
		{"no placeholders", "no placeholders"},
		{"", ""},
		{"${}", "${}"},
	}
	for _, c := range cases {
		if got := ResolveTemplate(c.template, fields); got != c.want {
			t.Errorf("ResolveTemplate(%q) = %q, want %q", c.template, got, c.want)
		}
	}
}

func TestResolveTemplateEmptyValue(t *testing.T) {
	got := ResolveTemplate("${id}", map[string]string{"id": ""})
	if got != "" {
		t.Errorf("present-but-empty field should substitute empty, got %q", got)
	}
}

func TestResolveField(t *testing.T) {
	fields := map[string]string{"id": "a", "title": "hello"}

	if got := resolveField("${id}:${title}", "id", fields); got != "a:hello" {
		t.Errorf("template should win over column, got %q", got)
	}
	if got := resolveField("", "title", fields); got != "hello" {
		t.Errorf("column lookup = %q", got)
	}
	if got := resolveField("", "", fields); got != "" {
		t.Errorf("no selection should yield empty, got %q", got)
	}
}
