package config

import "testing"

func TestAllowedMirror(t *testing.T) {
	cfg := Default()

	if !cfg.AllowedMirror("adsabs.harvard.edu") {
		t.Error("AllowedMirror(adsabs.harvard.edu) = false")
	}
	if cfg.AllowedMirror("evil.example.com") {
		t.Error("AllowedMirror(evil.example.com) = true")
	}
	if cfg.AllowedMirror("") {
		t.Error("AllowedMirror(\"\") = true")
	}
}

func TestAllowedExport(t *testing.T) {
	cfg := Default()

	for _, kind := range []string{"zotero", "mendeley", "papers"} {
		if !cfg.AllowedExport(kind) {
			t.Errorf("AllowedExport(%s) = false", kind)
		}
	}
	if cfg.AllowedExport("bibtex") {
		t.Error("AllowedExport(bibtex) = true")
	}
}

func TestExpandURL(t *testing.T) {
	got := ExpandURL("http://{mirror}/cgi-bin/nph-abs_connect?library&cookie={cookie}", map[string]string{
		"mirror": "adsabs.harvard.edu",
		"cookie": "abc123",
	})
	want := "http://adsabs.harvard.edu/cgi-bin/nph-abs_connect?library&cookie=abc123"
	if got != want {
		t.Errorf("ExpandURL() = %q, want %q", got, want)
	}
}

func TestExpandURL_UnusedPlaceholdersMayBeOmitted(t *testing.T) {
	got := ExpandURL("http://{mirror}/cgi-bin/maint/manage_account/credentials", map[string]string{
		"mirror": "ads.nao.ac.jp",
	})
	want := "http://ads.nao.ac.jp/cgi-bin/maint/manage_account/credentials"
	if got != want {
		t.Errorf("ExpandURL() = %q, want %q", got, want)
	}
}
