// Package config holds the immutable service configuration.
//
// The Config struct is built once in main and passed by reference into every
// component; no core code reads environment variables or globals.
package config

import (
	"slices"
	"strings"
	"time"
)

// Config carries every tunable the bridge needs. URL templates use the
// {mirror}, {cookie} and {email} placeholders expanded by ExpandURL.
type Config struct {
	Port   int
	DBPath string

	// Legacy classic endpoints.
	ClassicLoginURL     string
	ClassicLibrariesURL string
	ClassicFeedURL      string

	// Mirrors the caller may authenticate against. Anything off this list is
	// rejected before a single byte leaves the process.
	MirrorList []string

	// The single mirror that serves ADS 2.0 authentication.
	TwoPointOhMirror string

	// Mirror used for the myADS feed passthrough.
	FeedMirror string

	// Export bundle formats we are willing to presign.
	ExportTypes []string

	// Outbound request budget for the legacy system, which is known to hang.
	RequestTimeout time.Duration

	// S3 location of the ADS 2.0 directory snapshot and library bundles.
	S3Bucket     string
	S3Region     string
	DirectoryKey string

	// Lifetime of presigned export URLs.
	PresignTTL time.Duration
}

// Default returns the production configuration. main applies env overrides on
// top of this; tests override fields directly.
func Default() *Config {
	return &Config{
		Port:                8080,
		DBPath:              "data/harbour.db",
		ClassicLoginURL:     "http://{mirror}/cgi-bin/maint/manage_account/credentials",
		ClassicLibrariesURL: "http://{mirror}/cgi-bin/nph-abs_connect?library&cookie={cookie}",
		ClassicFeedURL:      "http://{mirror}/cgi-bin/nph-myads?{email}",
		MirrorList: []string{
			"astrobib.u-strasbg.fr",
			"ads.nao.ac.jp",
			"ads.astro.puc.cl",
			"esoads.eso.org",
			"ukads.nottingham.ac.uk",
			"ads.iucaa.ernet.in",
			"ads.inasan.ru",
			"ads.bao.ac.cn",
			"ads.mao.kiev.ua",
			"ads.ari.uni-heidelberg.de",
			"ads.arsip.lipi.go.id",
			"ads.on.br",
			"saaoads.chpc.ac.za",
			"adsabs.harvard.edu",
		},
		TwoPointOhMirror: "adsabs.harvard.edu",
		FeedMirror:       "adsabs.harvard.edu",
		ExportTypes:      []string{"zotero", "mendeley", "papers"},
		RequestTimeout:   30 * time.Second,
		S3Bucket:         "adsabs-mongogut",
		S3Region:         "us-east-1",
		DirectoryKey:     "users.json",
		PresignTTL:       30 * time.Minute,
	}
}

// AllowedMirror reports whether mirror is on the allow-list.
func (c *Config) AllowedMirror(mirror string) bool {
	return slices.Contains(c.MirrorList, mirror)
}

// AllowedExport reports whether the export type is supported.
func (c *Config) AllowedExport(kind string) bool {
	return slices.Contains(c.ExportTypes, kind)
}

// ExpandURL fills the {mirror}, {cookie} and {email} placeholders of a
// configured URL template. Unused placeholders may be left out of vals.
func ExpandURL(template string, vals map[string]string) string {
	pairs := make([]string, 0, len(vals)*2)
	for k, v := range vals {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
