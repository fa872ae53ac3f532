package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/adsabs/harbour/internal/apperror"
	"github.com/adsabs/harbour/internal/classic"
	"github.com/adsabs/harbour/internal/config"
	"github.com/adsabs/harbour/internal/directory"
	"github.com/adsabs/harbour/internal/model"
	"github.com/adsabs/harbour/internal/repository"
)

// mockAccounts is an in-memory AccountRepository keyed by uid.
type mockAccounts struct {
	records      map[int64]*model.LinkedAccount
	classicCalls int
	twoOhCalls   int
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{records: make(map[int64]*model.LinkedAccount)}
}

func (m *mockAccounts) FindByUID(_ context.Context, uid int64) (*model.LinkedAccount, error) {
	a, ok := m.records[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (m *mockAccounts) UpsertClassic(_ context.Context, uid int64, email, mirror, cookie string) error {
	m.classicCalls++
	a, ok := m.records[uid]
	if !ok {
		a = &model.LinkedAccount{ID: "test", AbsoluteUID: uid}
		m.records[uid] = a
	}
	a.ClassicEmail = email
	a.ClassicMirror = mirror
	a.ClassicCookie = cookie
	return nil
}

func (m *mockAccounts) UpsertTwoPointOh(_ context.Context, uid int64, email string) error {
	m.twoOhCalls++
	a, ok := m.records[uid]
	if !ok {
		a = &model.LinkedAccount{ID: "test", AbsoluteUID: uid}
		m.records[uid] = a
	}
	a.TwoPointOhEmail = email
	return nil
}

// stubGateway returns canned responses and counts calls.
type stubGateway struct {
	loginResp  *classic.Response
	loginErr   error
	fetchResp  *classic.Response
	fetchErr   error
	loginCalls int
	fetchCalls int
	lastURL    string
}

func (s *stubGateway) Login(_ context.Context, loginURL, _, _ string) (*classic.Response, error) {
	s.loginCalls++
	s.lastURL = loginURL
	return s.loginResp, s.loginErr
}

func (s *stubGateway) Fetch(_ context.Context, rawURL string) (*classic.Response, error) {
	s.fetchCalls++
	s.lastURL = rawURL
	return s.fetchResp, s.fetchErr
}

// fakeBundles serves bundles from a map and records presign requests.
type fakeBundles struct {
	bundles     map[string]string
	presignErr  error
	presignKey  string
	presignKind string
}

func (f *fakeBundles) FetchBundle(_ context.Context, key string) (json.RawMessage, error) {
	b, ok := f.bundles[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return json.RawMessage(b), nil
}

func (f *fakeBundles) PresignBundle(bundleKey, export string, _ time.Duration) (string, error) {
	if f.presignErr != nil {
		return "", f.presignErr
	}
	f.presignKey = bundleKey
	f.presignKind = export
	return "https://s3.example.com/" + directory.ExportKey(bundleKey, export) + "?signed", nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.RequestTimeout = time.Second
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(accounts *mockAccounts, gw *stubGateway, dir *directory.Directory, bundles *fakeBundles) *Bridge {
	if dir == nil {
		dir = &directory.Directory{}
	}
	if bundles == nil {
		bundles = &fakeBundles{}
	}
	return NewBridge(accounts, gw, dir, bundles, testConfig(), testLogger())
}

func successLogin(email, cookie string) *classic.Response {
	return &classic.Response{
		StatusCode: 200,
		Body:       []byte(`{"message":"LOGGED_IN","loggedin":1,"email":"` + email + `","cookie":"` + cookie + `"}`),
	}
}

func TestLinkClassic_SuccessPersistsTrio(t *testing.T) {
	accounts := newMockAccounts()
	gw := &stubGateway{loginResp: successLogin("user@ads.com", "abc123")}
	b := newTestBridge(accounts, gw, nil, nil)

	link, err := b.LinkClassic(context.Background(), 42, "user@ads.com", "secret", "adsabs.harvard.edu")
	if err != nil {
		t.Fatalf("LinkClassic() error = %v", err)
	}
	if !link.Authed || link.Email != "user@ads.com" || link.Mirror != "adsabs.harvard.edu" {
		t.Errorf("link = %+v", link)
	}

	stored := accounts.records[42]
	if stored == nil {
		t.Fatal("no record persisted")
	}
	if stored.ClassicCookie != "abc123" {
		t.Errorf("ClassicCookie = %q, want abc123", stored.ClassicCookie)
	}
	if gw.lastURL != "http://adsabs.harvard.edu/cgi-bin/maint/manage_account/credentials" {
		t.Errorf("login URL = %q", gw.lastURL)
	}
}

func TestLinkClassic_RelinkIsIdempotent(t *testing.T) {
	accounts := newMockAccounts()
	gw := &stubGateway{loginResp: successLogin("user@ads.com", "abc123")}
	b := newTestBridge(accounts, gw, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := b.LinkClassic(context.Background(), 42, "user@ads.com", "secret", "adsabs.harvard.edu"); err != nil {
			t.Fatalf("LinkClassic() #%d error = %v", i+1, err)
		}
	}
	if len(accounts.records) != 1 {
		t.Errorf("records = %d, want 1", len(accounts.records))
	}
	if accounts.classicCalls != 2 {
		t.Errorf("classicCalls = %d, want 2", accounts.classicCalls)
	}
}

func TestLinkClassic_BadMirrorNeverReachesNetwork(t *testing.T) {
	accounts := newMockAccounts()
	gw := &stubGateway{}
	b := newTestBridge(accounts, gw, nil, nil)

	_, err := b.LinkClassic(context.Background(), 42, "user@ads.com", "secret", "evil.example.com")
	if !errors.Is(err, apperror.ErrBadRequest) {
		t.Fatalf("error = %v, want ErrBadRequest", err)
	}
	if gw.loginCalls != 0 {
		t.Errorf("loginCalls = %d, want 0", gw.loginCalls)
	}
}

func TestLinkClassic_MissingFields(t *testing.T) {
	b := newTestBridge(newMockAccounts(), &stubGateway{}, nil, nil)
	ctx := context.Background()

	cases := []struct{ email, password, mirror string }{
		{"", "secret", "adsabs.harvard.edu"},
		{"user@ads.com", "", "adsabs.harvard.edu"},
		{"user@ads.com", "secret", ""},
	}
	for _, tc := range cases {
		_, err := b.LinkClassic(ctx, 42, tc.email, tc.password, tc.mirror)
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) || appErr.Kind != apperror.KindMalformedRequest {
			t.Errorf("LinkClassic(%q,%q,%q) error = %v, want malformed_request", tc.email, tc.password, tc.mirror, err)
		}
	}
}

func TestLinkClassic_AuthFailuresDoNotPersist(t *testing.T) {
	cases := map[string]struct {
		resp     *classic.Response
		err      error
		sentinel error
	}{
		"wrong password": {
			resp:     &classic.Response{StatusCode: 404, Body: []byte(`{"message":"wrong password"}`)},
			sentinel: apperror.ErrAuthFailed,
		},
		"unknown account": {
			resp:     &classic.Response{StatusCode: 404, Body: []byte(`{"message":"ACCOUNT_NOTFOUND"}`)},
			sentinel: apperror.ErrAuthFailed,
		},
		"email mismatch": {
			resp:     successLogin("other@ads.com", "abc123"),
			sentinel: apperror.ErrAuthFailed,
		},
		"no cookie": {
			resp:     &classic.Response{StatusCode: 200, Body: []byte(`{"message":"LOGGED_IN","loggedin":1,"email":"user@ads.com"}`)},
			sentinel: apperror.ErrAuthFailed,
		},
		"upstream 500": {
			resp:     &classic.Response{StatusCode: 502, Body: []byte("Bad Gateway")},
			sentinel: apperror.ErrUpstream,
		},
		"timeout": {
			err:      classic.ErrTimeout,
			sentinel: apperror.ErrUpstreamTimeout,
		},
	}

	for name, tc := range cases {
		accounts := newMockAccounts()
		gw := &stubGateway{loginResp: tc.resp, loginErr: tc.err}
		b := newTestBridge(accounts, gw, nil, nil)

		_, err := b.LinkClassic(context.Background(), 42, "user@ads.com", "secret", "adsabs.harvard.edu")
		if !errors.Is(err, tc.sentinel) {
			t.Errorf("%s: error = %v, want %v", name, err, tc.sentinel)
		}
		if accounts.classicCalls != 0 {
			t.Errorf("%s: repository written on failed auth", name)
		}
	}
}

func TestLinkClassic_UpstreamErrorRetainsDiagnostics(t *testing.T) {
	gw := &stubGateway{loginResp: &classic.Response{StatusCode: 502, Body: []byte("Bad Gateway")}}
	b := newTestBridge(newMockAccounts(), gw, nil, nil)

	_, err := b.LinkClassic(context.Background(), 42, "user@ads.com", "secret", "adsabs.harvard.edu")
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want *AppError", err)
	}
	if appErr.UpstreamStatus != 502 || appErr.UpstreamBody != "Bad Gateway" {
		t.Errorf("diagnostics = %d/%q", appErr.UpstreamStatus, appErr.UpstreamBody)
	}
}

func TestLinkTwoPointOh_PersistsOnlyEmail(t *testing.T) {
	accounts := newMockAccounts()
	accounts.records[42] = &model.LinkedAccount{
		ID: "test", AbsoluteUID: 42,
		ClassicEmail: "user@ads.com", ClassicMirror: "adsabs.harvard.edu", ClassicCookie: "abc123",
	}
	gw := &stubGateway{loginResp: successLogin("user@ads20.org", "ignored")}
	b := newTestBridge(accounts, gw, nil, nil)

	link, err := b.LinkTwoPointOh(context.Background(), 42, "user@ads20.org", "secret")
	if err != nil {
		t.Fatalf("LinkTwoPointOh() error = %v", err)
	}
	if !link.Authed {
		t.Error("Authed = false")
	}

	stored := accounts.records[42]
	if stored.TwoPointOhEmail != "user@ads20.org" {
		t.Errorf("TwoPointOhEmail = %q", stored.TwoPointOhEmail)
	}
	if stored.ClassicCookie != "abc123" {
		t.Errorf("classic fields disturbed: cookie = %q", stored.ClassicCookie)
	}
}

func TestLinkTwoPointOh_CookielessSuccessStillLinks(t *testing.T) {
	// The 2.0 endpoint logs in without issuing a session token; no cookie is
	// stored for that system so its absence is not a failure.
	accounts := newMockAccounts()
	gw := &stubGateway{loginResp: &classic.Response{
		StatusCode: 200,
		Body:       []byte(`{"message":"LOGGED_IN","loggedin":1,"email":"user@ads20.org"}`),
	}}
	b := newTestBridge(accounts, gw, nil, nil)

	if _, err := b.LinkTwoPointOh(context.Background(), 42, "user@ads20.org", "secret"); err != nil {
		t.Fatalf("LinkTwoPointOh() error = %v", err)
	}
	if accounts.twoOhCalls != 1 {
		t.Errorf("twoOhCalls = %d, want 1", accounts.twoOhCalls)
	}
}

func TestClassicLibraries_ReshapesUpstreamBody(t *testing.T) {
	accounts := newMockAccounts()
	accounts.records[42] = &model.LinkedAccount{
		ID: "test", AbsoluteUID: 42,
		ClassicEmail: "user@ads.com", ClassicMirror: "adsabs.harvard.edu", ClassicCookie: "abc123",
	}
	gw := &stubGateway{fetchResp: &classic.Response{
		StatusCode: 200,
		Body: []byte(`{"libraries":[
			{"name":"reading list","desc":"papers to read","entries":[{"bibcode":"2019A&A...622A.193A"},{"bibcode":"2020ApJ...900L..21B"}]},
			{"name":"no description","entries":[]}
		]}`),
	}}
	b := newTestBridge(accounts, gw, nil, nil)

	got, err := b.ClassicLibraries(context.Background(), 42)
	if err != nil {
		t.Fatalf("ClassicLibraries() error = %v", err)
	}
	if len(got.Libraries) != 2 {
		t.Fatalf("libraries = %d, want 2", len(got.Libraries))
	}

	first := got.Libraries[0]
	if first.Name != "reading list" || first.Description != "papers to read" {
		t.Errorf("first library = %+v", first)
	}
	if len(first.Documents) != 2 || first.Documents[0] != "2019A&A...622A.193A" {
		t.Errorf("Documents = %v", first.Documents)
	}

	second := got.Libraries[1]
	if second.Description != "" {
		t.Errorf("Description = %q, want empty default", second.Description)
	}
	if second.Documents == nil {
		t.Error("Documents is nil, want empty slice")
	}

	wantURL := "http://adsabs.harvard.edu/cgi-bin/nph-abs_connect?library&cookie=abc123"
	if gw.lastURL != wantURL {
		t.Errorf("fetch URL = %q, want %q", gw.lastURL, wantURL)
	}
}

func TestClassicLibraries_WithoutLinkedAccount(t *testing.T) {
	gw := &stubGateway{}
	b := newTestBridge(newMockAccounts(), gw, nil, nil)

	_, err := b.ClassicLibraries(context.Background(), 42)
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindNoLinkedAccount {
		t.Fatalf("error = %v, want no_linked_account", err)
	}
	if gw.fetchCalls != 0 {
		t.Errorf("fetchCalls = %d, want 0", gw.fetchCalls)
	}
}

func TestClassicLibraries_UpstreamFailurePropagatesDetail(t *testing.T) {
	accounts := newMockAccounts()
	accounts.records[42] = &model.LinkedAccount{
		ID: "test", AbsoluteUID: 42,
		ClassicEmail: "user@ads.com", ClassicMirror: "adsabs.harvard.edu", ClassicCookie: "abc123",
	}
	gw := &stubGateway{fetchResp: &classic.Response{StatusCode: 503, Body: []byte("down")}}
	b := newTestBridge(accounts, gw, nil, nil)

	_, err := b.ClassicLibraries(context.Background(), 42)
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindUpstreamUnknown {
		t.Fatalf("error = %v, want upstream_unknown_error", err)
	}
	if appErr.UpstreamStatus != 503 || appErr.UpstreamBody != "down" {
		t.Errorf("diagnostics = %d/%q", appErr.UpstreamStatus, appErr.UpstreamBody)
	}
}

func TestClassicFeed_PassesBodyThrough(t *testing.T) {
	accounts := newMockAccounts()
	accounts.records[42] = &model.LinkedAccount{
		ID: "test", AbsoluteUID: 42,
		ClassicEmail: "user@ads.com", ClassicMirror: "ukads.nottingham.ac.uk", ClassicCookie: "abc123",
	}
	feed := `{"daily":[{"bibcode":"2026arXiv260101234X"}]}`
	gw := &stubGateway{fetchResp: &classic.Response{StatusCode: 200, Body: []byte(feed)}}
	b := newTestBridge(accounts, gw, nil, nil)

	got, err := b.ClassicFeed(context.Background(), 42)
	if err != nil {
		t.Fatalf("ClassicFeed() error = %v", err)
	}
	if string(got) != feed {
		t.Errorf("feed = %s, want verbatim passthrough", got)
	}

	// The feed always goes through the configured feed mirror, not the one the
	// account linked against.
	wantURL := "http://adsabs.harvard.edu/cgi-bin/nph-myads?user@ads.com"
	if gw.lastURL != wantURL {
		t.Errorf("feed URL = %q, want %q", gw.lastURL, wantURL)
	}
}

func linkedTwoPointOhAccounts() *mockAccounts {
	accounts := newMockAccounts()
	accounts.records[42] = &model.LinkedAccount{
		ID: "test", AbsoluteUID: 42, TwoPointOhEmail: "user@ads20.org",
	}
	return accounts
}

func loadedDirectory(t *testing.T, users map[string]string) *directory.Directory {
	t.Helper()
	dir := &directory.Directory{}
	dir.Replace(users)
	return dir
}

func TestTwoPointOhLibraries_ReturnsBundle(t *testing.T) {
	dir := loadedDirectory(t, map[string]string{"user@ads20.org": "bundles/user42.json"})
	bundles := &fakeBundles{bundles: map[string]string{
		"bundles/user42.json": `[{"name":"saved","documents":[]}]`,
	}}
	b := newTestBridge(linkedTwoPointOhAccounts(), &stubGateway{}, dir, bundles)

	got, err := b.TwoPointOhLibraries(context.Background(), 42)
	if err != nil {
		t.Fatalf("TwoPointOhLibraries() error = %v", err)
	}
	if string(got.Libraries) != `[{"name":"saved","documents":[]}]` {
		t.Errorf("Libraries = %s", got.Libraries)
	}
}

func TestTwoPointOhLibraries_DirectoryNotLoaded(t *testing.T) {
	b := newTestBridge(linkedTwoPointOhAccounts(), &stubGateway{}, &directory.Directory{}, &fakeBundles{})

	_, err := b.TwoPointOhLibraries(context.Background(), 42)
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindDirectoryUnavailable {
		t.Fatalf("error = %v, want directory_unavailable", err)
	}
}

func TestTwoPointOhLibraries_UserNotInDirectory(t *testing.T) {
	dir := loadedDirectory(t, map[string]string{"somebody@else.org": "bundles/other.json"})
	b := newTestBridge(linkedTwoPointOhAccounts(), &stubGateway{}, dir, &fakeBundles{})

	_, err := b.TwoPointOhLibraries(context.Background(), 42)
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindNoLibraries {
		t.Fatalf("error = %v, want no_libraries", err)
	}
}

func TestTwoPointOhLibraries_WithoutTwoPointOhLink(t *testing.T) {
	accounts := newMockAccounts()
	accounts.records[42] = &model.LinkedAccount{
		ID: "test", AbsoluteUID: 42,
		ClassicEmail: "user@ads.com", ClassicMirror: "adsabs.harvard.edu", ClassicCookie: "abc123",
	}
	dir := loadedDirectory(t, map[string]string{"user@ads20.org": "bundles/user42.json"})
	b := newTestBridge(accounts, &stubGateway{}, dir, &fakeBundles{})

	_, err := b.TwoPointOhLibraries(context.Background(), 42)
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindNoLinkedAccount {
		t.Fatalf("error = %v, want no_linked_account", err)
	}
}

func TestExportURL_SignsBundleKey(t *testing.T) {
	dir := loadedDirectory(t, map[string]string{"user@ads20.org": "bundles/user42.json"})
	bundles := &fakeBundles{}
	b := newTestBridge(linkedTwoPointOhAccounts(), &stubGateway{}, dir, bundles)

	url, err := b.ExportURL(context.Background(), 42, "zotero")
	if err != nil {
		t.Fatalf("ExportURL() error = %v", err)
	}
	if url == "" {
		t.Error("empty URL")
	}
	if bundles.presignKey != "bundles/user42.json" {
		t.Errorf("presignKey = %q", bundles.presignKey)
	}
	if bundles.presignKind != "zotero" {
		t.Errorf("presignKind = %q", bundles.presignKind)
	}
}

func TestExportURL_RejectsUnknownKindBeforeLookup(t *testing.T) {
	// The export allow-list is checked before any directory or store work.
	b := newTestBridge(newMockAccounts(), &stubGateway{}, &directory.Directory{}, &fakeBundles{})

	_, err := b.ExportURL(context.Background(), 42, "bibtex")
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || appErr.Kind != apperror.KindUnsupportedExportKind {
		t.Fatalf("error = %v, want unsupported_export_kind", err)
	}
}

func TestProfile_OmitsCookie(t *testing.T) {
	accounts := newMockAccounts()
	accounts.records[42] = &model.LinkedAccount{
		ID: "test", AbsoluteUID: 42,
		ClassicEmail: "user@ads.com", ClassicMirror: "adsabs.harvard.edu", ClassicCookie: "abc123",
		TwoPointOhEmail: "user@ads20.org",
	}
	b := newTestBridge(accounts, &stubGateway{}, nil, nil)

	profile, err := b.Profile(context.Background(), 42)
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.ClassicEmail != "user@ads.com" || profile.TwoPointOhEmail != "user@ads20.org" {
		t.Errorf("profile = %+v", profile)
	}

	out, err := json.Marshal(profile)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) == "" || json.Valid(out) == false {
		t.Fatalf("bad json: %s", out)
	}
	var asMap map[string]any
	json.Unmarshal(out, &asMap)
	for k := range asMap {
		if k == "classic_cookie" || k == "cookie" {
			t.Errorf("profile leaks session token under key %q", k)
		}
	}
}

func TestProfile_Unlinked(t *testing.T) {
	b := newTestBridge(newMockAccounts(), &stubGateway{}, nil, nil)

	_, err := b.Profile(context.Background(), 42)
	if !errors.Is(err, apperror.ErrBadRequest) {
		t.Fatalf("error = %v, want ErrBadRequest", err)
	}
}

func TestMirrors_ReturnsAllowList(t *testing.T) {
	b := newTestBridge(newMockAccounts(), &stubGateway{}, nil, nil)

	mirrors := b.Mirrors()
	if len(mirrors) == 0 {
		t.Fatal("empty mirror list")
	}
	found := false
	for _, m := range mirrors {
		if m == "adsabs.harvard.edu" {
			found = true
		}
	}
	if !found {
		t.Error("adsabs.harvard.edu missing from mirror list")
	}
}
