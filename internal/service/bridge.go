// Package service contains the session bridge: the orchestrator that drives
// authentication against the legacy systems, persists the resulting link
// state, and serves the authorized follow-up fetches.
//
// The bridge validates input, calls the external session client, classifies
// the response, and only on a clean success touches the store. Every failure
// maps to exactly one apperror kind; an authentication failure never creates
// or modifies a stored record.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/adsabs/harbour/internal/apperror"
	"github.com/adsabs/harbour/internal/classic"
	"github.com/adsabs/harbour/internal/config"
	"github.com/adsabs/harbour/internal/directory"
	"github.com/adsabs/harbour/internal/model"
	"github.com/adsabs/harbour/internal/repository"
)

// ClassicGateway issues the outbound legacy calls. *classic.Client is the
// production implementation; tests inject stubs.
type ClassicGateway interface {
	Login(ctx context.Context, loginURL, email, password string) (*classic.Response, error)
	Fetch(ctx context.Context, rawURL string) (*classic.Response, error)
}

// BundleStore reads ADS 2.0 library bundles and signs export download URLs.
// *directory.S3Store is the production implementation.
type BundleStore interface {
	FetchBundle(ctx context.Context, key string) (json.RawMessage, error)
	PresignBundle(bundleKey, export string, ttl time.Duration) (string, error)
}

var _ ClassicGateway = (*classic.Client)(nil)
var _ BundleStore = (*directory.S3Store)(nil)

// Bridge ties the gateway, interpreter, store and directory together.
type Bridge struct {
	accounts repository.AccountRepository
	gateway  ClassicGateway
	dir      *directory.Directory
	bundles  BundleStore
	cfg      *config.Config
	logger   *slog.Logger
}

// NewBridge creates a Bridge. All collaborators are injected.
func NewBridge(
	accounts repository.AccountRepository,
	gateway ClassicGateway,
	dir *directory.Directory,
	bundles BundleStore,
	cfg *config.Config,
	logger *slog.Logger,
) *Bridge {
	return &Bridge{
		accounts: accounts,
		gateway:  gateway,
		dir:      dir,
		bundles:  bundles,
		cfg:      cfg,
		logger:   logger,
	}
}

// ClassicLink is the success payload of a classic authentication.
type ClassicLink struct {
	Email  string `json:"classic_email"`
	Mirror string `json:"classic_mirror"`
	Authed bool   `json:"classic_authed"`
}

// TwoPointOhLink is the success payload of an ADS 2.0 authentication.
type TwoPointOhLink struct {
	Email  string `json:"twopointoh_email"`
	Authed bool   `json:"twopointoh_authed"`
}

// Library is the stable reshaped form of one classic library.
type Library struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Documents   []string `json:"documents"`
}

// LibraryList wraps the reshaped classic libraries.
type LibraryList struct {
	Libraries []Library `json:"libraries"`
}

// TwoPointOhLibraries wraps a raw 2.0 bundle; the bundle content is forwarded
// verbatim.
type TwoPointOhLibrariesPayload struct {
	Libraries json.RawMessage `json:"libraries"`
}

// Profile is the stored view returned by the /user endpoint. The session
// cookie is deliberately absent.
type Profile struct {
	ClassicEmail    string `json:"classic_email"`
	ClassicMirror   string `json:"classic_mirror"`
	TwoPointOhEmail string `json:"twopointoh_email"`
}

// LinkClassic authenticates uid's classic credentials against the chosen
// mirror and, on success, persists the email/mirror/cookie trio.
func (b *Bridge) LinkClassic(ctx context.Context, uid int64, email, password, mirror string) (*ClassicLink, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.MalformedRequest("classic_email")
	}
	if password == "" {
		return nil, apperror.MalformedRequest("classic_password")
	}
	if mirror == "" {
		return nil, apperror.MalformedRequest("classic_mirror")
	}
	// Mirror allow-list first: the service must not be usable as a relay to
	// arbitrary hosts, so this check precedes any network activity.
	if !b.cfg.AllowedMirror(mirror) {
		b.logger.Warn("rejected mirror not on allow-list",
			slog.String("email", email),
			slog.String("mirror", mirror),
		)
		return nil, apperror.BadMirror(mirror)
	}

	b.logger.Info("authenticating against classic mirror",
		slog.String("email", email),
		slog.String("mirror", mirror),
	)

	cls, err := b.login(ctx, mirror, email, password)
	if err != nil {
		return nil, err
	}
	if cls.Outcome != classic.OutcomeSuccess {
		b.logger.Warn("classic authentication failed",
			slog.String("email", email),
			slog.String("mirror", mirror),
		)
		return nil, outcomeError(cls)
	}

	if err := b.accounts.UpsertClassic(ctx, uid, email, mirror, cls.Cookie); err != nil {
		return nil, fmt.Errorf("storing classic link for uid %d: %w", uid, err)
	}

	b.logger.Info("classic account linked",
		slog.Int64("uid", uid),
		slog.String("email", email),
		slog.String("mirror", mirror),
		slog.String("cookie", maskToken(cls.Cookie)),
	)

	return &ClassicLink{Email: cls.Email, Mirror: mirror, Authed: true}, nil
}

// LinkTwoPointOh authenticates uid's ADS 2.0 credentials against the fixed
// 2.0 mirror and, on success, persists only the 2.0 email. No session token
// exists for this system.
func (b *Bridge) LinkTwoPointOh(ctx context.Context, uid int64, email, password string) (*TwoPointOhLink, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.MalformedRequest("twopointoh_email")
	}
	if password == "" {
		return nil, apperror.MalformedRequest("twopointoh_password")
	}

	b.logger.Info("authenticating ADS 2.0 account", slog.String("email", email))

	cls, err := b.login(ctx, b.cfg.TwoPointOhMirror, email, password)
	if err != nil {
		return nil, err
	}
	if cls.Outcome != classic.OutcomeSuccess && cls.Outcome != classic.OutcomeNoSession {
		b.logger.Warn("ADS 2.0 authentication failed", slog.String("email", email))
		return nil, outcomeError(cls)
	}

	if err := b.accounts.UpsertTwoPointOh(ctx, uid, email); err != nil {
		return nil, fmt.Errorf("storing twopointoh link for uid %d: %w", uid, err)
	}

	b.logger.Info("ADS 2.0 account linked",
		slog.Int64("uid", uid),
		slog.String("email", email),
	)

	return &TwoPointOhLink{Email: cls.Email, Authed: true}, nil
}

// ClassicLibraries fetches uid's classic libraries via the stored mirror and
// cookie and reshapes them into the stable contract.
func (b *Bridge) ClassicLibraries(ctx context.Context, uid int64) (*LibraryList, error) {
	account, err := b.classicAccount(ctx, uid)
	if err != nil {
		return nil, err
	}

	url := config.ExpandURL(b.cfg.ClassicLibrariesURL, map[string]string{
		"mirror": account.ClassicMirror,
		"cookie": account.ClassicCookie,
	})
	resp, err := b.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, apperror.UpstreamUnknown(resp.StatusCode, string(resp.Body))
	}

	libraries, err := reshapeLibraries(resp.Body)
	if err != nil {
		b.logger.Warn("classic libraries response did not parse",
			slog.Int64("uid", uid),
			slog.String("error", err.Error()),
		)
		return nil, apperror.UpstreamUnknown(resp.StatusCode, string(resp.Body))
	}
	return libraries, nil
}

// ClassicFeed forwards uid's myADS feed from the configured feed mirror,
// addressed by the stored classic email.
func (b *Bridge) ClassicFeed(ctx context.Context, uid int64) (json.RawMessage, error) {
	account, err := b.classicAccount(ctx, uid)
	if err != nil {
		return nil, err
	}

	url := config.ExpandURL(b.cfg.ClassicFeedURL, map[string]string{
		"mirror": b.cfg.FeedMirror,
		"email":  account.ClassicEmail,
	})
	resp, err := b.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, apperror.UpstreamUnknown(resp.StatusCode, string(resp.Body))
	}
	return json.RawMessage(resp.Body), nil
}

// TwoPointOhLibraries returns the raw bundle content for uid's 2.0 account.
func (b *Bridge) TwoPointOhLibraries(ctx context.Context, uid int64) (*TwoPointOhLibrariesPayload, error) {
	bundleKey, err := b.bundleKey(ctx, uid)
	if err != nil {
		return nil, err
	}

	bundle, err := b.bundles.FetchBundle(ctx, bundleKey)
	if err != nil {
		b.logger.Error("fetching library bundle failed",
			slog.Int64("uid", uid),
			slog.String("key", bundleKey),
			slog.String("error", err.Error()),
		)
		return nil, apperror.DirectoryUnavailable()
	}
	return &TwoPointOhLibrariesPayload{Libraries: bundle}, nil
}

// ExportURL produces a time-bounded signed URL for uid's export archive in the
// requested format.
func (b *Bridge) ExportURL(ctx context.Context, uid int64, export string) (string, error) {
	if !b.cfg.AllowedExport(export) {
		return "", apperror.UnsupportedExportKind(export)
	}

	bundleKey, err := b.bundleKey(ctx, uid)
	if err != nil {
		return "", err
	}

	url, err := b.bundles.PresignBundle(bundleKey, export, b.cfg.PresignTTL)
	if err != nil {
		b.logger.Error("presigning export bundle failed",
			slog.Int64("uid", uid),
			slog.String("key", bundleKey),
			slog.String("error", err.Error()),
		)
		return "", apperror.DirectoryUnavailable()
	}
	return url, nil
}

// Profile returns the stored link state for uid.
func (b *Bridge) Profile(ctx context.Context, uid int64) (*Profile, error) {
	account, err := b.accounts.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NoLinkedAccount("ADS Classic")
		}
		return nil, fmt.Errorf("looking up account for uid %d: %w", uid, err)
	}
	return &Profile{
		ClassicEmail:    account.ClassicEmail,
		ClassicMirror:   account.ClassicMirror,
		TwoPointOhEmail: account.TwoPointOhEmail,
	}, nil
}

// Mirrors returns the allow-listed classic mirrors.
func (b *Bridge) Mirrors() []string {
	return b.cfg.MirrorList
}

// login performs one authentication exchange and classifies the result.
func (b *Bridge) login(ctx context.Context, mirror, email, password string) (classic.Classification, error) {
	url := config.ExpandURL(b.cfg.ClassicLoginURL, map[string]string{"mirror": mirror})
	resp, err := b.gateway.Login(ctx, url, email, password)
	if err != nil {
		if errors.Is(err, classic.ErrTimeout) {
			b.logger.Warn("classic login timed out", slog.String("mirror", mirror))
			return classic.Classification{}, apperror.UpstreamTimeout()
		}
		return classic.Classification{}, fmt.Errorf("classic login: %w", err)
	}
	return classic.Interpret(resp, email), nil
}

// fetch performs one authorized data fetch, mapping timeouts to their
// terminal kind.
func (b *Bridge) fetch(ctx context.Context, url string) (*classic.Response, error) {
	resp, err := b.gateway.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, classic.ErrTimeout) {
			b.logger.Warn("classic fetch timed out")
			return nil, apperror.UpstreamTimeout()
		}
		return nil, fmt.Errorf("classic fetch: %w", err)
	}
	return resp, nil
}

// classicAccount loads the record for uid and requires a linked classic
// session.
func (b *Bridge) classicAccount(ctx context.Context, uid int64) (*model.LinkedAccount, error) {
	account, err := b.accounts.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NoLinkedAccount("ADS Classic")
		}
		return nil, fmt.Errorf("looking up account for uid %d: %w", uid, err)
	}
	if !account.HasClassic() {
		return nil, apperror.NoLinkedAccount("ADS Classic")
	}
	return account, nil
}

// bundleKey resolves uid to its 2.0 bundle key, enforcing the directory and
// link preconditions in the same order for both bundle operations.
func (b *Bridge) bundleKey(ctx context.Context, uid int64) (string, error) {
	if !b.dir.Loaded() {
		b.logger.Error("ADS 2.0 user directory has not been loaded")
		return "", apperror.DirectoryUnavailable()
	}

	account, err := b.accounts.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperror.NoLinkedAccount("ADS 2.0")
		}
		return "", fmt.Errorf("looking up account for uid %d: %w", uid, err)
	}
	if !account.HasTwoPointOh() {
		return "", apperror.NoLinkedAccount("ADS 2.0")
	}

	key, ok := b.dir.Lookup(account.TwoPointOhEmail)
	if !ok {
		return "", apperror.NoLibraries()
	}
	return key, nil
}

// outcomeError maps a non-success classification 1:1 to its apperror kind.
func outcomeError(cls classic.Classification) error {
	switch cls.Outcome {
	case classic.OutcomeInvalidCredentials:
		return apperror.InvalidCredentials()
	case classic.OutcomeUnknownAccount:
		return apperror.UnknownAccount()
	case classic.OutcomeNoSession:
		return apperror.NoSessionIssued()
	case classic.OutcomeEmailMismatch:
		return apperror.EmailMismatch()
	case classic.OutcomeServerError, classic.OutcomeMalformed:
		return apperror.UpstreamUnknown(cls.Status, cls.Body)
	default:
		return apperror.UpstreamUnknown(cls.Status, cls.Body)
	}
}

// reshapeLibraries converts the legacy libraries shape into the stable
// contract. The function is total over well-formed input: a missing desc
// becomes an empty description, never an error.
func reshapeLibraries(body []byte) (*LibraryList, error) {
	var raw struct {
		Libraries []struct {
			Name    string `json:"name"`
			Desc    string `json:"desc"`
			Entries []struct {
				Bibcode string `json:"bibcode"`
			} `json:"entries"`
		} `json:"libraries"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parsing classic libraries: %w", err)
	}

	libraries := make([]Library, 0, len(raw.Libraries))
	for _, lib := range raw.Libraries {
		documents := make([]string, 0, len(lib.Entries))
		for _, entry := range lib.Entries {
			documents = append(documents, entry.Bibcode)
		}
		libraries = append(libraries, Library{
			Name:        lib.Name,
			Description: lib.Desc,
			Documents:   documents,
		})
	}
	return &LibraryList{Libraries: libraries}, nil
}

// maskToken hides a session token for logging, keeping only its length.
func maskToken(token string) string {
	return strings.Repeat("*", len(token))
}
