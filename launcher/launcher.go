// Package launcher is the façade the surrounding application calls:
// install a version, launch it for an account, sign the user in, and
// observe progress and game output through the event bus.
package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jugelauncher/launcher/auth"
	"github.com/jugelauncher/launcher/download"
	"github.com/jugelauncher/launcher/events"
	"github.com/jugelauncher/launcher/launch"
	"github.com/jugelauncher/launcher/manifest"
	"github.com/jugelauncher/launcher/protocol"
)

// Launcher wires the components together. It holds no long-lived state
// beyond references to them; the account and active profile travel through
// the call arguments, never through ambient globals.
type Launcher struct {
	Config *Config
	Log    *logrus.Logger

	bus        *events.Bus
	resolver   *manifest.Resolver
	localStore *manifest.LocalStore
	store      *download.Store
	downloader *download.Downloader
	auth       *auth.Client
	profiles   *launch.Profiles
	supervisor *launch.Supervisor
}

func New(cfg *Config, log *logrus.Logger) *Launcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	bus := events.NewBus()
	httpClient := &protocol.Client{Trace: cfg.Trace, Log: log}
	store := &download.Store{BaseDir: cfg.BaseDir}
	return &Launcher{
		Config:     cfg,
		Log:        log,
		bus:        bus,
		resolver:   &manifest.Resolver{Client: httpClient, BaseURL: cfg.ManifestBaseURL},
		localStore: &manifest.LocalStore{BaseDir: cfg.BaseDir},
		store:      store,
		downloader: &download.Downloader{Client: httpClient, Store: store, Bus: bus, Log: log},
		auth: &auth.Client{
			HTTP:      httpClient,
			ClientID:  cfg.Auth.ClientID,
			Scope:     cfg.Auth.Scope,
			Endpoints: cfg.Auth.Endpoints,
			Log:       log,
		},
		profiles:   &launch.Profiles{BaseDir: cfg.BaseDir},
		supervisor: &launch.Supervisor{Bus: bus, Log: log},
	}
}

// Subscribe registers an observer on the event stream. The returned cancel
// function must be called when the observer goes away.
func (l *Launcher) Subscribe() (<-chan events.Event, func()) {
	return l.bus.Subscribe()
}

// Close shuts the event stream down.
func (l *Launcher) Close() {
	l.bus.Close()
}

// Profiles exposes the resource-profile store.
func (l *Launcher) Profiles() *launch.Profiles {
	return l.profiles
}

// Install resolves the version's manifest and drives the downloader over
// the client artifact and all libraries. The terminal outcome is exactly
// one Installed or InstallFailed event, mirrored by the returned error.
func (l *Launcher) Install(ctx context.Context, versionID string) error {
	m, err := l.resolver.Resolve(ctx, versionID)
	if err != nil {
		err = translate(versionID, err)
		l.bus.Publish(events.InstallFailed{VersionID: versionID, Err: err})
		return err
	}
	if err := l.downloader.InstallBatch(ctx, m); err != nil {
		err = translate(versionID, err)
		l.bus.Publish(events.InstallFailed{VersionID: versionID, Err: err})
		return err
	}
	if err := l.localStore.Save(m); err != nil {
		err = translate(versionID, fmt.Errorf("saving manifest: %w", err))
		l.bus.Publish(events.InstallFailed{VersionID: versionID, Err: err})
		return err
	}
	l.Log.WithField("version", versionID).Info("version installed")
	l.bus.Publish(events.Installed{VersionID: versionID})
	return nil
}

// Launch composes and spawns the installed version for the account,
// supervised under the profile pinned to the version (or a default one).
func (l *Launcher) Launch(ctx context.Context, versionID string, account *auth.Account) (*launch.Session, error) {
	m, err := l.localStore.Load(versionID)
	if err != nil {
		return nil, translate(versionID, fmt.Errorf("%w: %v: not installed: %v", manifest.ErrUnavailable, versionID, err))
	}
	profile := l.profiles.ForVersion(versionID)
	if profile == nil {
		profile = launch.DefaultProfile(versionID)
	}
	commandLine, err := launch.Compose(m, profile, account, l.store)
	if err != nil {
		return nil, translate(versionID, err)
	}
	session, err := l.supervisor.Launch(profile.ID, commandLine)
	if err != nil {
		return nil, translate(versionID, err)
	}
	return session, nil
}

// Versions lists the locally installed versions.
func (l *Launcher) Versions() []manifest.LocalVersion {
	return l.localStore.Installed()
}

// StartLogin begins a device-code sign-in and returns the session whose
// user code and verification URI the caller shows the user.
func (l *Launcher) StartLogin(ctx context.Context) (*auth.Session, error) {
	session, err := l.auth.Start(ctx)
	if err != nil {
		return nil, translate("", err)
	}
	return session, nil
}

// CompleteLogin polls until the user finishes sign-in. A cancelled login
// returns (nil, nil): cancellation is a state transition, not a failure.
func (l *Launcher) CompleteLogin(ctx context.Context, session *auth.Session) (*auth.Account, error) {
	account, err := l.auth.Poll(ctx, session)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, translate("", err)
	}
	return account, nil
}

// CancelLogin abandons the login in progress, if any.
func (l *Launcher) CancelLogin() {
	l.auth.Cancel()
}

// RefreshLogin renews a provider account's token bundle.
func (l *Launcher) RefreshLogin(ctx context.Context, account *auth.Account) (*auth.Account, error) {
	renewed, err := l.auth.Refresh(ctx, account)
	if err != nil {
		return nil, translate("", err)
	}
	return renewed, nil
}

// LoginOffline mints a provider-less account for the player name.
func (l *Launcher) LoginOffline(name string) *auth.Account {
	return auth.Offline(name)
}
