package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jugelauncher/launcher/auth"
	"github.com/jugelauncher/launcher/common"
	"github.com/jugelauncher/launcher/events"
	"github.com/jugelauncher/launcher/launcher"
)

var version = "dev"

const (
	accountFile      = "account.json"
	terminateTimeout = 30 * time.Second
)

func loadAccount(baseDir string) (*auth.Account, error) {
	account := &auth.Account{}
	if err := common.ReadJSON(filepath.Join(baseDir, accountFile), account); err != nil {
		return nil, err
	}
	return account, nil
}

func saveAccount(baseDir string, account *auth.Account) error {
	return common.WriteJSON(filepath.Join(baseDir, accountFile), account)
}

// consumeEvents prints the launcher's event stream until it drains.
func consumeEvents(log *logrus.Logger, ch <-chan events.Event, wg *sync.WaitGroup) {
	defer wg.Done()
	lastPercent := map[string]int{}
	for e := range ch {
		switch ev := e.(type) {
		case events.Progress:
			// One line per 10% per artifact keeps the output readable.
			step := int(ev.Percent) / 10
			if step > lastPercent[ev.Artifact] || ev.Percent >= 100 {
				lastPercent[ev.Artifact] = step
				log.Infof("%v: %v/%v bytes (%.0f%%)", ev.Artifact, ev.Bytes, ev.Total, ev.Percent)
			}
		case events.Installed:
			log.Infof("Installed %v", ev.VersionID)
		case events.InstallFailed:
			log.Errorf("Install of %v failed: %v", ev.VersionID, ev.Err)
		case events.LogLine:
			if ev.IsError {
				log.Errorf("[game] %v", ev.Text)
			} else {
				log.Infof("[game] %v", ev.Text)
			}
		case events.Exited:
			log.Infof("Game exited with code %v", ev.Code)
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	channel := make(chan os.Signal, 1)
	signal.Notify(channel, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-channel
		cancel()
		signal.Stop(channel)
	}()
	return ctx, cancel
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	configFile := "launcher.yml"
	envFile := ""
	trace := false

	newLauncher := func() (*launcher.Launcher, error) {
		if envFile != "" {
			if err := godotenv.Overload(envFile); err != nil {
				log.Warnf("Failed to load godotenv file '%s': %s", envFile, err.Error())
			}
		}
		cfg, err := launcher.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		if trace {
			cfg.Trace = true
		}
		if cfg.Trace {
			log.SetLevel(logrus.DebugLevel)
		}
		return launcher.New(cfg, log), nil
	}

	offline := false
	offlineName := ""
	cmdLogin := &cobra.Command{
		Use:   "login",
		Short: "Sign in against the identity provider, or create an offline account",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher()
			if err != nil {
				return err
			}
			defer l.Close()
			if offline {
				name := offlineName
				if name == "" {
					name = UsernameSurvey()
				}
				if name == "" {
					return fmt.Errorf("no player name provided")
				}
				account := l.LoginOffline(name)
				if err := saveAccount(l.Config.BaseDir, account); err != nil {
					return err
				}
				log.Infof("Offline account %v (%v) ready", account.Name, account.UUID)
				return nil
			}
			ctx, cancel := signalContext()
			defer cancel()
			go func() {
				<-ctx.Done()
				l.CancelLogin()
			}()
			session, err := l.StartLogin(ctx)
			if err != nil {
				return err
			}
			fmt.Println(session.VerificationMessage())
			account, err := l.CompleteLogin(ctx, session)
			if err != nil {
				return err
			}
			if account == nil {
				log.Info("Login cancelled")
				return nil
			}
			if err := saveAccount(l.Config.BaseDir, account); err != nil {
				return err
			}
			log.Infof("Signed in as %v", account.Name)
			return nil
		},
	}
	cmdLogin.Flags().BoolVar(&offline, "offline", false, "create an offline account instead of signing in")
	cmdLogin.Flags().StringVar(&offlineName, "name", "", "player name for the offline account")

	cmdInstall := &cobra.Command{
		Use:   "install <version>",
		Short: "Install a published version into the local content store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			ch, unsubscribe := l.Subscribe()
			var wg sync.WaitGroup
			wg.Add(1)
			go consumeEvents(log, ch, &wg)
			installErr := l.Install(ctx, args[0])
			unsubscribe()
			wg.Wait()
			l.Close()
			return installErr
		},
	}

	cmdLaunch := &cobra.Command{
		Use:   "launch <version>",
		Short: "Launch an installed version for the signed-in account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher()
			if err != nil {
				return err
			}
			account, err := loadAccount(l.Config.BaseDir)
			if err != nil {
				return fmt.Errorf("no account found, run 'login' first: %w", err)
			}
			ctx, cancel := signalContext()
			defer cancel()
			ch, unsubscribe := l.Subscribe()
			var wg sync.WaitGroup
			wg.Add(1)
			go consumeEvents(log, ch, &wg)
			session, err := l.Launch(ctx, args[0], account)
			if err != nil {
				unsubscribe()
				wg.Wait()
				l.Close()
				return err
			}
			select {
			case <-session.Done():
			case <-ctx.Done():
				log.Info("Interrupt received, terminating game process")
				timeout, cancelT := context.WithTimeout(context.Background(), terminateTimeout)
				defer cancelT()
				if err := session.Terminate(timeout); err != nil {
					log.Warnf("Forced game process shutdown: %v", err)
				}
			}
			unsubscribe()
			wg.Wait()
			l.Close()
			_, code := session.Status()
			if code != 0 {
				return fmt.Errorf("game exited with code %v", code)
			}
			return nil
		},
	}

	cmdVersions := &cobra.Command{
		Use:   "versions",
		Short: "List locally installed versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLauncher()
			if err != nil {
				return err
			}
			defer l.Close()
			versions := l.Versions()
			if len(versions) == 0 {
				fmt.Println("No versions installed")
				return nil
			}
			for _, v := range versions {
				fmt.Printf("%v\t%v\t%v\n", v.ID, v.Type, v.Path)
			}
			return nil
		},
	}

	rootCmd := &cobra.Command{
		Use:     "juge-launcher",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", configFile, "path to the launcher YAML configuration")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", envFile, "godotenv file with environment overrides")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "trace HTTP requests")
	rootCmd.AddCommand(cmdLogin, cmdInstall, cmdLaunch, cmdVersions)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
