package main

import (
	"context"
	"fmt"
	"os"
	"time"

	widget "github.com/tmuxwidgets/twitch-tmux-widget"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

type Environment struct {
	LogLevel   string        `env:"TWITCH_WIDGET_LOG_LEVEL"    default:"ERROR"                    short:"l"  long:"log-level"    description:"log level"`
	ConfigFile string        `env:"TWITCH_WIDGET_CONFIG_FILE"  default:"twitch-tmux-widget.toml"  short:"c"  long:"config-file"  description:"twitch credential and channel config"`
	Auth       bool          `env:"TWITCH_WIDGET_AUTH"                                            short:"a"  long:"auth"         description:"obtain a user token in the browser"`
	Timeout    time.Duration `env:"TWITCH_WIDGET_TIMEOUT"      default:"10s"                      short:"t"  long:"timeout"      description:"time limit for the token refresh and API calls"`
}

const (
	authTimeout = 5 * time.Minute
	configLine  = "twitch: config?"
)

var Env Environment

func envSetup(env *Environment) error {
	// parse environment variables (.env is optional) and flags
	_ = godotenv.Load()
	_, err := flags.Parse(env)
	return err
}

func main() {
	os.Exit(run())
}

func run() int {
	if err := envSetup(&Env); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			return widget.ExitOK
		}
		fmt.Println(configLine)
		return widget.ExitConfigFail
	}

	config, err := widget.LoadConfig(Env.ConfigFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		// print a placeholder so tmux still renders something
		fmt.Println(configLine)
		return widget.ExitConfigFail
	}
	config.LogLevel = Env.LogLevel
	config.LogSetup()

	store := widget.NewFileTokenStore()

	if Env.Auth {
		if err := authorize(config, store); err != nil {
			widget.Log.Errorf("authorization failed: %v", err)
			line, code := widget.StatusFor(fmt.Errorf("%w: %w", widget.ErrNoCredential, err))
			fmt.Println(line)
			return code
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), Env.Timeout)
	defer cancel()

	line, err := render(ctx, config, store, time.Now())
	if err != nil {
		widget.Log.Errorf("widget failed: %v", err)
		line, code := widget.StatusFor(err)
		fmt.Println(line)
		return code
	}
	fmt.Println(line)
	return widget.ExitOK
}

func authorize(config *widget.AuthConfig, store widget.TokenStore) error {
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()

	record, err := widget.NewAuthClient(config).AuthorizeUser(ctx)
	if err != nil {
		return err
	}
	if err := store.Save(config.TokenFilePath, record); err != nil {
		return err
	}
	widget.Log.Infof("token for %s stored in %s", record.Login, config.TokenFilePath)
	return nil
}

func render(ctx context.Context, config *widget.AuthConfig, store widget.TokenStore, now time.Time) (string, error) {
	manager := widget.NewTokenLifecycleManager(store, widget.NewOAuth2RefreshGateway(config.TokenUri))
	token, err := manager.GetUsableToken(ctx, config.TokenFilePath, now)
	if err != nil {
		return "", err
	}

	clientId := token.ClientID
	if clientId == "" {
		clientId = config.ClientId
	}
	helix := widget.NewHelixClient(config.HelixUri, clientId)

	info, err := helix.GetStreamInfo(ctx, token, config.ChannelName)
	if err != nil {
		return "", err
	}
	subs, err := helix.GetSubscriberCount(ctx, token, config.LoginName)
	if err != nil {
		return "", err
	}
	return widget.SelectLine(widget.DisplayRota(info, subs, now), now), nil
}
