package twitch_widget

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

type AuthConfig struct {
	AuthzUri            string
	TokenUri            string
	ValidateUri         string
	HelixUri            string
	ClientId            string
	ClientSecret        Secret
	State               string
	UsePkce             bool
	CodeChallengeMethod string
	RedirectUri         string
	Scopes              []string
	LoginName           string
	ChannelName         string
	TokenFilePath       string
	LogLevel            string
	Port                int
	WelcomeFileName     string
}

func NewAuthConfig() *AuthConfig {

	return &AuthConfig{
		AuthzUri:            "https://id.twitch.tv/oauth2/authorize",
		TokenUri:            "https://id.twitch.tv/oauth2/token",
		ValidateUri:         "https://id.twitch.tv/oauth2/validate",
		HelixUri:            "https://api.twitch.tv/helix",
		RedirectUri:         "http://localhost/v1/callback",
		Scopes:              []string{"openid", "channel:read:subscriptions"},
		UsePkce:             true,
		CodeChallengeMethod: "S256",
		TokenFilePath:       "twitch-token.json",
		LogLevel:            "ERROR",
		WelcomeFileName:     "welcome.html",
	}
}

type widgetFile struct {
	Twitch twitchSection `mapstructure:"twitch"`
}

// twitchSection mirrors the [twitch] table of the config file.
type twitchSection struct {
	LoginName     string   `mapstructure:"login_name"`
	ChannelName   string   `mapstructure:"channel_name"`
	ClientId      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	TokenFilePath string   `mapstructure:"token_filepath"`
	AuthzUri      string   `mapstructure:"authz_uri"`
	TokenUri      string   `mapstructure:"token_uri"`
	ValidateUri   string   `mapstructure:"validate_uri"`
	HelixUri      string   `mapstructure:"helix_uri"`
	RedirectUri   string   `mapstructure:"redirect_uri"`
	Scopes        []string `mapstructure:"scopes"`
	WelcomeFile   string   `mapstructure:"welcome_file"`
}

var configKeys = []string{
	"login_name", "channel_name", "client_id", "client_secret", "token_filepath",
	"authz_uri", "token_uri", "validate_uri", "helix_uri", "redirect_uri", "scopes", "welcome_file",
}

// LoadConfig reads the widget configuration file. Values left out of the file
// keep their defaults; TWITCH_WIDGET_TWITCH_<KEY> environment variables
// override both.
func LoadConfig(path string) (*AuthConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("twitch_widget")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range configKeys {
		if err := v.BindEnv("twitch." + key); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to load config from %s: %w", path, err)
	}

	var file widgetFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("unable to parse config from %s: %w", path, err)
	}

	a := NewAuthConfig()
	a.apply(&file.Twitch)
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return a, nil
}

func (a *AuthConfig) apply(s *twitchSection) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&a.LoginName, s.LoginName)
	set(&a.ChannelName, s.ChannelName)
	set(&a.ClientId, s.ClientId)
	set(&a.TokenFilePath, s.TokenFilePath)
	set(&a.AuthzUri, s.AuthzUri)
	set(&a.TokenUri, s.TokenUri)
	set(&a.ValidateUri, s.ValidateUri)
	set(&a.HelixUri, s.HelixUri)
	set(&a.RedirectUri, s.RedirectUri)
	set(&a.WelcomeFileName, s.WelcomeFile)
	if s.ClientSecret != "" {
		a.ClientSecret = Secret(s.ClientSecret)
	}
	if len(s.Scopes) > 0 {
		a.Scopes = s.Scopes
	}
	if a.ChannelName == "" {
		a.ChannelName = a.LoginName
	}
}

func (a *AuthConfig) Validate() error {
	switch {
	case a.LoginName == "":
		return fmt.Errorf("twitch.login_name is required")
	case a.ClientId == "":
		return fmt.Errorf("twitch.client_id is required")
	case a.TokenFilePath == "":
		return fmt.Errorf("twitch.token_filepath is required")
	case a.CodeChallengeMethod != "S256" && a.CodeChallengeMethod != "plain":
		return fmt.Errorf("invalid code challenge method %q", a.CodeChallengeMethod)
	}
	return nil
}

func (a *AuthConfig) SetPkce() {
	if !a.ClientSecret.IsSet() {
		a.UsePkce = true
	} else {
		a.UsePkce = false
	}
	if a.State == "" {
		a.State = uuid.NewString()
	}
	return

}

func (a *AuthConfig) SetRedirectUri() error {
	/*
		The sign-on flow waits for the authorization response on a local HTTP listener.
		A port written into redirect_uri is used as is, since Twitch matches the registered
		URL exactly; otherwise the first available port in range 49215 - 65535 (IANA dynamic
		or private ports) is taken.*/
	u, err := url.Parse(a.RedirectUri)
	if err != nil {
		Log.Errorf("invalid redirecturi, %v", err)
		return err
	}
	if p := u.Port(); p != "" {
		a.Port, err = strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid redirecturi port %q: %w", p, err)
		}
		return nil
	}

	a.Port, err = getFreeLocalPort()
	if err != nil {
		Log.Error("Can't find free port")
		return err
	}
	Log.Infof("TCP Port %d is available", a.Port)
	u.Host = fmt.Sprintf("%s:%d", u.Hostname(), a.Port)
	a.RedirectUri = u.String()
	return nil
}
