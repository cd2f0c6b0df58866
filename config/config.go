package config

import (
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultBindAddr           string = "0.0.0.0"
	defaultPort               int    = 8080
	defaultMaxStreamsPerDC    int64  = 2
	defaultGlobalStreamLimit  int64  = 10
	defaultMinChunk           int64  = 64 * 1024
	defaultMaxChunk           int64  = 512 * 1024
	defaultMaxRetries         int    = 6
	defaultSessionIdleTimeout int    = 300
	defaultCacheTTLSeconds    int    = 1800
)

var ValueOf = &config{
	BindAddr:           defaultBindAddr,
	Port:               defaultPort,
	MaxStreamsPerDC:    defaultMaxStreamsPerDC,
	GlobalStreamLimit:  defaultGlobalStreamLimit,
	MinChunk:           defaultMinChunk,
	MaxChunk:           defaultMaxChunk,
	MaxRetries:         defaultMaxRetries,
	SessionIdleTimeout: defaultSessionIdleTimeout,
	CacheTTLSeconds:    defaultCacheTTLSeconds,
}

type config struct {
	BindAddr         string `envconfig:"BIND_ADDR" default:"0.0.0.0"`
	Port             int    `envconfig:"PORT" default:"8080"`
	UpstreamAPIID    int32  `envconfig:"UPSTREAM_API_ID" required:"true"`
	UpstreamAPIHash  string `envconfig:"UPSTREAM_API_HASH" required:"true"`
	BotToken         string `envconfig:"BOT_TOKEN" required:"true"`
	StorageChannelID int64  `envconfig:"STORAGE_CHANNEL_ID" required:"true"`
	PublicURLPrefix  string `envconfig:"PUBLIC_URL_PREFIX"`

	MultiClient     bool     `envconfig:"MULTI_CLIENT" default:"false"`
	ClientBotTokens []string `envconfig:"CLIENT_BOT_TOKENS"`

	MaxStreamsPerDC    int64 `envconfig:"MAX_STREAMS_PER_DC" default:"2"`
	GlobalStreamLimit  int64 `envconfig:"GLOBAL_STREAM_LIMIT" default:"10"`
	MinChunk           int64 `envconfig:"MIN_CHUNK" default:"65536"`
	MaxChunk           int64 `envconfig:"MAX_CHUNK" default:"524288"`
	MaxRetries         int   `envconfig:"MAX_RETRIES" default:"6"`
	SessionIdleTimeout int   `envconfig:"SESSION_IDLE_TIMEOUT" default:"300"`
	CacheTTLSeconds    int   `envconfig:"CACHE_TTL" default:"1800"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Dev         bool   `envconfig:"DEV" default:"false"`
	UsePublicIP bool   `envconfig:"USE_PUBLIC_IP" default:"false"`
}

func (c *config) loadFromEnvFile(log *zap.Logger) {
	envPath := filepath.Clean("streamgate.env")
	log.Sugar().Infof("Trying to load ENV vars from %s", envPath)
	err := godotenv.Load(envPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Sugar().Info("ENV file not found, falling back to process environment")
		} else {
			log.Fatal("unknown error while parsing env file", zap.Error(err))
		}
	}
}

// SetFlagsFromConfig registers cobra flags mirroring the env vars, so
// either source can supply configuration (flags win, see
// loadConfigFromArgs).
func SetFlagsFromConfig(cmd *cobra.Command) {
	cmd.Flags().Int32("upstream-api-id", ValueOf.UpstreamAPIID, "Telegram API ID")
	cmd.Flags().String("upstream-api-hash", ValueOf.UpstreamAPIHash, "Telegram API Hash")
	cmd.Flags().String("bot-token", ValueOf.BotToken, "Telegram bot token")
	cmd.Flags().Int64("storage-channel-id", ValueOf.StorageChannelID, "Private storage channel ID")
	cmd.Flags().String("public-url-prefix", ValueOf.PublicURLPrefix, "Public URL prefix used in generated links")
	cmd.Flags().Bool("dev", ValueOf.Dev, "Enable development mode")
	cmd.Flags().IntP("port", "p", ValueOf.Port, "Server port")
	cmd.Flags().String("bind-addr", ValueOf.BindAddr, "Address to bind the HTTP server to")
}

func (c *config) loadConfigFromArgs(cmd *cobra.Command) {
	if cmd.Flags().Changed("upstream-api-id") {
		v, _ := cmd.Flags().GetInt32("upstream-api-id")
		os.Setenv("UPSTREAM_API_ID", strconv.Itoa(int(v)))
	}
	if cmd.Flags().Changed("upstream-api-hash") {
		v, _ := cmd.Flags().GetString("upstream-api-hash")
		os.Setenv("UPSTREAM_API_HASH", v)
	}
	if cmd.Flags().Changed("bot-token") {
		v, _ := cmd.Flags().GetString("bot-token")
		os.Setenv("BOT_TOKEN", v)
	}
	if cmd.Flags().Changed("storage-channel-id") {
		v, _ := cmd.Flags().GetInt64("storage-channel-id")
		os.Setenv("STORAGE_CHANNEL_ID", strconv.FormatInt(v, 10))
	}
	if cmd.Flags().Changed("public-url-prefix") {
		v, _ := cmd.Flags().GetString("public-url-prefix")
		os.Setenv("PUBLIC_URL_PREFIX", v)
	}
	if cmd.Flags().Changed("dev") {
		v, _ := cmd.Flags().GetBool("dev")
		os.Setenv("DEV", strconv.FormatBool(v))
	}
	if cmd.Flags().Changed("port") {
		v, _ := cmd.Flags().GetInt("port")
		os.Setenv("PORT", strconv.Itoa(v))
	}
	if cmd.Flags().Changed("bind-addr") {
		v, _ := cmd.Flags().GetString("bind-addr")
		os.Setenv("BIND_ADDR", v)
	}
}

func (c *config) setupEnvVars(log *zap.Logger, cmd *cobra.Command) {
	c.loadFromEnvFile(log)
	c.loadConfigFromArgs(cmd)
	if err := envconfig.Process("", c); err != nil {
		log.Fatal("error while parsing env variables", zap.Error(err))
	}
}

// Load populates ValueOf from the env file, process environment, and any
// cobra flags that were explicitly set, then normalizes the derived fields
// (PUBLIC_URL_PREFIX fallback, STORAGE_CHANNEL_ID sign convention).
func Load(log *zap.Logger, cmd *cobra.Command) {
	log = log.Named("config")
	defer log.Info("loaded config")
	ValueOf.setupEnvVars(log, cmd)

	if ValueOf.StorageChannelID > 0 {
		ValueOf.StorageChannelID = -ValueOf.StorageChannelID
	}

	if ValueOf.PublicURLPrefix == "" {
		ip, err := getIP(ValueOf.UsePublicIP)
		if err != nil {
			log.Sugar().Warnf("failed to determine host IP (%v), falling back to %s", err, ip)
		}
		ValueOf.PublicURLPrefix = "http://" + ip + ":" + strconv.Itoa(ValueOf.Port)
		log.Sugar().Infof("PUBLIC_URL_PREFIX not set, defaulting to %s", ValueOf.PublicURLPrefix)
	}

	if ValueOf.MultiClient && len(ValueOf.ClientBotTokens) == 0 {
		log.Sugar().Warn("MULTI_CLIENT enabled but CLIENT_BOT_TOKENS is empty; running single-client")
		ValueOf.MultiClient = false
	}

	if ValueOf.MinChunk > ValueOf.MaxChunk {
		log.Fatal("MIN_CHUNK must not exceed MAX_CHUNK")
	}
}

// getIP resolves the host address PUBLIC_URL_PREFIX falls back to when
// unset: the machine's externally visible IP when public is requested
// (USE_PUBLIC_IP), otherwise its LAN-facing IP. Falls back to "localhost"
// on any resolution failure.
func getIP(public bool) (string, error) {
	var ip string
	var err error
	if public {
		ip, err = GetPublicIP()
	} else {
		ip, err = getInternalIP()
	}
	if ip == "" {
		ip = "localhost"
	}
	return ip, err
}

// https://stackoverflow.com/a/23558495/15807350
func getInternalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.New("no internet connection")
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// GetPublicIP queries an external service for the host's internet-visible
// address, used when USE_PUBLIC_IP is set.
func GetPublicIP() (string, error) {
	resp, err := http.Get("https://api.ipify.org?format=text")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	buf := make([]byte, 64)
	n, _ := resp.Body.Read(buf)
	return strings.TrimSpace(string(buf[:n])), nil
}
