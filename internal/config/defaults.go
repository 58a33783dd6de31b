package config

const (
	DefaultTelegramAPI  = "https://api.telegram.org"
	DefaultRevoltAPI    = "https://api.revolt.chat"
	DefaultRevoltAutumn = "https://autumn.revolt.chat"
	DefaultRevoltWS     = "wss://ws.revolt.chat"
)

func Defaults() *Config {
	return &Config{
		Endpoints: EndpointsConfig{
			TelegramAPI:  DefaultTelegramAPI,
			RevoltAPI:    DefaultRevoltAPI,
			RevoltAutumn: DefaultRevoltAutumn,
			RevoltWS:     DefaultRevoltWS,
		},
		LogLevel:           "info",
		HTTPTimeoutSeconds: 60,
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// Sample returns a config suitable for `revoltgram init`: defaults plus
// placeholder tokens read from the environment and one example bridge.
func Sample() *Config {
	cfg := Defaults()
	cfg.TelegramBotToken = "${TELEGRAM_BOT_TOKEN}"
	cfg.RevoltBotToken = "${REVOLT_BOT_TOKEN}"
	cfg.Bridges = []Bridge{
		{TelegramChatID: "-1001234567890", RevoltChannelID: "01ARZ3NDEKTSV4RRFFQ69G5FAV"},
	}
	return cfg
}
