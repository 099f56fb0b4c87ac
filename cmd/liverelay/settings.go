package main

import "time"

// List settings take values separated by "|".
type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH,default=/live"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`
	LogLevel    string `env:"LOG_LEVEL,default=info"`

	JWTSecret           string   `env:"JWT_SECRET,required=true"`
	APIKeys             []string `env:"API_KEYS"`
	ChannelAuthRequired bool     `env:"CHANNEL_AUTH_REQUIRED,default=false"`
	AllowedOrigins      []string `env:"ALLOWED_ORIGINS"`

	RedisAddress  string `env:"REDIS_ADDRESS"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	MessagesPerSecond float64       `env:"MESSAGES_PER_SECOND,default=20"`
	MessageBurst      int           `env:"MESSAGE_BURST,default=40"`
	SendQueueSize     int           `env:"SEND_QUEUE_SIZE,default=256"`
	ReadLimit         int64         `env:"READ_LIMIT,default=65536"`
	PingInterval      time.Duration `env:"PING_INTERVAL,default=25s"`
}
