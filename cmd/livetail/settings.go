package main

import "time"

type Settings struct {
	LiveURL    string        `env:"LIVE_URL,default=ws://localhost:8000/live"`
	RoomId     string        `env:"ROOM_ID,required=true"`
	Channels   []string      `env:"CHANNELS,default=chat|emoji|module-action|stream-status"`
	Token      string        `env:"TOKEN"`
	Sender     string        `env:"SENDER,default=livetail"`
	RetryDelay time.Duration `env:"RETRY_DELAY,default=5s"`
}
