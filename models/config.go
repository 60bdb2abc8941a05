package models

// Config 構造体はサーバー、データベース、ゲームの設定情報を保持します。
type Config struct {
	ServerAddr string `json:"server_addr"`
	// memory, postgres, redis のいずれか
	Storage string `json:"storage"`

	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	AllowOrigins []string `json:"allow_origins"`

	AnswerTimeSeconds   int    `json:"answer_time_seconds"`
	VoteTimeSeconds     int    `json:"vote_time_seconds"`
	TotalRounds         int    `json:"total_rounds"`
	ResultsDelaySeconds int    `json:"results_delay_seconds"`
	FinalDelaySeconds   int    `json:"final_delay_seconds"`
	MaxChatHistory      int    `json:"max_chat_history"`
	QuestionsFile       string `json:"questions_file"`

	CleanupSchedule string `json:"cleanup_schedule"`
	RoomIdleMinutes int    `json:"room_idle_minutes"`

	MessagesPerSecond float64 `json:"messages_per_second"`
	MessageBurst      int     `json:"message_burst"`
}

// DefaultConfig は config.json が無い場合に使う設定
func DefaultConfig() Config {
	settings := DefaultGameSettings()
	return Config{
		ServerAddr:          ":8080",
		Storage:             "memory",
		DBSSLMode:           "disable",
		RedisAddr:           "localhost:6379",
		AllowOrigins:        []string{"http://localhost:5173"},
		AnswerTimeSeconds:   settings.AnswerTimeSeconds,
		VoteTimeSeconds:     settings.VoteTimeSeconds,
		TotalRounds:         settings.TotalRounds,
		ResultsDelaySeconds: 10,
		FinalDelaySeconds:   5,
		MaxChatHistory:      100,
		CleanupSchedule:     "@every 10m",
		RoomIdleMinutes:     30,
		MessagesPerSecond:   5,
		MessageBurst:        10,
	}
}

func (c Config) GameSettings() GameSettings {
	return GameSettings{
		AnswerTimeSeconds: c.AnswerTimeSeconds,
		VoteTimeSeconds:   c.VoteTimeSeconds,
		TotalRounds:       c.TotalRounds,
	}
}
