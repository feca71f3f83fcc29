package loadtest

import "time"

// Config holds configuration for the tap load test
type Config struct {
	BaseURL       string        // Base URL of the service
	Users         int           // Number of scoring players
	TapsPerUser   int           // Taps sent by every player
	Workers       int           // Number of concurrent workers
	Timeout       time.Duration // HTTP request timeout
	RoundDuration time.Duration // Length of the round created for the test
	AdminPassword string        // Password of the "admin" account
	LogFile       string        // Log file for test output
	Verbose       bool          // Enable verbose logging
}

// Session is the login response
type Session struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

// Round mirrors the round view returned by the API
type Round struct {
	ID         string    `json:"id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     string    `json:"status"`
	Taps       int64     `json:"taps"`
	TotalScore int64     `json:"totalScore"`
	BestScore  int64     `json:"bestScore"`
	Winner     string    `json:"winner"`
}

// TapResult is the response of a single tap
type TapResult struct {
	UserID   string `json:"userId"`
	RoundID  string `json:"roundId"`
	Taps     int64  `json:"taps"`
	Score    int64  `json:"score"`
	AddScore int64  `json:"addScore"`
}

// Stats holds test statistics
type Stats struct {
	TapsSubmitted int
	TapsAccepted  int
	TapsRejected  int
	TapsFailed    int
	ScoreReturned int64
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}

// HTTP status code constants.
const (
	StatusOK      = 200
	StatusCreated = 201
)

// Runner configuration constants.
const (
	PercentageMultiplier = 100
	zeroScoreUsername    = "nikita"
	adminUsername        = "admin"
	playerPassword       = "load-test"
)
