package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"connect-you/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type SimConfig struct {
	UserIDs          []string // must already exist on the server
	SimulationTime   time.Duration
	MessageFrequency float64 // messages per user per hour
	ReadFrequency    float64 // history reads per user per hour
	DisconnectRate   float64
	ReconnectRate    float64
	ZipfS            float64
	EngineURL        string
	JWTSecret        string // used to mint tokens for the authenticated routes
	TickInterval     time.Duration
	MetricsInterval  time.Duration
}

type SimulationStats struct {
	mu              sync.RWMutex
	StartTime       time.Time
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	AverageLatency  time.Duration
	ActiveUsers     int
	MessagesSent    int
	HistoryReads    int
	LiveDeliveries  int
	ReceiptsSeen    int
}

// SimulatedUser is one participant; connected users hold an open socket.
type SimulatedUser struct {
	ID          string
	Token       string
	IsConnected bool
	conn        *websocket.Conn
}

type EnhancedSimulator struct {
	config SimConfig
	stats  *SimulationStats
	users  []*SimulatedUser
	client *http.Client
	logger zerolog.Logger
	mu     sync.RWMutex
	rng    *rand.Rand
	rngMu  sync.Mutex
}

func NewEnhancedSimulator(config SimConfig, logger zerolog.Logger) *EnhancedSimulator {
	if config.TickInterval <= 0 {
		config.TickInterval = 500 * time.Millisecond
	}
	if config.MetricsInterval <= 0 {
		config.MetricsInterval = 10 * time.Second
	}
	if config.ZipfS <= 1 {
		config.ZipfS = 1.07
	}
	return &EnhancedSimulator{
		config: config,
		stats:  &SimulationStats{StartTime: time.Now()},
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "simulator").Logger(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *EnhancedSimulator) Run(ctx context.Context) error {
	s.logger.Info().Int("users", len(s.config.UserIDs)).Msg("starting chat simulation")

	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	defer s.disconnectAll()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.SimulateActivities(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.simulateConnectivity(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.collectMetrics(ctx)
	}()

	wg.Wait()
	return nil
}

// initialize mints a token per user and opens every socket.
func (s *EnhancedSimulator) initialize(ctx context.Context) error {
	if len(s.config.UserIDs) < 2 {
		return fmt.Errorf("need at least two users, got %d", len(s.config.UserIDs))
	}
	auth := middleware.NewAuth(s.config.JWTSecret)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make([]*SimulatedUser, 0, len(s.config.UserIDs))
	for _, id := range s.config.UserIDs {
		token, err := auth.GenerateToken(id, "")
		if err != nil {
			return fmt.Errorf("minting token for %s: %w", id, err)
		}
		user := &SimulatedUser{ID: id, Token: token}
		if err := s.connect(ctx, user); err != nil {
			return fmt.Errorf("connecting %s: %w", id, err)
		}
		s.users = append(s.users, user)
	}

	s.stats.mu.Lock()
	s.stats.ActiveUsers = len(s.users)
	s.stats.mu.Unlock()
	return nil
}

// connect opens a socket for user, joins its room and starts a reader that
// counts live events. Caller holds s.mu.
func (s *EnhancedSimulator) connect(ctx context.Context, user *SimulatedUser) error {
	wsURL := "ws" + strings.TrimPrefix(s.config.EngineURL, "http") + "/socket"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}

	join, _ := json.Marshal(map[string]interface{}{
		"event": "joinRoom",
		"data":  map[string]string{"userId": user.ID},
	})
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		conn.Close()
		return err
	}

	user.conn = conn
	user.IsConnected = true
	go s.readEvents(user.ID, conn)
	return nil
}

func (s *EnhancedSimulator) readEvents(userID string, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Event string `json:"event"`
		}
		if json.Unmarshal(data, &frame) != nil {
			continue
		}

		s.stats.mu.Lock()
		switch frame.Event {
		case "receiveMessage":
			s.stats.LiveDeliveries++
		case "messagesRead":
			s.stats.ReceiptsSeen++
		case "error":
			s.logger.Debug().Str("user", userID).RawJSON("frame", data).Msg("socket error event")
		}
		s.stats.mu.Unlock()
	}
}

func (s *EnhancedSimulator) disconnectAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.conn != nil {
			user.conn.Close()
			user.conn = nil
		}
		user.IsConnected = false
	}
}

func (s *EnhancedSimulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			for _, user := range s.users {
				if user.IsConnected {
					if s.chance(s.config.DisconnectRate) {
						user.conn.Close()
						user.conn = nil
						user.IsConnected = false
						s.adjustActive(-1)
					}
				} else if s.chance(s.config.ReconnectRate) {
					if err := s.connect(ctx, user); err != nil {
						s.logger.Debug().Err(err).Str("user", user.ID).Msg("reconnect failed")
						continue
					}
					s.adjustActive(1)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *EnhancedSimulator) adjustActive(delta int) {
	s.stats.mu.Lock()
	s.stats.ActiveUsers += delta
	s.stats.mu.Unlock()
}

func (s *EnhancedSimulator) chance(p float64) bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < p
}

// makeRequest sends a JSON request, optionally with a bearer token.
func (s *EnhancedSimulator) makeRequest(ctx context.Context, method, endpoint, token string, data interface{}) ([]byte, error) {
	var body []byte
	if data != nil {
		var err error
		if body, err = json.Marshal(data); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.EngineURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err == nil && resp.StatusCode >= 400 {
		err = fmt.Errorf("request failed with status: %d", resp.StatusCode)
	}
	s.recordRequestMetrics(start, err)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (s *EnhancedSimulator) recordRequestMetrics(start time.Time, err error) {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	latency := time.Since(start)
	s.stats.TotalRequests++
	if err != nil {
		s.stats.FailedRequests++
	} else {
		s.stats.SuccessRequests++
	}

	totalLatency := s.stats.AverageLatency * time.Duration(s.stats.TotalRequests-1)
	s.stats.AverageLatency = (totalLatency + latency) / time.Duration(s.stats.TotalRequests)
}

func (s *EnhancedSimulator) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := s.GetMetrics()
			s.logger.Info().
				Float64("req_per_sec", m.RequestsPerSecond).
				Float64("success_pct", m.SuccessRate).
				Dur("avg_latency", m.AverageLatency).
				Int("active_users", m.ActiveUsers).
				Int("messages_sent", m.MessagesSent).
				Int("history_reads", m.HistoryReads).
				Int("live_deliveries", m.LiveDeliveries).
				Int("receipts", m.ReceiptsSeen).
				Int("errors", m.ErrorCount).
				Msg("simulation metrics")
		}
	}
}

// SimulationMetrics holds the metrics of the simulation
type SimulationMetrics struct {
	TotalUsers        int
	ActiveUsers       int
	MessagesSent      int
	HistoryReads      int
	LiveDeliveries    int
	ReceiptsSeen      int
	AverageLatency    time.Duration
	ErrorCount        int
	SuccessRate       float64
	RequestsPerSecond float64
}

// GetMetrics returns the current simulation metrics
func (s *EnhancedSimulator) GetMetrics() SimulationMetrics {
	s.mu.RLock()
	totalUsers := len(s.users)
	s.mu.RUnlock()

	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()

	elapsed := time.Since(s.stats.StartTime)
	successRate := 0.0
	if s.stats.TotalRequests > 0 {
		successRate = float64(s.stats.SuccessRequests) / float64(s.stats.TotalRequests) * 100
	}

	return SimulationMetrics{
		TotalUsers:        totalUsers,
		ActiveUsers:       s.stats.ActiveUsers,
		MessagesSent:      s.stats.MessagesSent,
		HistoryReads:      s.stats.HistoryReads,
		LiveDeliveries:    s.stats.LiveDeliveries,
		ReceiptsSeen:      s.stats.ReceiptsSeen,
		AverageLatency:    s.stats.AverageLatency,
		ErrorCount:        int(s.stats.FailedRequests),
		SuccessRate:       successRate,
		RequestsPerSecond: float64(s.stats.TotalRequests) / elapsed.Seconds(),
	}
}
