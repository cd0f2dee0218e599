package simulator

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"connect-you/internal/database"
	"connect-you/internal/engine"
	"connect-you/internal/handlers"
	"connect-you/internal/middleware"
	"connect-you/internal/models"
	"connect-you/internal/services"
	"connect-you/internal/utils"
	"connect-you/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, secret string, users []string) *httptest.Server {
	t.Helper()
	store := database.NewMemoryStore()
	for _, id := range users {
		store.AddUser(&models.User{ID: id})
	}
	metrics := utils.NewMetricsCollector()
	eng := engine.NewEngine(actor.NewActorSystem(), zerolog.Nop(), metrics)
	chat := services.NewChatService(store, store, store, eng, metrics, zerolog.Nop())
	gw := websocket.NewGateway(chat, eng, metrics, zerolog.Nop(), nil)
	server := handlers.NewServer(chat, gw, middleware.NewAuth(secret), store, metrics, zerolog.Nop())

	ts := httptest.NewServer(server.NewRouter(nil))
	t.Cleanup(func() {
		gw.Close()
		ts.Close()
		eng.Stop()
	})
	return ts
}

func TestPickPartnerNeverSelf(t *testing.T) {
	sim := NewEnhancedSimulator(SimConfig{UserIDs: []string{"a", "b", "c"}}, zerolog.Nop())
	for i := 0; i < 200; i++ {
		for _, self := range []string{"a", "b", "c"} {
			assert.NotEqual(t, self, sim.pickPartner(self))
		}
	}
}

func TestRunRequiresTwoUsers(t *testing.T) {
	sim := NewEnhancedSimulator(SimConfig{UserIDs: []string{"solo"}}, zerolog.Nop())
	assert.Error(t, sim.Run(context.Background()))
}

func TestShortSimulation(t *testing.T) {
	users := []string{"u1", "u2", "u3"}
	server := startServer(t, "sim-secret", users)

	sim := NewEnhancedSimulator(SimConfig{
		UserIDs:          users,
		MessageFrequency: 3600 * 20, // effectively every tick
		ReadFrequency:    3600 * 20,
		ZipfS:            1.07,
		EngineURL:        server.URL,
		JWTSecret:        "sim-secret",
		TickInterval:     20 * time.Millisecond,
		MetricsInterval:  time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	require.NoError(t, sim.Run(ctx))

	m := sim.GetMetrics()
	assert.Equal(t, 3, m.TotalUsers)
	assert.Positive(t, m.MessagesSent)
	assert.Positive(t, m.HistoryReads)
	assert.Positive(t, m.LiveDeliveries)
}
