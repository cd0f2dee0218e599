package engine

import (
	"time"

	"connect-you/internal/api"
	"connect-you/internal/engine/actors"
	"connect-you/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog"
)

const defaultRequestTimeout = 5 * time.Second

// Engine owns the presence registry of one gateway. Several engines can
// share an actor system without seeing each other's rooms.
type Engine struct {
	context        *actor.RootContext
	presenceActor  *actor.PID
	requestTimeout time.Duration
	logger         zerolog.Logger
}

func NewEngine(system *actor.ActorSystem, logger zerolog.Logger, metrics *utils.MetricsCollector) *Engine {
	context := system.Root

	presenceProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewPresenceActor(logger, metrics)
	})
	presencePID := context.Spawn(presenceProps)

	return &Engine{
		context:        context,
		presenceActor:  presencePID,
		requestTimeout: defaultRequestTimeout,
		logger:         logger.With().Str("component", "engine").Logger(),
	}
}

// Join puts conn in userID's room and returns the room size.
func (e *Engine) Join(userID string, conn actors.Connection) (int, error) {
	future := e.context.RequestFuture(e.presenceActor, &actors.JoinRoomMsg{UserID: userID, Conn: conn}, e.requestTimeout)
	result, err := future.Result()
	if err != nil {
		return 0, e.unavailable(err)
	}
	return result.(int), nil
}

// Leave removes conn from its room, if any.
func (e *Engine) Leave(connID string) {
	e.context.Send(e.presenceActor, &actors.LeaveMsg{ConnID: connID})
}

// RoomSize reports how many connections userID currently has.
func (e *Engine) RoomSize(userID string) (int, error) {
	future := e.context.RequestFuture(e.presenceActor, &actors.RoomSizeMsg{UserID: userID}, e.requestTimeout)
	result, err := future.Result()
	if err != nil {
		return 0, e.unavailable(err)
	}
	return result.(int), nil
}

func (e *Engine) unavailable(err error) error {
	e.logger.Warn().Err(err).Msg("presence request failed")
	appErr := utils.NewActorTimeoutError("presence")
	appErr.Origin = err
	return appErr
}

// Emit encodes an event and queues it for every connection of userID.
func (e *Engine) Emit(userID, event string, payload interface{}) {
	frame, err := api.NewEnvelope(event, payload)
	if err != nil {
		e.logger.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	e.context.Send(e.presenceActor, &actors.DeliverMsg{UserID: userID, Payload: frame})
}

// Stop terminates the presence actor and waits for it to finish.
func (e *Engine) Stop() {
	if err := e.context.StopFuture(e.presenceActor).Wait(); err != nil {
		e.logger.Warn().Err(err).Msg("presence actor did not stop cleanly")
	}
}
