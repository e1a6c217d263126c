package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/domain"
)

type ConnState string

const (
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
	StateDisconnected ConnState = "DISCONNECTED"
	StateReconnecting ConnState = "RECONNECTING"
	StateFailed       ConnState = "FAILED"
)

func (s ConnState) String() string {
	return string(s)
}

type EventCallback func(event *domain.ChangeEvent)

type StateCallback func(state ConnState)

type eventCallbackEntry struct {
	id       int
	callback EventCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// Subscriber is a reconnecting feed client. Caches use it to invalidate on
// remote writes; the translate tool uses it for watch mode.
type Subscriber struct {
	wsURL                string
	conn                 *websocket.Conn
	state                ConnState
	stateMu              sync.RWMutex
	eventCallbacks       []eventCallbackEntry
	stateCallbacks       []stateCallbackEntry
	nextCallbackID       int
	callbacksMu          sync.RWMutex
	reconnectAttempts    int
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	logger               *zap.Logger
	stopCh               chan struct{}
	stopOnce             sync.Once
	listenerWg           sync.WaitGroup
}

func NewSubscriber(wsURL string, maxReconnectAttempts int, reconnectDelay time.Duration, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		wsURL:                wsURL,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		logger:               logger,
		stopCh:               make(chan struct{}),
		eventCallbacks:       make([]eventCallbackEntry, 0),
		stateCallbacks:       make([]stateCallbackEntry, 0),
		nextCallbackID:       1,
	}
}

func (s *Subscriber) Connect(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state == StateConnected || s.state == StateConnecting {
		s.stateMu.Unlock()
		s.logger.Warn("Feed subscriber already connected or connecting")
		return nil
	}
	s.stateMu.Unlock()

	s.setState(StateConnecting)

	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		s.logger.Error("Failed to connect to feed", zap.Error(err))
		s.setState(StateFailed)
		s.scheduleReconnect(ctx)
		return err
	}

	s.conn = conn
	s.setState(StateConnected)
	s.reconnectAttempts = 0

	s.logger.Info("Feed subscriber connected", zap.String("url", s.wsURL))

	s.listenerWg.Add(1)
	go s.listen(ctx)

	return nil
}

func (s *Subscriber) listen(ctx context.Context) {
	defer s.listenerWg.Done()
	defer s.logger.Info("Feed listener stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
			if s.conn == nil {
				return
			}

			_, msgBytes, err := s.conn.ReadMessage()
			if err != nil {
				select {
				case <-s.stopCh:
					return
				default:
				}
				s.logger.Error("Feed read error", zap.Error(err))
				s.setState(StateDisconnected)
				s.scheduleReconnect(ctx)
				return
			}

			s.handleEvent(msgBytes)
		}
	}
}

func (s *Subscriber) handleEvent(data []byte) {
	var event domain.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		dataStr := string(data)
		if len(dataStr) > 200 {
			dataStr = dataStr[:200]
		}
		s.logger.Error("Failed to parse change event",
			zap.Error(err),
			zap.String("data", dataStr),
		)
		return
	}

	s.callbacksMu.RLock()
	callbacks := make([]eventCallbackEntry, len(s.eventCallbacks))
	copy(callbacks, s.eventCallbacks)
	s.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(&event)
	}
}

func (s *Subscriber) scheduleReconnect(ctx context.Context) {
	s.reconnectAttempts++

	if s.reconnectAttempts > s.maxReconnectAttempts {
		s.logger.Error("Max feed reconnect attempts reached",
			zap.Int("attempts", s.reconnectAttempts),
		)
		s.setState(StateFailed)
		return
	}

	s.setState(StateReconnecting)

	s.logger.Info("Scheduling feed reconnect",
		zap.Int("attempt", s.reconnectAttempts),
		zap.Int("max", s.maxReconnectAttempts),
		zap.Duration("delay", s.reconnectDelay),
	)

	go func() {
		select {
		case <-time.After(s.reconnectDelay):
			if err := s.Connect(ctx); err != nil {
				s.logger.Error("Feed reconnect failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}()
}

// OnEvent registers a callback for every change event and returns an
// unsubscribe function.
func (s *Subscriber) OnEvent(callback EventCallback) func() {
	s.callbacksMu.Lock()
	id := s.nextCallbackID
	s.nextCallbackID++
	s.eventCallbacks = append(s.eventCallbacks, eventCallbackEntry{
		id:       id,
		callback: callback,
	})
	s.callbacksMu.Unlock()

	return func() {
		s.callbacksMu.Lock()
		defer s.callbacksMu.Unlock()
		for i, entry := range s.eventCallbacks {
			if entry.id == id {
				s.eventCallbacks = append(s.eventCallbacks[:i], s.eventCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (s *Subscriber) OnStateChange(callback StateCallback) func() {
	s.callbacksMu.Lock()
	id := s.nextCallbackID
	s.nextCallbackID++
	s.stateCallbacks = append(s.stateCallbacks, stateCallbackEntry{
		id:       id,
		callback: callback,
	})
	s.callbacksMu.Unlock()

	return func() {
		s.callbacksMu.Lock()
		defer s.callbacksMu.Unlock()
		for i, entry := range s.stateCallbacks {
			if entry.id == id {
				s.stateCallbacks = append(s.stateCallbacks[:i], s.stateCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (s *Subscriber) setState(newState ConnState) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if oldState != newState {
		s.logger.Info("Feed subscriber state changed",
			zap.String("from", oldState.String()),
			zap.String("to", newState.String()),
		)

		s.callbacksMu.RLock()
		callbacks := make([]stateCallbackEntry, len(s.stateCallbacks))
		copy(callbacks, s.stateCallbacks)
		s.callbacksMu.RUnlock()

		for _, entry := range callbacks {
			entry.callback(newState)
		}
	}
}

func (s *Subscriber) GetState() ConnState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Subscriber) IsConnected() bool {
	return s.GetState() == StateConnected
}

func (s *Subscriber) Disconnect() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Error("Failed to close feed connection", zap.Error(err))
			return err
		}
		s.conn = nil
	}

	s.reconnectAttempts = 0
	s.setState(StateDisconnected)
	s.logger.Info("Feed subscriber disconnected")

	done := make(chan struct{})
	go func() {
		s.listenerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Timeout waiting for feed listener to stop")
	}

	return nil
}

func (s *Subscriber) RemoveAllListeners() {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	s.eventCallbacks = make([]eventCallbackEntry, 0)
	s.stateCallbacks = make([]stateCallbackEntry, 0)
}
