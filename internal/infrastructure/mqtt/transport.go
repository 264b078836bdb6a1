package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/thomas-kunnumpurath/openfin-solace-sample/internal/pubsub"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// Transport implements pubsub.Transport over MQTT (paho.mqtt.golang),
// carried on WebSocket so that the client's ws/wss/http/https addresses
// can be dialled as-is.
//
// Each Open creates an independent paho client; nothing is shared between
// connections except the options.
type Transport struct {
	opts      Options
	logger    Logger
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
}

// NewTransport validates opts and returns a Transport.
//
// Parameters:
//   - opts: connection options; zero fields take defaults
//   - logger: optional, nil discards
//
// Returns:
//   - *Transport: ready for pubsub.New
//   - error: ErrInvalidQoS if opts.QoS > 2
func NewTransport(opts Options, logger Logger) (*Transport, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &Transport{
		opts:      opts,
		logger:    logger,
		newClient: pahomqtt.NewClient,
	}, nil
}

// Open connects to the broker and returns the live session.
//
// Messages and connection loss are reported to sink from paho's goroutines.
// Cancelling ctx abandons the CONNECT exchange.
func (t *Transport) Open(ctx context.Context, cfg pubsub.Config, sink pubsub.Sink) (pubsub.Conn, error) {
	co, err := buildClientOptions(cfg, t.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	s := &session{
		ns:     Namespace(cfg.Namespace),
		qos:    t.opts.QoS,
		sink:   sink,
		logger: t.logger,
		done:   make(chan struct{}),
	}
	co.SetDefaultPublishHandler(s.handleMessage)
	co.SetConnectionLostHandler(s.handleConnectionLost)

	s.client = t.newClient(co)
	token := s.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		s.client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	t.logger.Debug("mqtt session open", "broker", co.Servers[0].String(), "client_id", co.ClientID)
	return s, nil
}

// session is one open paho connection.
type session struct {
	client pahomqtt.Client
	ns     Namespace
	qos    byte
	sink   pubsub.Sink
	logger Logger

	wg        sync.WaitGroup
	done      chan struct{}
	closeOnce sync.Once
}

// Send issues SUBSCRIBE or UNSUBSCRIBE and returns immediately. The broker's
// answer is reported to the sink from a separate goroutine.
func (s *session) Send(frame pubsub.Frame) error {
	select {
	case <-s.done:
		return ErrNotConnected
	default:
	}

	topic := s.ns.Qualify(frame.Topic)
	var token pahomqtt.Token
	switch frame.Kind {
	case pubsub.FrameSubscribe:
		// nil callback routes messages to the default publish handler.
		token = s.client.Subscribe(topic, s.qos, nil)
	case pubsub.FrameUnsubscribe:
		token = s.client.Unsubscribe(topic)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownFrame, frame.Kind)
	}

	s.wg.Add(1)
	go s.await(token, frame, topic)
	return nil
}

// await reports the outcome of token as an ack or nack for frame.
func (s *session) await(token pahomqtt.Token, frame pubsub.Frame, topic string) {
	defer s.wg.Done()

	select {
	case <-token.Done():
	case <-s.done:
		return
	}

	err := token.Error()
	if err == nil && frame.Kind == pubsub.FrameSubscribe {
		err = subackError(token, topic)
	}
	if err != nil {
		sentinel := ErrSubscribeFailed
		if frame.Kind == pubsub.FrameUnsubscribe {
			sentinel = ErrUnsubscribeFailed
		}
		s.sink(pubsub.Inbound{
			Kind:           pubsub.InboundNack,
			CorrelationKey: frame.CorrelationKey,
			Topic:          frame.Topic,
			Err:            fmt.Errorf("%w: %w", sentinel, err),
		})
		return
	}

	s.sink(pubsub.Inbound{
		Kind:           pubsub.InboundAck,
		CorrelationKey: frame.CorrelationKey,
		Topic:          frame.Topic,
	})
}

// subackError inspects the SUBACK return code; paho completes a rejected
// subscription without an error.
func subackError(token pahomqtt.Token, topic string) error {
	st, ok := token.(*pahomqtt.SubscribeToken)
	if !ok {
		return nil
	}
	if code, found := st.Result()[topic]; found && code == subackFailure {
		return fmt.Errorf("broker refused subscription to %q", topic)
	}
	return nil
}

func (s *session) handleMessage(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.sink(pubsub.Inbound{
		Kind:    pubsub.InboundMessage,
		Topic:   s.ns.Strip(msg.Topic()),
		Payload: msg.Payload(),
	})
}

func (s *session) handleConnectionLost(_ pahomqtt.Client, err error) {
	s.logger.Warn("mqtt connection lost", "error", err)
	s.sink(pubsub.Inbound{
		Kind: pubsub.InboundClosed,
		Err:  fmt.Errorf("%w: %w", ErrConnectionLost, err),
	})
}

// Close disconnects and waits for outstanding acknowledgment waiters.
// Safe to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.client.Disconnect(defaultDisconnectQuiesce)
		s.wg.Wait()
	})
	return nil
}
