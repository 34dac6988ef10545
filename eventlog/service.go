package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/oprelay/oprelay/eventbus"
	"github.com/oprelay/oprelay/libs/log"
	"github.com/oprelay/oprelay/libs/service"
	"github.com/oprelay/oprelay/types"
)

// Service subscribes to bridge lifecycle events and indexes them into the
// configured sinks.
type Service struct {
	service.BaseService
	logger log.Logger

	sinks    []EventSink
	eventBus *eventbus.EventBus
	metrics  *Metrics

	sub *eventbus.Subscription
}

// ServiceArgs are arguments for constructing a new eventlog service.
type ServiceArgs struct {
	Sinks    []EventSink
	EventBus *eventbus.EventBus
	Metrics  *Metrics
	Logger   log.Logger
}

// NewService constructs a new eventlog service from the given arguments.
func NewService(args ServiceArgs) *Service {
	is := &Service{
		logger:   args.Logger,
		sinks:    args.Sinks,
		eventBus: args.EventBus,
		metrics:  args.Metrics,
	}
	if is.metrics == nil {
		is.metrics = NopMetrics()
	}
	is.BaseService = *service.NewBaseService(args.Logger, "EventLog", is)
	return is
}

// OnStart implements part of service.Service. It registers for bridge events
// and begins indexing them.
//
// The subscription is unbuffered, so the bridge blocks on each event until
// every sink has indexed it. That keeps the log complete: a slow sink slows
// the bridge down rather than silently dropping its events.
func (is *Service) OnStart(ctx context.Context) error {
	sub, err := is.eventBus.Subscribe(0,
		types.EventSubmissionValue,
		types.EventFraudValue,
		types.EventFinalizeValue,
		types.EventPruneValue,
	)
	if err != nil {
		return err
	}
	is.sub = sub

	go is.run(sub)
	return nil
}

// OnStop implements part of service.Service. It cancels the event
// subscription and closes the sinks.
func (is *Service) OnStop() {
	if is.sub != nil {
		err := is.eventBus.Unsubscribe(is.sub.ID())
		// The bus discards its subscriptions when it stops first.
		if err != nil && !errors.Is(err, eventbus.ErrSubscriptionNotFound) {
			is.logger.Error("failed to unsubscribe from event bus", "err", err)
		}
	}
	for _, sink := range is.sinks {
		if err := sink.Stop(); err != nil {
			is.logger.Error("failed to close eventsink", "eventsink", sink.Type(), "err", err)
		}
	}
}

func (is *Service) run(sub *eventbus.Subscription) {
	for {
		select {
		case msg := <-sub.Out():
			is.index(msg.Data())
		case <-sub.Canceled():
			if err := sub.Err(); !errors.Is(err, eventbus.ErrUnsubscribed) && !errors.Is(err, eventbus.ErrStopped) {
				is.logger.Error("event subscription terminated", "err", err)
			}
			return
		}
	}
}

// index fans one event out to every sink. Sink failures are logged and
// counted but do not stop the other sinks.
func (is *Service) index(data types.EventData) {
	start := time.Now()

	g := taskgroup.New(nil)
	for _, sink := range is.sinks {
		sink := sink
		g.Go(func() error {
			if err := indexOne(sink, data); err != nil {
				is.metrics.IndexErrors.With("sink", string(sink.Type())).Add(1)
				is.logger.Error("failed to index event",
					"eventsink", sink.Type(), "event", data.TypeTag(), "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	is.metrics.EventsIndexed.With("event", data.TypeTag()).Add(1)
	is.metrics.IndexSeconds.Observe(time.Since(start).Seconds())
}

func indexOne(sink EventSink, data types.EventData) error {
	switch ev := data.(type) {
	case types.EventDataSubmission:
		return sink.IndexSubmission(ev)
	case types.EventDataFraud:
		return sink.IndexFraud(ev)
	case types.EventDataFinalize:
		return sink.IndexFinalize(ev)
	case types.EventDataPrune:
		return sink.IndexPrune(ev)
	default:
		return fmt.Errorf("unknown event type %q", data.TypeTag())
	}
}
