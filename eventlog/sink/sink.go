package sink

import (
	"errors"
	"strings"

	"github.com/oprelay/oprelay/config"
	"github.com/oprelay/oprelay/eventlog"
	"github.com/oprelay/oprelay/eventlog/sink/kv"
	"github.com/oprelay/oprelay/eventlog/sink/null"
	"github.com/oprelay/oprelay/eventlog/sink/psql"
)

// EventSinksFromConfig constructs a slice of eventlog.EventSink using the
// provided configuration.
func EventSinksFromConfig(cfg *config.Config, dbProvider config.DBProvider, chainID string) ([]eventlog.EventSink, error) {
	if len(cfg.EventLog.Sinks) == 0 {
		return []eventlog.EventSink{null.NewEventSink()}, nil
	}

	// check for duplicated sinks
	sinks := map[string]struct{}{}
	for _, s := range cfg.EventLog.Sinks {
		sl := strings.ToLower(s)
		if _, ok := sinks[sl]; ok {
			return nil, errors.New("found duplicated sinks, please check the eventlog section in the config.toml")
		}
		sinks[sl] = struct{}{}
	}
	eventSinks := []eventlog.EventSink{}
	for k := range sinks {
		switch eventlog.EventSinkType(k) {
		case eventlog.NULL:
			// When we see null in the config, the eventsinks will be reset with the
			// nullEventSink.
			return []eventlog.EventSink{null.NewEventSink()}, nil

		case eventlog.KV:
			store, err := dbProvider(&config.DBContext{ID: "eventlog", Config: cfg})
			if err != nil {
				return nil, err
			}

			eventSinks = append(eventSinks, kv.NewEventSink(store))

		case eventlog.PSQL:
			conn := cfg.EventLog.PsqlConn
			if conn == "" {
				return nil, errors.New("the psql connection settings cannot be empty")
			}

			es, err := psql.NewEventSink(conn, chainID)
			if err != nil {
				return nil, err
			}
			eventSinks = append(eventSinks, es)
		default:
			return nil, errors.New("unsupported event sink type")
		}
	}
	return eventSinks, nil
}
