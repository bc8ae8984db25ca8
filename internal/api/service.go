package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"marketclock/internal/calendar"
	"marketclock/internal/domain"
	"marketclock/internal/marketdb"
	"marketclock/internal/observability/metrics"
)

// Calendars resolves trading calendars by key or by security.
// *marketdb.Holder satisfies it.
type Calendars interface {
	CalendarForKey(key string) (*calendar.TradingCalendar, error)
	ExchangeHours(st domain.SecurityType, market domain.Market, symbol string) (*calendar.TradingCalendar, error)
}

// CalendarService implements CalendarServer over a set of calendars.
type CalendarService struct {
	calendars Calendars
	metrics   *metrics.Metrics
	log       *slog.Logger
}

var _ CalendarServer = (*CalendarService)(nil)

// NewCalendarService creates a CalendarService. m may be nil.
func NewCalendarService(calendars Calendars, m *metrics.Metrics, log *slog.Logger) *CalendarService {
	if log == nil {
		log = slog.Default()
	}
	return &CalendarService{calendars: calendars, metrics: m, log: log}
}

// IsOpen answers {"open": bool} for the instant "at", or for the interval
// ["at", "end") when "end" is set.
func (s *CalendarService) IsOpen(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(MethodIsOpen, in, func(cal *calendar.TradingCalendar, r request) (map[string]any, error) {
		at, err := r.instant("at")
		if err != nil {
			return nil, err
		}
		ext := r.flag("extended")
		if !r.has("end") {
			return map[string]any{"open": cal.IsOpen(at, ext)}, nil
		}
		end, err := r.instant("end")
		if err != nil {
			return nil, err
		}
		return map[string]any{"open": cal.IsOpenBetween(at, end, ext)}, nil
	})
}

// IsDateOpen answers {"open": bool} for the date of "at".
func (s *CalendarService) IsDateOpen(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(MethodIsDateOpen, in, func(cal *calendar.TradingCalendar, r request) (map[string]any, error) {
		at, err := r.instant("at")
		if err != nil {
			return nil, err
		}
		return map[string]any{"open": cal.IsDateOpen(at)}, nil
	})
}

// NextMarketOpen answers {"time": RFC 3339} with the first open strictly
// after "after".
func (s *CalendarService) NextMarketOpen(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(MethodNextMarketOpen, in, func(cal *calendar.TradingCalendar, r request) (map[string]any, error) {
		after, err := r.instant("after")
		if err != nil {
			return nil, err
		}
		t, err := cal.NextMarketOpen(after, r.flag("extended"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"time": t.Format(time.RFC3339Nano)}, nil
	})
}

// NextMarketClose answers {"time": RFC 3339} with the first close strictly
// after "after".
func (s *CalendarService) NextMarketClose(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(MethodNextMarketClose, in, func(cal *calendar.TradingCalendar, r request) (map[string]any, error) {
		after, err := r.instant("after")
		if err != nil {
			return nil, err
		}
		t, err := cal.NextMarketClose(after, r.flag("extended"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"time": t.Format(time.RFC3339Nano)}, nil
	})
}

// StartTimeForTradeBars answers {"start": RFC 3339} for "count" bars of
// "bar" (a Go duration such as "1m") ending at "end".
func (s *CalendarService) StartTimeForTradeBars(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.handle(MethodStartTimeForTradeBars, in, func(cal *calendar.TradingCalendar, r request) (map[string]any, error) {
		end, err := r.instant("end")
		if err != nil {
			return nil, err
		}
		bar, err := time.ParseDuration(r.str("bar"))
		if err != nil {
			return nil, fmt.Errorf("%w: bar: %v", calendar.ErrInvalidArgument, err)
		}
		if bar < calendar.MinServedBarSize {
			return nil, fmt.Errorf("%w: bar %s is below %s", calendar.ErrInvalidArgument, bar, calendar.MinServedBarSize)
		}
		count, err := r.integer("count")
		if err != nil {
			return nil, err
		}
		start, err := cal.StartTimeForTradeBars(end, bar, count, r.flag("extended"))
		if err != nil {
			return nil, err
		}
		return map[string]any{"start": start.Format(time.RFC3339Nano)}, nil
	})
}

type query func(cal *calendar.TradingCalendar, r request) (map[string]any, error)

// handle resolves the calendar, runs q and maps the result to gRPC.
func (s *CalendarService) handle(op string, in *structpb.Struct, q query) (*structpb.Struct, error) {
	start := time.Now()
	r := request{in.GetFields()}

	out, err := s.run(r, q)
	s.metrics.Observe(op, start, err)
	if err != nil {
		st := toStatus(err)
		if st.Code() == codes.Internal {
			s.log.Error("calendar query failed", "op", op, "error", err)
		}
		return nil, st.Err()
	}

	resp, err := structpb.NewStruct(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding response: %v", err)
	}
	return resp, nil
}

func (s *CalendarService) run(r request, q query) (map[string]any, error) {
	cal, err := s.resolve(r)
	if err != nil {
		return nil, err
	}
	return q(cal, r)
}

// resolve looks up the calendar by "key", or by "security_type", "market"
// and "symbol".
func (s *CalendarService) resolve(r request) (*calendar.TradingCalendar, error) {
	if key := r.str("key"); key != "" {
		return s.calendars.CalendarForKey(key)
	}
	st, err := domain.ParseSecurityType(r.str("security_type"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", calendar.ErrInvalidArgument, err)
	}
	market := r.str("market")
	if market == "" {
		return nil, fmt.Errorf("%w: key or market is required", calendar.ErrInvalidArgument)
	}
	symbol := r.str("symbol")
	if symbol == "" {
		symbol = marketdb.Wildcard
	}
	return s.calendars.ExchangeHours(st, domain.Market(market), symbol)
}

// toStatus maps calendar and database errors to gRPC status codes.
func toStatus(err error) *status.Status {
	switch {
	case errors.Is(err, calendar.ErrInvalidArgument):
		return status.New(codes.InvalidArgument, err.Error())
	case errors.Is(err, calendar.ErrNotFound), errors.Is(err, marketdb.ErrEntryNotFound):
		return status.New(codes.NotFound, err.Error())
	default:
		return status.New(codes.Internal, err.Error())
	}
}

// request reads typed fields from a structpb request.
type request struct {
	fields map[string]*structpb.Value
}

func (r request) has(name string) bool {
	_, ok := r.fields[name]
	return ok
}

func (r request) str(name string) string {
	return r.fields[name].GetStringValue()
}

func (r request) flag(name string) bool {
	return r.fields[name].GetBoolValue()
}

func (r request) instant(name string) (time.Time, error) {
	v := r.str(name)
	if v == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", calendar.ErrInvalidArgument, name)
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", calendar.ErrInvalidArgument, name, err)
	}
	return t, nil
}

func (r request) integer(name string) (int, error) {
	v, ok := r.fields[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", calendar.ErrInvalidArgument, name)
	}
	n := v.GetNumberValue()
	if n != math.Trunc(n) || n < 0 || n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %v", calendar.ErrInvalidArgument, name, n)
	}
	return int(n), nil
}
