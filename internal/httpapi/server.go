package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"marketclock/internal/calendar"
	"marketclock/internal/domain"
	"marketclock/internal/history"
	"marketclock/internal/marketdb"
	"marketclock/internal/observability/metrics"
	"marketclock/internal/util"
)

// Calendars resolves trading calendars by market hours key.
// *marketdb.Holder satisfies it.
type Calendars interface {
	CalendarForKey(key string) (*calendar.TradingCalendar, error)
	Keys() []string
}

// CalendarServer serves the calendar HTTP API.
type CalendarServer struct {
	calendars Calendars
	history   *history.Provider
	metrics   *metrics.Metrics
	log       *slog.Logger
	now       func() time.Time
}

// NewCalendarServer creates a new calendar HTTP server. hist and m may be
// nil, which disables the bar history and metrics routes.
func NewCalendarServer(calendars Calendars, hist *history.Provider, m *metrics.Metrics, log *slog.Logger) *CalendarServer {
	if log == nil {
		log = slog.Default()
	}
	return &CalendarServer{
		calendars: calendars,
		history:   hist,
		metrics:   m,
		log:       log,
		now:       time.Now,
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *CalendarServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/markets", s.handleMarkets)
	mux.HandleFunc("GET /api/calendar/{key}", s.handleCalendar)
	mux.HandleFunc("GET /api/calendar/{key}/open", s.handleOpen)
	mux.HandleFunc("GET /api/calendar/{key}/date-open", s.handleDateOpen)
	mux.HandleFunc("GET /api/calendar/{key}/next-open", s.handleNextOpen)
	mux.HandleFunc("GET /api/calendar/{key}/next-close", s.handleNextClose)
	mux.HandleFunc("GET /api/calendar/{key}/start-time", s.handleStartTime)
	if s.history != nil {
		mux.HandleFunc("GET /api/bars/{market}/{symbol}", s.handleBars)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *CalendarServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// statusFor maps calendar and database errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, calendar.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, calendar.ErrNotFound), errors.Is(err, marketdb.ErrEntryNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// fail records err against op and writes the mapped error response.
func (s *CalendarServer) fail(w http.ResponseWriter, op string, start time.Time, err error) {
	s.metrics.Observe(op, start, err)
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("request failed", "op", op, "error", err)
	}
	writeError(w, code, err.Error())
}

// ---------------------------------------------------------------------------
// Query parameter helpers
// ---------------------------------------------------------------------------

// timeParam parses an RFC 3339 query parameter, defaulting to now.
func (s *CalendarServer) timeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return s.now(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", calendar.ErrInvalidArgument, name, err)
	}
	return t, nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", calendar.ErrInvalidArgument, name, err)
	}
	return b, nil
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, fmt.Errorf("%w: %s is required", calendar.ErrInvalidArgument, name)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", calendar.ErrInvalidArgument, name)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *CalendarServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *CalendarServer) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, MarketsResponse{Markets: s.calendars.Keys()})
}

func (s *CalendarServer) handleCalendar(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const op = "Calendar"
	key := r.PathValue("key")
	cal, err := s.calendars.CalendarForKey(key)
	if err != nil {
		s.fail(w, op, start, err)
		return
	}
	s.metrics.Observe(op, start, nil)

	resp := CalendarResponse{
		Key:        key,
		TimeZone:   cal.Location().String(),
		AlwaysOpen: cal.IsAlwaysOpen(),
		Holidays:   []string{},
	}
	for _, h := range cal.Holidays() {
		resp.Holidays = append(resp.Holidays, h.Format(util.DateLayout))
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		sched, _ := cal.Schedule(day)
		d := DayJSON{Day: day.String(), Segments: []SegmentJSON{}}
		for _, seg := range sched.Segments() {
			d.Segments = append(d.Segments, SegmentJSON{
				Start: util.FormatTimeOfDay(seg.Start),
				End:   util.FormatTimeOfDay(seg.End),
				State: seg.Kind.String(),
			})
		}
		resp.Days = append(resp.Days, d)
	}
	writeJSON(w, resp)
}

func (s *CalendarServer) handleOpen(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	op := "IsOpen"
	key := r.PathValue("key")

	open, err := func() (bool, error) {
		cal, err := s.calendars.CalendarForKey(key)
		if err != nil {
			return false, err
		}
		at, err := s.timeParam(r, "at")
		if err != nil {
			return false, err
		}
		ext, err := boolParam(r, "extended")
		if err != nil {
			return false, err
		}
		if r.URL.Query().Get("end") == "" {
			return cal.IsOpen(at, ext), nil
		}
		op = "IsOpenBetween"
		end, err := s.timeParam(r, "end")
		if err != nil {
			return false, err
		}
		return cal.IsOpenBetween(at, end, ext), nil
	}()
	if err != nil {
		s.fail(w, op, start, err)
		return
	}
	s.metrics.Observe(op, start, nil)
	writeJSON(w, OpenResponse{Key: key, Open: open})
}

func (s *CalendarServer) handleDateOpen(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const op = "IsDateOpen"
	key := r.PathValue("key")

	cal, err := s.calendars.CalendarForKey(key)
	if err != nil {
		s.fail(w, op, start, err)
		return
	}
	at, err := s.timeParam(r, "at")
	if err != nil {
		s.fail(w, op, start, err)
		return
	}
	s.metrics.Observe(op, start, nil)
	writeJSON(w, OpenResponse{Key: key, Open: cal.IsDateOpen(at)})
}

func (s *CalendarServer) handleNextOpen(w http.ResponseWriter, r *http.Request) {
	s.handleNextBoundary(w, r, "NextMarketOpen", (*calendar.TradingCalendar).NextMarketOpen)
}

func (s *CalendarServer) handleNextClose(w http.ResponseWriter, r *http.Request) {
	s.handleNextBoundary(w, r, "NextMarketClose", (*calendar.TradingCalendar).NextMarketClose)
}

type boundaryQuery func(cal *calendar.TradingCalendar, t time.Time, includeExtended bool) (time.Time, error)

func (s *CalendarServer) handleNextBoundary(w http.ResponseWriter, r *http.Request, op string, next boundaryQuery) {
	start := time.Now()
	key := r.PathValue("key")

	t, err := func() (time.Time, error) {
		cal, err := s.calendars.CalendarForKey(key)
		if err != nil {
			return time.Time{}, err
		}
		after, err := s.timeParam(r, "after")
		if err != nil {
			return time.Time{}, err
		}
		ext, err := boolParam(r, "extended")
		if err != nil {
			return time.Time{}, err
		}
		return next(cal, after, ext)
	}()
	if err != nil {
		s.fail(w, op, start, err)
		return
	}
	s.metrics.Observe(op, start, nil)
	writeJSON(w, TimeResponse{Key: key, Time: t.Format(time.RFC3339Nano)})
}

func (s *CalendarServer) handleStartTime(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const op = "StartTimeForTradeBars"
	key := r.PathValue("key")

	t, err := func() (time.Time, error) {
		cal, err := s.calendars.CalendarForKey(key)
		if err != nil {
			return time.Time{}, err
		}
		end, err := s.timeParam(r, "end")
		if err != nil {
			return time.Time{}, err
		}
		bar, err := time.ParseDuration(r.URL.Query().Get("bar"))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bar: %v", calendar.ErrInvalidArgument, err)
		}
		if bar < calendar.MinServedBarSize {
			return time.Time{}, fmt.Errorf("%w: bar %s is below %s", calendar.ErrInvalidArgument, bar, calendar.MinServedBarSize)
		}
		count, err := intParam(r, "count")
		if err != nil {
			return time.Time{}, err
		}
		ext, err := boolParam(r, "extended")
		if err != nil {
			return time.Time{}, err
		}
		return cal.StartTimeForTradeBars(end, bar, count, ext)
	}()
	if err != nil {
		s.fail(w, op, start, err)
		return
	}
	s.metrics.Observe(op, start, nil)
	writeJSON(w, StartTimeResponse{Key: key, Start: t.Format(time.RFC3339Nano)})
}

func (s *CalendarServer) handleBars(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const op = "HistoryBars"
	q := r.URL.Query()

	res, err := func() (history.Result, error) {
		st, err := domain.ParseSecurityType(q.Get("type"))
		if err != nil {
			return history.Result{}, fmt.Errorf("%w: %v", calendar.ErrInvalidArgument, err)
		}
		resolution, err := domain.ParseResolution(q.Get("resolution"))
		if err != nil {
			return history.Result{}, fmt.Errorf("%w: %v", calendar.ErrInvalidArgument, err)
		}
		end, err := s.timeParam(r, "end")
		if err != nil {
			return history.Result{}, err
		}
		count, err := intParam(r, "count")
		if err != nil {
			return history.Result{}, err
		}
		ext, err := boolParam(r, "extended")
		if err != nil {
			return history.Result{}, err
		}
		return s.history.Bars(r.Context(), history.Request{
			SecurityType: st,
			Market:       domain.Market(r.PathValue("market")),
			Symbol:       r.PathValue("symbol"),
			Resolution:   resolution,
			End:          end,
			Count:        count,
			Extended:     ext,
		})
	}()
	if err != nil {
		s.fail(w, op, start, err)
		return
	}
	s.metrics.Observe(op, start, nil)

	resp := BarsResponse{
		Symbol: r.PathValue("symbol"),
		Start:  res.Start.Format(time.RFC3339Nano),
		End:    res.End.Format(time.RFC3339Nano),
		Bars:   make([]BarJSON, 0, len(res.Bars)),
	}
	for _, b := range res.Bars {
		resp.Bars = append(resp.Bars, BarJSON{
			Time:       b.Timestamp.Format(time.RFC3339Nano),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}
	writeJSON(w, resp)
}
