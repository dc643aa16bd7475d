package appointment

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	redisclient "github.com/hackgods/clinic-appointment-gateway/internal/redis"
	"github.com/hackgods/clinic-appointment-gateway/internal/transport"
)

const appointmentsPath = "appointments"

// DefaultAppointmentDuration is applied to drafts that carry no end time.
const DefaultAppointmentDuration = 30 * time.Minute

// placeholderIDs are values UI routes use for records that do not exist yet.
var placeholderIDs = map[string]bool{
	"new":       true,
	"undefined": true,
	"null":      true,
}

// Transport is the clinic API as the gateway sees it.
type Transport interface {
	Get(ctx context.Context, path string, query url.Values) (*transport.Response, error)
	Post(ctx context.Context, path string, body any) (*transport.Response, error)
	Put(ctx context.Context, path string, body any) (*transport.Response, error)
	Delete(ctx context.Context, path string) (*transport.Response, error)
}

// Service is the appointment data gateway. Every operation returns either data
// or a *ServiceError; nothing else reaches the caller.
//
// Identical list requests issued concurrently are not coalesced: each one that
// misses the cache makes its own call to the clinic API.
type Service struct {
	transport       Transport
	resolver        *ClinicResolver
	cache           *ListCache
	logger          *zap.Logger
	metrics         *Metrics
	events          EventRecorder
	locker          redisclient.Locker
	now             func() time.Time
	cacheTTL        time.Duration
	defaultDuration time.Duration
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) { s.events = r }
}

// WithLocker serializes creates for the same clinic, doctor and start time.
func WithLocker(l redisclient.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// WithCache supplies the list cache, letting callers own and inspect it.
func WithCache(c *ListCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithDefaultDuration(d time.Duration) Option {
	return func(s *Service) { s.defaultDuration = d }
}

func NewService(t Transport, resolver *ClinicResolver, opts ...Option) *Service {
	s := &Service{
		transport:       t,
		resolver:        resolver,
		logger:          zap.NewNop(),
		now:             time.Now,
		cacheTTL:        DefaultCacheTTL,
		defaultDuration: DefaultAppointmentDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = NewClinicResolver(s.logger)
	}
	if s.cache == nil {
		s.cache = NewListCache(s.cacheTTL, s.now)
	}
	return s
}

// ResolveClinicID looks the active clinic up in the configured sources.
func (s *Service) ResolveClinicID(ctx context.Context) string {
	return s.resolver.Resolve(ctx)
}

// Invalidate drops the cached list result.
func (s *Service) Invalidate() {
	s.cache.Invalidate()
}

// ListAppointments returns the appointments matching params, served from the
// cache when the previous list call had the same clinic and parameters and is
// younger than the cache TTL. A 404 from the clinic API is an empty result.
func (s *Service) ListAppointments(ctx context.Context, params QueryParams) ([]NormalizedAppointment, error) {
	effective := params.Clone()
	clinicID := effective[ParamClinicID]
	if clinicID == "" {
		clinicID = s.resolver.Resolve(ctx)
		if clinicID != "" {
			effective[ParamClinicID] = clinicID
		} else {
			s.logger.Warn("listing appointments without a clinic identifier")
		}
	}

	if data, ok := s.cache.Lookup(clinicID, effective); ok {
		s.metrics.ObserveCache(true)
		s.logger.Debug("appointment list served from cache",
			zap.String("clinic_id", clinicID),
			zap.Int("count", len(data)),
		)
		return data, nil
	}
	s.metrics.ObserveCache(false)

	gen := s.cache.Generation()
	resp, err := s.transport.Get(ctx, appointmentsPath, effective.Values())
	s.metrics.ObserveTransport("list", err)
	if err != nil {
		if responseStatus(err) == 404 {
			empty := []NormalizedAppointment{}
			s.store(gen, clinicID, effective, empty)
			return empty, nil
		}
		return nil, s.fail(ctx, "list", classify(err, kindList))
	}

	raws, err := decodeList(resp.Data)
	if err != nil {
		return nil, s.fail(ctx, "list", classify(err, kindList))
	}

	data := NormalizeAll(raws)
	s.store(gen, clinicID, effective, data)
	return data, nil
}

// store caches a list result unless a write invalidated the cache while the
// request was in flight. The caller still receives the result.
func (s *Service) store(gen uint64, clinicID string, params QueryParams, data []NormalizedAppointment) {
	if !s.cache.StoreAt(gen, clinicID, params, data) {
		s.logger.Debug("list result fetched before an invalidation, not cached",
			zap.String("clinic_id", clinicID),
		)
	}
}

// GetAppointmentByID fetches one appointment. Single reads bypass the list cache.
func (s *Service) GetAppointmentByID(ctx context.Context, id string) (NormalizedAppointment, error) {
	if se := checkID(id); se != nil {
		return NormalizedAppointment{}, s.fail(ctx, "get", se)
	}

	resp, err := s.transport.Get(ctx, appointmentPath(id), nil)
	s.metrics.ObserveTransport("get", err)
	if err != nil {
		return NormalizedAppointment{}, s.fail(ctx, "get", classify(err, kindSingle))
	}

	raw, err := decodeOne(resp.Data)
	if err != nil {
		return NormalizedAppointment{}, s.fail(ctx, "get", classify(err, kindSingle))
	}
	return Normalize(raw), nil
}

func (s *Service) fail(ctx context.Context, operation string, se *ServiceError) error {
	s.metrics.ObserveError(operation, se)
	s.logger.Warn("appointment gateway error",
		zap.String("operation", operation),
		zap.String("request_id", requestIDFrom(ctx)),
		zap.Int("status_code", se.StatusCode),
		zap.String("message", se.Message),
		zap.String("details", se.Details),
	)
	return se
}

func (s *Service) logEvent(ctx context.Context, eventType, appointmentID, clinicID string, payload map[string]any) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		ClinicID:      clinicID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := s.events.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event_type", eventType),
			zap.String("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}

func checkID(id string) *ServiceError {
	id = strings.TrimSpace(id)
	if id == "" || placeholderIDs[strings.ToLower(id)] {
		return validationError(MsgInvalidIdentifier, "appointment id is required")
	}
	return nil
}

func appointmentPath(id string) string {
	return appointmentsPath + "/" + url.PathEscape(strings.TrimSpace(id))
}

var errMalformedBody = errors.New("malformed appointment payload")

// decodeList accepts a bare array or an object wrapping it under
// "appointments" or "data". An empty body is an empty list.
func decodeList(data []byte) ([]RawAppointment, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	if data[0] == '[' {
		var out []RawAppointment
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, errors.Join(errMalformedBody, err)
		}
		return out, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, errors.Join(errMalformedBody, err)
	}
	for _, key := range []string{"appointments", "data"} {
		inner := bytes.TrimSpace(wrapper[key])
		if len(inner) > 0 && inner[0] == '[' {
			return decodeList(inner)
		}
	}
	return nil, errMalformedBody
}

// decodeOne accepts a bare object or one wrapped under "appointment" or "data".
func decodeOne(data []byte) (RawAppointment, error) {
	var raw RawAppointment
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return raw, errMalformedBody
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return raw, errors.Join(errMalformedBody, err)
	}
	if raw.ID != "" {
		return raw, nil
	}
	for _, key := range []string{"appointment", "data"} {
		inner := bytes.TrimSpace(raw.Fields[key])
		if len(inner) > 0 && inner[0] == '{' {
			return decodeOne(inner)
		}
	}
	return raw, nil
}

type requestIDKey struct{}

// WithRequestID tags ctx so gateway logs can be correlated with the HTTP request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
