package appointment

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-gateway/internal/identity"
)

// ClinicSource is one place a clinic identifier may be found.
type ClinicSource interface {
	ClinicID(ctx context.Context) (string, error)
}

type ClinicSourceFunc func(ctx context.Context) (string, error)

func (f ClinicSourceFunc) ClinicID(ctx context.Context) (string, error) { return f(ctx) }

// ClinicResolver asks its sources in order and returns the first non-empty answer.
// A failing source counts as "not found".
type ClinicResolver struct {
	sources []ClinicSource
	logger  *zap.Logger
}

func NewClinicResolver(logger *zap.Logger, sources ...ClinicSource) *ClinicResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClinicResolver{sources: sources, logger: logger}
}

// NewStoreClinicResolver reads clinicData, then userData, then defaultClinicId.
func NewStoreClinicResolver(store identity.Store, logger *zap.Logger) *ClinicResolver {
	return NewClinicResolver(logger,
		identity.ClinicDataSource{Store: store},
		identity.UserDataSource{Store: store},
		identity.DefaultClinicSource{Store: store},
	)
}

func (r *ClinicResolver) Resolve(ctx context.Context) string {
	for i, src := range r.sources {
		id, err := safeLookup(ctx, src)
		if err != nil {
			r.logger.Debug("clinic source failed", zap.Int("source", i), zap.Error(err))
			continue
		}
		if id = strings.TrimSpace(id); id != "" {
			return id
		}
	}
	return ""
}

func safeLookup(ctx context.Context, src ClinicSource) (id string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("clinic source panicked: %v", rec)
		}
	}()
	return src.ClinicID(ctx)
}
