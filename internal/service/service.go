package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"sarisari/backend/internal/domain"
	"sarisari/backend/internal/report"
	"sarisari/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	reports  *report.Engine
	validate *validator.Validate
	loc      *time.Location
	now      func() time.Time
	logger   logrus.FieldLogger
}

func New(repo store.Repository, reports *report.Engine, loc *time.Location, logger logrus.FieldLogger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if reports == nil {
		reports = report.NewEngine(nil, 0, logger)
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	return &Service{
		repo:     repo,
		reports:  reports,
		validate: validate,
		loc:      loc,
		now:      time.Now,
		logger:   logger.WithField("module", "service"),
	}
}

// Now is the current tenant-local time.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) today() string {
	return s.Now().Format(domain.DateLayout)
}

// check runs the struct validator and folds failures into ErrValidation with a
// field:tag description.
func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	fields := ProcessValidationErrors(validationErrors)
	parts := make([]string, 0, len(fields))
	for field, tag := range fields {
		parts = append(parts, field+":"+tag)
	}
	sort.Strings(parts)
	return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(parts, ", "))
}

func ProcessValidationErrors(validationErrors validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		out[ve.Namespace()] = ve.Tag()
	}
	return out
}

// changed drops the cached report projection of a tenant after a committed mutation.
func (s *Service) changed(ctx context.Context, tenantID string) {
	s.reports.Invalidate(ctx, tenantID)
}

func requireName(name string, what string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: %s name is required", store.ErrValidation, what)
	}
	return name, nil
}

func validDate(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, nil
	}
	if _, err := time.Parse(domain.DateLayout, trimmed); err != nil {
		return nil, fmt.Errorf("%w: date %q must be YYYY-MM-DD", store.ErrValidation, *value)
	}
	return &trimmed, nil
}

// optionalID treats 0 as "no reference", matching clients that send 0 for an empty select.
func optionalID(id *int64) *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	v := *id
	return &v
}
