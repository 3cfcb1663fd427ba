// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"memberledger/pkg/filestore"
)

// Options tunes the append service.
type Options struct {
	// Path of the ledger inside the store. Defaults to DefaultLedgerPath.
	Path string
	// StoreTimeout bounds each of the read and the write. Zero means no bound
	// beyond the caller's context.
	StoreTimeout time.Duration
	// EscapeFields quotes fields that contain commas, quotes or line breaks.
	EscapeFields bool
}

// service implements the Service interface.
type service struct {
	store   filestore.Store
	opts    Options
	logger  *zap.Logger
	tracer  trace.Tracer
	appends metric.Int64Counter
}

// NewService creates a new append service on top of store.
func NewService(store filestore.Store, opts Options, logger *zap.Logger) Service {
	if opts.Path == "" {
		opts.Path = DefaultLedgerPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	meter := otel.Meter("memberledger/membership")
	appends, err := meter.Int64Counter("memberledger.ledger.appends",
		metric.WithDescription("Ledger append attempts by outcome"))
	if err != nil {
		logger.Warn("failed to create append counter", zap.Error(err))
	}

	return &service{
		store:   store,
		opts:    opts,
		logger:  logger,
		tracer:  otel.Tracer("memberledger/membership"),
		appends: appends,
	}
}

// Append reads the ledger, adds one row and writes it back conditioned on the
// version it read. A concurrent change between the two calls yields
// ErrConflict; nothing is retried here.
func (s *service) Append(ctx context.Context, record MemberRecord) (*Ack, error) {
	ctx, span := s.tracer.Start(ctx, "membership.append",
		trace.WithAttributes(attribute.String("ledger.path", s.opts.Path)))
	defer span.End()

	content, version, err := s.read(ctx)
	if err != nil {
		s.record(ctx, "store_unavailable")
		span.RecordError(err)
		return nil, err
	}

	row, err := FormatRow(record, s.opts.EscapeFields)
	if err != nil {
		s.record(ctx, "store_unavailable")
		return nil, storeUnavailable("format row", err)
	}

	newVersion, err := s.write(ctx, appendRow(content, row), record.ChangeMessage(), version)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			s.record(ctx, "conflict")
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			s.logger.Info("ledger changed during append",
				zap.String("path", s.opts.Path),
				zap.String("expected_version", version),
			)
		} else {
			s.record(ctx, "store_unavailable")
			span.RecordError(err)
		}
		return nil, err
	}

	s.record(ctx, "ack")
	s.logger.Info("member appended",
		zap.String("path", s.opts.Path),
		zap.String("version", newVersion),
		zap.String("vorname", record.FirstName),
		zap.String("name", record.LastName),
		zap.Bool("created", version == ""),
	)

	return &Ack{
		Path:    s.opts.Path,
		Version: newVersion,
		Row:     row,
		Created: version == "",
	}, nil
}

// read returns the current content and version. A missing ledger reads as
// the header with no version, so the following write creates it.
func (s *service) read(ctx context.Context) ([]byte, string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	f, err := s.store.Get(ctx, s.opts.Path)
	if err != nil {
		if filestore.IsNotFound(err) {
			return []byte(LedgerHeader), "", nil
		}
		return nil, "", storeUnavailable("read ledger", err)
	}
	return f.Content, f.Version, nil
}

func (s *service) write(ctx context.Context, content []byte, message, version string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	newVersion, err := s.store.Put(ctx, s.opts.Path, content, message, version)
	if err != nil {
		if filestore.IsVersionMismatch(err) {
			return "", ErrConflict
		}
		return "", storeUnavailable("write ledger", err)
	}
	return newVersion, nil
}

func (s *service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

func (s *service) record(ctx context.Context, outcome string) {
	if s.appends == nil {
		return
	}
	s.appends.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
