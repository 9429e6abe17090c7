package grpcapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rafaeljc/vigil/internal/config"
	"github.com/rafaeljc/vigil/internal/ingest"
	"github.com/rafaeljc/vigil/internal/logger"
	"github.com/rafaeljc/vigil/internal/transaction"
	"github.com/rafaeljc/vigil/internal/validation"
)

// Dispatcher accepts validated batches; *ingest.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []*transaction.Event) (ingest.Result, error)
}

// Refresher queues an asynchronous rule refresh; *refresher.Service implements it.
type Refresher interface {
	RequestRefresh() bool
}

// API implements IngestionServer.
type API struct {
	dispatcher Dispatcher
	refresher  Refresher
}

func NewAPI(dispatcher Dispatcher, refresher Refresher) *API {
	validation.AssertNotNilInterface(dispatcher, "event dispatcher")
	validation.AssertNotNilInterface(refresher, "refresher")
	return &API{dispatcher: dispatcher, refresher: refresher}
}

// Register attaches the service to s.
func (a *API) Register(s *grpc.Server) {
	s.RegisterService(&ServiceDesc, a)
}

type ingestRequest struct {
	Events []*transaction.Event `json:"events"`
}

// IngestEvents validates and dispatches a batch. Amounts should be sent as
// strings; a Struct number is a double and may already have lost precision.
func (a *API) IngestEvents(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	log := logger.FromContext(ctx)

	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "request is not a valid struct")
	}
	var req ingestRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Warn("invalid ingest payload", slog.String("error", err.Error()))
		return nil, status.Errorf(codes.InvalidArgument, "invalid events payload: %v", err)
	}

	res, err := a.dispatcher.Dispatch(ctx, req.Events)
	if err != nil {
		return nil, batchStatus(err)
	}

	return structpb.NewStruct(map[string]any{
		"dispatched": res.Dispatched,
		"total":      res.Total,
	})
}

func batchStatus(err error) error {
	var eventErr *ingest.EventError
	switch {
	case errors.Is(err, ingest.ErrEmptyBatch), errors.Is(err, ingest.ErrBatchTooLarge), errors.As(err, &eventErr):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, "failed to dispatch events")
	}
}

// RefreshRules queues a refresh and returns immediately.
func (a *API) RefreshRules(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if !a.refresher.RequestRefresh() {
		logger.FromContext(ctx).Debug("refresh already pending")
	}
	return structpb.NewStruct(map[string]any{"status": "refresh triggered"})
}

// NewServer builds a grpc.Server configured from cfg with the logging and
// metrics interceptors installed.
func NewServer(cfg *config.GRPCServerConfig, base *slog.Logger) *grpc.Server {
	validation.AssertNotNil(cfg, "grpc config")

	return grpc.NewServer(
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgBytes),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             cfg.KeepaliveTime,
			Timeout:          cfg.KeepaliveTimeout,
			MaxConnectionAge: cfg.MaxConnectionAge,
		}),
		grpc.ChainUnaryInterceptor(
			RequestLoggerInterceptor(base),
			MetricsInterceptor(),
		),
	)
}

// Addr is the listen address for cfg.
func Addr(cfg *config.GRPCServerConfig) string {
	return fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
}
