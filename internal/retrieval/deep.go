package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	deepService      = "mindcure.retrieval.v1.DeepRetriever"
	deepQueryStream  = "/" + deepService + "/QueryStream"
	defaultDeepAddr  = "localhost:50061"
	deepStreamPrefix = "deep retriever"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errDeepResponse             = errors.New("deep retriever returned error")
	errNotServing               = errors.New("deep retriever not serving")
)

var queryStreamDesc = &grpc.StreamDesc{StreamName: "QueryStream", ServerStreams: true}

// DeepConfig holds configuration for the reasoning agent client.
type DeepConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// Deep answers through the external multi-tool reasoning agent.
//
// Messages are google.protobuf.Struct values: the request carries
// {"query": string}, each streamed response carries {"type": "partial" |
// "final" | "error", "content": string, "tools_used": [string]}.
type Deep struct {
	conn    *grpc.ClientConn
	addr    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDeep connects to the reasoning agent and verifies it is serving.
func NewDeep(ctx context.Context, cfg DeepConfig, logger *slog.Logger) (*Deep, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		cfg.Address = defaultDeepAddr
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = 2 * time.Minute
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = 10 * time.Second
	}

	conn, err := grpc.NewClient(cfg.Address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", cfg.Address, err)
	}

	// Connect now so a bad endpoint fails initialization instead of the first query.
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		closeConn(conn, logger)
		return nil, fmt.Errorf("%s at %s not ready: %w", deepStreamPrefix, cfg.Address, err)
	}
	if err := checkServing(connectCtx, conn); err != nil {
		closeConn(conn, logger)
		return nil, err
	}

	logger.Info("connected to deep retriever", "address", cfg.Address)
	return &Deep{conn: conn, addr: cfg.Address, timeout: cfg.RequestTimeout, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

func checkServing(ctx context.Context, conn *grpc.ClientConn) error {
	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: deepService})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: %s", errNotServing, resp.GetStatus())
	}
	return nil
}

func closeConn(conn *grpc.ClientConn, logger *slog.Logger) {
	if err := conn.Close(); err != nil {
		logger.Warn("failed to close gRPC connection", "error", err)
	}
}

// Close closes the gRPC connection.
func (d *Deep) Close() {
	if d.conn != nil {
		closeConn(d.conn, d.logger)
	}
}

// Health reports whether the agent is serving.
func (d *Deep) Health(ctx context.Context) error {
	return checkServing(ctx, d.conn)
}

// Stream yields answer fragments as the agent produces them.
func (d *Deep) Stream(ctx context.Context, query string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		req, err := structpb.NewStruct(map[string]any{"query": query})
		if err != nil {
			yield("", fmt.Errorf("build request: %w", err))
			return
		}
		stream, err := d.conn.NewStream(ctx, queryStreamDesc, deepQueryStream)
		if err != nil {
			yield("", fmt.Errorf("open stream: %w", err))
			return
		}
		if err := stream.SendMsg(req); err != nil {
			yield("", fmt.Errorf("send query: %w", err))
			return
		}
		if err := stream.CloseSend(); err != nil {
			yield("", fmt.Errorf("close send: %w", err))
			return
		}

		for {
			resp := &structpb.Struct{}
			err := stream.RecvMsg(resp)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("%s stream error: %w", deepStreamPrefix, err))
				return
			}

			fields := resp.GetFields()
			content := fields["content"].GetStringValue()
			switch fields["type"].GetStringValue() {
			case "error":
				if content == "" {
					yield("", errDeepResponse)
					return
				}
				yield("", fmt.Errorf("%w: %s", errDeepResponse, content))
				return
			case "final":
				if tools := fields["tools_used"].GetListValue(); tools != nil {
					d.logger.Debug("deep retriever finished", "tools_used", len(tools.GetValues()))
				}
			}
			if content == "" {
				continue
			}
			if !yield(content, nil) {
				return
			}
		}
	}
}

// Query implements Retriever by joining the streamed fragments.
func (d *Deep) Query(ctx context.Context, query string) (string, error) {
	var b strings.Builder
	for part, err := range d.Stream(ctx, query) {
		if err != nil {
			return "", err
		}
		b.WriteString(part)
	}
	answer := strings.TrimSpace(b.String())
	if answer == "" {
		return "", errDeepResponse
	}
	return answer, nil
}

// NewDeepFactory returns a Factory that connects to the agent at cfg.Address.
func NewDeepFactory(cfg DeepConfig, logger *slog.Logger) Factory {
	return func(ctx context.Context) (Retriever, error) {
		if cfg.Address == "" {
			return nil, fmt.Errorf("no agent address: %w", ErrUnavailable)
		}
		d, err := NewDeep(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
