package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/miradorstack/mirador-resilience/internal/engine"
	"github.com/miradorstack/mirador-resilience/internal/extractors"
	"github.com/miradorstack/mirador-resilience/internal/models"
)

// Client calls a remote ResilienceMonitor service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client for target. Plaintext transport is used unless opts override it.
func NewClient(target string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Status returns the flat status map.
func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod("GetStatus"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// History returns up to n condensed snapshots.
func (c *Client) History(ctx context.Context, n int) ([]models.HistoryEntry, error) {
	out := &structpb.ListValue{}
	if err := c.conn.Invoke(ctx, fullMethod("GetHistory"), wrapperspb.Int32(int32(n)), out); err != nil {
		return nil, err
	}
	var entries []models.HistoryEntry
	if err := decodeMessage(out, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Statistics returns aggregates, or a map holding "status": "no_data".
func (c *Client) Statistics(ctx context.Context) (map[string]any, error) {
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod("GetStatistics"), &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

// Reset clears the remote monitor.
func (c *Client) Reset(ctx context.Context) error {
	return c.conn.Invoke(ctx, fullMethod("Reset"), &emptypb.Empty{}, &emptypb.Empty{})
}

// ProcessMetrics pushes one sample and returns the resulting snapshot.
func (c *Client) ProcessMetrics(ctx context.Context, sample models.MetricSample) (models.MonitoringSnapshot, error) {
	var snapshot models.MonitoringSnapshot
	err := c.invokeStruct(ctx, "ProcessMetrics", sample, &snapshot)
	return snapshot, err
}

// FitTransition requests a transition-matrix fit.
func (c *Client) FitTransition(ctx context.Context, req models.FitRequest) (engine.TrainResult, error) {
	var result engine.TrainResult
	err := c.invokeStruct(ctx, "FitTransition", req, &result)
	return result, err
}

// RecordTransactions sends a transaction batch to the remote collector.
func (c *Client) RecordTransactions(ctx context.Context, batch models.TransactionBatch) (extractors.CollectorStats, error) {
	var stats extractors.CollectorStats
	err := c.invokeStruct(ctx, "RecordTransactions", batch, &stats)
	return stats, err
}

func (c *Client) invokeStruct(ctx context.Context, method string, in, out any) error {
	req, err := encodeStruct(in)
	if err != nil {
		return err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return err
	}
	return decodeMessage(resp, out)
}
