package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/mirador-resilience/internal/services"
	"github.com/miradorstack/mirador-resilience/internal/utils"
)

// encodeStruct maps a JSON-serialisable domain value into a protobuf Struct.
func encodeStruct(v any) (*structpb.Struct, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(payload, out); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return out, nil
}

// encodeList maps a JSON-serialisable slice into a protobuf ListValue.
func encodeList(v any) (*structpb.ListValue, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	out := &structpb.ListValue{}
	if err := protojson.Unmarshal(payload, out); err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return out, nil
}

// decodeMessage maps a Struct or ListValue into the domain value out points to.
func decodeMessage(msg proto.Message, out any) error {
	if msg == nil {
		return errors.New("message is nil")
	}
	payload, err := protojson.Marshal(msg)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// toStatusError maps service errors onto gRPC status codes.
func toStatusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, utils.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, services.ErrNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
